package httpapi

import (
	"html/template"
	"net/http"

	"ezduka.app/internal/session"
)

// The server renders placeholder shells for the redirect targets; the real
// UI is a separate frontend. Keeping them server-side lets the gatekeeper's
// page semantics (redirects, not JSON errors) be exercised end to end.
var pageTmpl = template.Must(template.New("page").Parse(`<!doctype html>
<html><head><title>ezduka — {{.Title}}</title></head>
<body><h1>{{.Title}}</h1><p>{{.Body}}</p></body></html>
`))

type pageData struct {
	Title string
	Body  string
}

func (a *API) registerPages() {
	a.mux.HandleFunc("/login", a.page("Sign in", "Sign in to your shop."))
	a.mux.HandleFunc("/register", a.page("Register", "Create your shop."))
	a.mux.HandleFunc("/access/pending", a.page("Pending approval", "Your shop is awaiting activation."))
	a.mux.HandleFunc("/access/suspended", a.page("Suspended", "Your shop's access has been suspended."))
	a.mux.HandleFunc("/home", a.homePage)
	a.mux.HandleFunc("/admin", a.page("Administration", "Platform administration."))
	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/home", http.StatusTemporaryRedirect)
	})
}

func (a *API) page(title, body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = pageTmpl.Execute(w, pageData{Title: title, Body: body})
	}
}

func (a *API) homePage(w http.ResponseWriter, r *http.Request) {
	sess, _ := session.FromContext(r.Context())
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_ = pageTmpl.Execute(w, pageData{
		Title: "Home",
		Body:  "Signed in as " + string(sess.Role) + ".",
	})
}
