package httpapi

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"ezduka.app/internal/audit"
	"ezduka.app/internal/auth"
	"ezduka.app/internal/csrf"
	"ezduka.app/internal/gate"
	"ezduka.app/internal/session"
	"ezduka.app/internal/tenant"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token    string `json:"token,omitempty"`
	Redirect string `json:"redirect"`
}

func (a *API) parseBearer(token string) (session.Session, error) {
	return auth.ParseAndValidate(token)
}

// handleLogin verifies credentials, loads the tenant's current status and
// issues the session cookie. Mobile clients ask for a bearer token instead
// with ?token=1.
func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	if !a.logins.allow(clientIP(r)) {
		writeError(w, r, http.StatusTooManyRequests, "too many login attempts")
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	id, err := a.verifier.Verify(r.Context(), email, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			writeError(w, r, http.StatusUnauthorized, "invalid credentials")
			return
		}
		writeError(w, r, http.StatusInternalServerError, "authentication error")
		return
	}

	status := session.StatusUnknown
	if id.TenantID != "" && a.tenants != nil {
		if tn, err := a.tenants.FindTenant(r.Context(), id.TenantID); err == nil {
			status = tn.Status
		} else if !errors.Is(err, tenant.ErrNotFound) {
			// Store outage: sign in with UNKNOWN and let the gate degrade.
			status = session.StatusUnknown
		}
	}

	sess := session.Session{
		UserID:       id.UserID,
		TenantID:     id.TenantID,
		Role:         id.Role,
		TenantStatus: status,
	}

	redirect := loginRedirect(sess)

	resp := loginResponse{Redirect: redirect}
	if r.URL.Query().Get("token") == "1" {
		token, err := auth.GenerateToken(sess, a.sessionTTL)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "token generation failed")
			return
		}
		resp.Token = token
	} else {
		value, err := session.Encode(sess)
		if err != nil {
			writeError(w, r, http.StatusInternalServerError, "session encoding failed")
			return
		}
		http.SetCookie(w, a.sessionCookie(value, a.sessionTTL))
		if token, err := csrf.NewToken(); err == nil {
			http.SetCookie(w, csrf.Cookie(token))
		}
	}

	_ = audit.LogEvent(session.ContextWith(r.Context(), sess), "auth.login", map[string]any{
		"email":    email,
		"redirect": redirect,
	})
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	http.SetCookie(w, a.sessionCookie("", -1))
	http.SetCookie(w, &http.Cookie{
		Name:     csrf.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		SameSite: http.SameSiteLaxMode,
	})
	if sess, ok := session.FromContext(r.Context()); ok {
		_ = audit.LogEvent(r.Context(), "auth.logout", map[string]any{"user_id": sess.UserID})
	}
	writeJSON(w, http.StatusOK, map[string]any{"redirect": gate.TargetLogin})
}

func (a *API) sessionCookie(value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     session.CookieName,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	if ttl < 0 {
		c.MaxAge = -1
	} else {
		c.MaxAge = int(ttl.Seconds())
	}
	return c
}

// loginRedirect sends a fresh session where the lifecycle gate would send
// it anyway: status screens for pending/suspended tenants, registration
// when no tenant is attached yet.
func loginRedirect(sess session.Session) string {
	if sess.Role == session.RoleAdmin {
		return "/admin"
	}
	if sess.TenantID == "" {
		return gate.TargetRegister
	}
	switch sess.TenantStatus {
	case session.StatusPending:
		return gate.TargetPending
	case session.StatusSuspended:
		return gate.TargetSuspended
	default:
		return gate.TargetHome
	}
}
