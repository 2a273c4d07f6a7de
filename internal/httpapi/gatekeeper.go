package httpapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"ezduka.app/internal/csrf"
	"ezduka.app/internal/gate"
	"ezduka.app/internal/obs"
	"ezduka.app/internal/session"
)

// Paths outside the gate: probes and metrics must answer even when Redis or
// the session secret is misbehaving.
var infraPaths = map[string]bool{
	"/healthz": true,
	"/readyz":  true,
	"/metrics": true,
}

// Financial mutation prefixes fail closed when the tenant status cannot be
// resolved. Reads degrade; money does not.
var financialPrefixes = []string{
	"/api/sales",
	"/api/purchase-orders",
	"/api/invoices",
	"/api/payments",
	"/api/money",
}

func isFinancialPath(path string) bool {
	for _, p := range financialPrefixes {
		if strings.HasPrefix(path, p) {
			return true
		}
	}
	return false
}

// gatekeeper runs the request pipeline: resolve session, rate limit, CSRF,
// tenant lifecycle, role authorization. Stage order is fixed; the first
// rejection wins.
func (a *API) gatekeeper(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if infraPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		sess, hasSession, hasBearer := a.resolveSession(r)
		api := isAPIPath(r.URL.Path)

		// Stage 1: rate limit.
		if a.limiter != nil {
			key := rateKey(sess, clientIP(r))
			dec, err := a.limiter.Admit(r.Context(), key)
			if err != nil {
				// Fail open: availability beats precision here.
				obs.LogError("rate limiter unavailable", err, map[string]any{"key": key})
			} else if !dec.Allowed {
				obs.GateRejection("rate_limit")
				w.Header().Set("Retry-After", fmt.Sprintf("%d", int(dec.RetryAfter.Seconds())+1))
				writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
				return
			} else {
				w.Header().Set("X-RateLimit-Remaining", fmt.Sprintf("%d", dec.Remaining))
			}
		}

		// Stage 2: CSRF double submit on mutating browser requests.
		if csrf.Mutating(r.Method) && !a.guard.Exempt(r.Method, r.URL.Path, hasBearer) {
			cookieToken := ""
			if c, err := r.Cookie(csrf.CookieName); err == nil {
				cookieToken = c.Value
			}
			if err := a.guard.Validate(cookieToken, r.Header.Get(csrf.HeaderName)); err != nil {
				obs.GateRejection("csrf")
				writeError(w, r, http.StatusForbidden, "csrf token missing or mismatch")
				return
			}
		}

		// Bypass-listed paths (payment-provider webhooks) authenticate by
		// payload, not session; lifecycle and role gates do not apply.
		if a.guard.Bypassed(r.URL.Path) {
			next.ServeHTTP(w, r.WithContext(session.ContextWith(r.Context(), sess)))
			return
		}

		// Stage 3: tenant lifecycle.
		class := gate.Classify(r.URL.Path)
		dec := gate.Lifecycle(sess.TenantStatus, class, sess.Role, sess.TenantID != "")
		if !dec.Allowed() {
			if api && dec.Reason == gate.ReasonLoggedIn {
				// An authenticated client calling an auth API is fine; the
				// redirect only applies to pages.
				dec = gate.Decision{}
			} else {
				obs.GateRejection("lifecycle")
				a.rejectLifecycle(w, r, api, hasSession, dec)
				return
			}
		}
		if dec.Degraded {
			obs.TenantStatusUnknown()
			w.Header().Set("x-tenant-status", "unknown")
			obs.LogRequest(map[string]any{
				"level":      "warn",
				"msg":        "tenant_status_unknown",
				"request_id": RequestIDFromContext(r.Context()),
				"path":       r.URL.Path,
				"tenant_id":  sess.TenantID,
			})
			if csrf.Mutating(r.Method) && isFinancialPath(r.URL.Path) {
				obs.GateRejection("lifecycle")
				writeError(w, r, http.StatusForbidden, "tenant status unavailable")
				return
			}
		}

		// Stage 4: role authorization.
		if err := gate.Authorize(r.URL.Path, sess.Role, a.rules); err != nil {
			obs.GateRejection("role")
			var roleErr *gate.RoleError
			isRole := errors.As(err, &roleErr)
			if api || !isRole {
				payload := map[string]any{
					"error": "Not allowed for this role.",
				}
				if roleErr != nil {
					payload["role"] = string(roleErr.Role)
					payload["path"] = roleErr.Path
				}
				if rid := RequestIDFromContext(r.Context()); rid != "" {
					payload["request_id"] = rid
				}
				writeJSON(w, http.StatusForbidden, payload)
				return
			}
			http.Redirect(w, r, gate.TargetHome, http.StatusTemporaryRedirect)
			return
		}

		// Opportunistic CSRF issuance, only once every gate has passed: a
		// browser page load gets a token so its next mutation can pass the
		// double submit.
		if !csrf.Mutating(r.Method) && !hasBearer {
			if _, err := r.Cookie(csrf.CookieName); err != nil {
				if token, err := csrf.NewToken(); err == nil {
					http.SetCookie(w, csrf.Cookie(token))
				}
			}
		}

		// Admitted: expose the resolved identity downstream.
		r.Header.Set("x-tenant-id", sess.TenantID)
		r.Header.Set("x-role", string(sess.Role))
		next.ServeHTTP(w, r.WithContext(session.ContextWith(r.Context(), sess)))
	})
}

// resolveSession reads the session cookie first, then a bearer token.
// Failures degrade to the anonymous session; they never block the pipeline.
func (a *API) resolveSession(r *http.Request) (sess session.Session, ok bool, hasBearer bool) {
	if c, err := r.Cookie(session.CookieName); err == nil {
		if s, valid := session.Decode(c.Value); valid {
			return s, true, false
		}
	}
	if header := r.Header.Get("Authorization"); strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimSpace(header[len("Bearer "):])
		if token != "" {
			if s, err := a.parseBearer(token); err == nil {
				return s, true, true
			}
			return session.Anonymous(), false, true
		}
	}
	return session.Anonymous(), false, false
}

func rateKey(sess session.Session, ip string) string {
	tenantID := sess.TenantID
	if tenantID == "" {
		tenantID = "anon"
	}
	return tenantID + ":" + string(sess.Role) + ":" + ip
}

func (a *API) rejectLifecycle(w http.ResponseWriter, r *http.Request, api, hasSession bool, dec gate.Decision) {
	if !api {
		http.Redirect(w, r, dec.Redirect, http.StatusTemporaryRedirect)
		return
	}
	switch dec.Reason {
	case gate.ReasonNoTenant:
		writeError(w, r, http.StatusBadRequest, "Missing tenant context.")
	case gate.ReasonAdminRequired:
		if !hasSession {
			writeError(w, r, http.StatusUnauthorized, "Authentication required.")
		} else {
			writeError(w, r, http.StatusForbidden, "Admin role required.")
		}
	case gate.ReasonPending:
		writeError(w, r, http.StatusForbidden, "Tenant pending approval.")
	case gate.ReasonSuspended:
		writeError(w, r, http.StatusForbidden, "Tenant suspended.")
	default:
		writeError(w, r, http.StatusForbidden, "Not allowed.")
	}
}
