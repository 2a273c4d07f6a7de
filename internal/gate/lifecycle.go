package gate

import (
	"strings"

	"ezduka.app/internal/session"
)

// RouteClass partitions paths for the lifecycle gate.
type RouteClass int

const (
	// RoutePublicAuth covers login/registration and the status screens —
	// reachable without a session.
	RoutePublicAuth RouteClass = iota
	// RouteAdmin covers platform administration; it bypasses tenant
	// resolution but requires the ADMIN role.
	RouteAdmin
	// RouteProtected is everything else.
	RouteProtected
)

var publicAuthPrefixes = []string{
	"/login",
	"/register",
	"/signup",
	"/access/",
	"/api/auth/",
}

var adminPrefixes = []string{
	"/admin",
	"/api/admin",
}

// Classify maps a path to its route class.
func Classify(path string) RouteClass {
	for _, p := range adminPrefixes {
		if strings.HasPrefix(path, p) {
			return RouteAdmin
		}
	}
	for _, p := range publicAuthPrefixes {
		if strings.HasPrefix(path, p) {
			return RoutePublicAuth
		}
	}
	return RouteProtected
}

// Redirect targets used by the lifecycle gate.
const (
	TargetLogin     = "/login"
	TargetRegister  = "/register"
	TargetPending   = "/access/pending"
	TargetSuspended = "/access/suspended"
	TargetHome      = "/home"
)

// Reason explains a lifecycle decision so the HTTP layer can pick between a
// redirect (page routes) and a structured error (API routes).
type Reason int

const (
	ReasonNone Reason = iota
	// ReasonNoTenant — protected route without a resolved tenant.
	ReasonNoTenant
	// ReasonAdminRequired — admin route without the ADMIN role.
	ReasonAdminRequired
	// ReasonPending — tenant awaiting activation.
	ReasonPending
	// ReasonSuspended — tenant access revoked.
	ReasonSuspended
	// ReasonLoggedIn — authenticated tenant on a public auth route.
	ReasonLoggedIn
)

// Decision is the lifecycle gate outcome. A non-empty Redirect means the
// request must not reach its handler. Degraded marks an admission under an
// UNKNOWN tenant status: the request continues, but not silently, and
// financial mutations must fail closed downstream.
type Decision struct {
	Redirect string
	Reason   Reason
	Degraded bool
}

// Allowed reports whether the request continues to its handler.
func (d Decision) Allowed() bool { return d.Redirect == "" }

// Lifecycle decides redirect-or-continue from tenant status and route
// class. Lifecycle dominates role authorization: a suspended tenant's owner
// must not reach protected content even though their role would pass every
// role rule.
func Lifecycle(status session.TenantStatus, class RouteClass, role session.Role, hasTenant bool) Decision {
	if class == RouteAdmin {
		if role == session.RoleAdmin {
			return Decision{}
		}
		return Decision{Redirect: TargetLogin, Reason: ReasonAdminRequired}
	}

	if !hasTenant {
		if class == RoutePublicAuth {
			return Decision{}
		}
		return Decision{Redirect: TargetRegister, Reason: ReasonNoTenant}
	}

	if class == RoutePublicAuth {
		switch status {
		case session.StatusPending:
			return Decision{Redirect: TargetPending, Reason: ReasonLoggedIn}
		case session.StatusSuspended:
			return Decision{Redirect: TargetSuspended, Reason: ReasonLoggedIn}
		default:
			return Decision{Redirect: TargetHome, Reason: ReasonLoggedIn}
		}
	}

	switch status {
	case session.StatusPending:
		return Decision{Redirect: TargetPending, Reason: ReasonPending}
	case session.StatusSuspended:
		return Decision{Redirect: TargetSuspended, Reason: ReasonSuspended}
	case session.StatusUnknown:
		return Decision{Degraded: true}
	default:
		return Decision{}
	}
}
