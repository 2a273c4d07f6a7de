package gate

import (
	"testing"

	"ezduka.app/internal/session"
)

func TestClassify(t *testing.T) {
	cases := map[string]RouteClass{
		"/login":                   RoutePublicAuth,
		"/register":                RoutePublicAuth,
		"/signup":                  RoutePublicAuth,
		"/access/pending":          RoutePublicAuth,
		"/access/suspended":        RoutePublicAuth,
		"/api/auth/login":          RoutePublicAuth,
		"/admin":                   RouteAdmin,
		"/admin/tenants":           RouteAdmin,
		"/api/admin/tenants":       RouteAdmin,
		"/home":                    RouteProtected,
		"/invoices":                RouteProtected,
		"/api/sales/quick":         RouteProtected,
		"/api/purchase-orders/x/y": RouteProtected,
	}
	for path, want := range cases {
		if got := Classify(path); got != want {
			t.Fatalf("Classify(%q)=%v, want %v", path, got, want)
		}
	}
}

func TestLifecycleNoTenant(t *testing.T) {
	d := Lifecycle(session.StatusUnknown, RoutePublicAuth, session.RoleAttendant, false)
	if !d.Allowed() {
		t.Fatalf("anonymous on public auth route should pass: %#v", d)
	}

	d = Lifecycle(session.StatusUnknown, RouteProtected, session.RoleAttendant, false)
	if d.Redirect != TargetRegister || d.Reason != ReasonNoTenant {
		t.Fatalf("anonymous on protected route should go to register: %#v", d)
	}
}

func TestLifecycleLoggedInOnPublicAuthRoute(t *testing.T) {
	cases := map[session.TenantStatus]string{
		session.StatusActive:    TargetHome,
		session.StatusUnknown:   TargetHome,
		session.StatusPending:   TargetPending,
		session.StatusSuspended: TargetSuspended,
	}
	for status, want := range cases {
		d := Lifecycle(status, RoutePublicAuth, session.RoleOwner, true)
		if d.Redirect != want || d.Reason != ReasonLoggedIn {
			t.Fatalf("status %s: got %#v, want redirect %s", status, d, want)
		}
	}
}

func TestLifecycleDominatesRole(t *testing.T) {
	// A suspended tenant's owner must not reach protected content even
	// though the role rules would let them through.
	for _, role := range []session.Role{
		session.RoleOwner, session.RoleManager, session.RoleAttendant,
	} {
		d := Lifecycle(session.StatusSuspended, RouteProtected, role, true)
		if d.Redirect != TargetSuspended || d.Reason != ReasonSuspended {
			t.Fatalf("role %s: expected suspended redirect, got %#v", role, d)
		}

		d = Lifecycle(session.StatusPending, RouteProtected, role, true)
		if d.Redirect != TargetPending || d.Reason != ReasonPending {
			t.Fatalf("role %s: expected pending redirect, got %#v", role, d)
		}
	}
}

func TestLifecycleAdminRoute(t *testing.T) {
	d := Lifecycle(session.StatusSuspended, RouteAdmin, session.RoleAdmin, true)
	if !d.Allowed() {
		t.Fatalf("admin route bypasses tenant resolution: %#v", d)
	}

	d = Lifecycle(session.StatusActive, RouteAdmin, session.RoleOwner, true)
	if d.Redirect != TargetLogin || d.Reason != ReasonAdminRequired {
		t.Fatalf("non-admin on admin route should go to login: %#v", d)
	}
}

func TestLifecycleActiveTenantPasses(t *testing.T) {
	d := Lifecycle(session.StatusActive, RouteProtected, session.RoleAttendant, true)
	if !d.Allowed() || d.Degraded {
		t.Fatalf("active tenant should pass cleanly: %#v", d)
	}
}

func TestLifecycleUnknownStatusIsDegradedNotBlocked(t *testing.T) {
	d := Lifecycle(session.StatusUnknown, RouteProtected, session.RoleOwner, true)
	if !d.Allowed() {
		t.Fatalf("unknown status must not hard-block: %#v", d)
	}
	if !d.Degraded {
		t.Fatalf("unknown status must not pass silently: %#v", d)
	}
}
