// Package gate holds the pure admission decisions of the request pipeline:
// the ordered role rule table and the tenant lifecycle state machine. The
// HTTP wiring lives in httpapi; everything here is synchronous and
// side-effect free.
package gate

import (
	"fmt"
	"regexp"

	"ezduka.app/internal/session"
)

// Rule maps a path pattern to the roles allowed through it.
type Rule struct {
	Pattern *regexp.Regexp
	Allowed []session.Role
}

// DefaultRules is the production rule table, evaluated in order. A path may
// match several rules; the role must satisfy every one of them (effective
// policy is the intersection of the allowed sets).
func DefaultRules() []Rule {
	return []Rule{
		{regexp.MustCompile(`(?i)^/admin`), []session.Role{session.RoleAdmin}},
		{regexp.MustCompile(`(?i)^/api/admin`), []session.Role{session.RoleAdmin}},
		{regexp.MustCompile(`(?i)^/settings`), []session.Role{session.RoleOwner}},
		{regexp.MustCompile(`(?i)^/suppliers`), []session.Role{session.RoleOwner, session.RoleManager}},
		{regexp.MustCompile(`(?i)^/inventory`), []session.Role{session.RoleOwner, session.RoleManager}},
		{regexp.MustCompile(`(?i)^/money`), []session.Role{session.RoleOwner, session.RoleManager}},
		{regexp.MustCompile(`(?i)^/api/purchase-orders`), []session.Role{session.RoleOwner, session.RoleManager}},
		{regexp.MustCompile(`(?i)^/api/suppliers`), []session.Role{session.RoleOwner, session.RoleManager}},
		// Selling and invoicing can be done by attendants too.
		{regexp.MustCompile(`(?i)^/invoice`), []session.Role{session.RoleOwner, session.RoleManager, session.RoleAttendant}},
		{regexp.MustCompile(`(?i)^/api/invoices`), []session.Role{session.RoleOwner, session.RoleManager, session.RoleAttendant}},
		{regexp.MustCompile(`(?i)^/api/payments`), []session.Role{session.RoleOwner, session.RoleManager, session.RoleAttendant}},
		{regexp.MustCompile(`(?i)^/api/sales`), []session.Role{session.RoleOwner, session.RoleManager, session.RoleAttendant}},
	}
}

// RoleError reports the rule that rejected a role, with enough context for
// the response body.
type RoleError struct {
	Role session.Role
	Path string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("role %s not allowed for %s", e.Role, e.Path)
}

// Authorize checks the role against every matching rule and rejects on the
// first one the role fails. A path matching zero rules is allowed: most
// business routes are intentionally ungated here and rely on per-tenant
// scoping instead.
func Authorize(path string, role session.Role, rules []Rule) error {
	for _, rule := range rules {
		if !rule.Pattern.MatchString(path) {
			continue
		}
		if !contains(rule.Allowed, role) {
			return &RoleError{Role: role, Path: path}
		}
	}
	return nil
}

func contains(roles []session.Role, role session.Role) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
