// Package session defines the client-held session record and the codec for
// the ez_session cookie. The cookie value is base64-encoded JSON; it is
// issued at login and never mutated in place — a role or tenant-status
// change requires re-encoding a fresh value.
package session

import (
	"encoding/base64"
	"encoding/json"
	"strings"
)

// CookieName is the session cookie issued at login.
const CookieName = "ez_session"

// Role is the set of operator roles. There is no privilege order between
// them; authorization is set membership per route rule.
type Role string

const (
	RoleAdmin     Role = "ADMIN"
	RoleOwner     Role = "OWNER"
	RoleManager   Role = "MANAGER"
	RoleAttendant Role = "ATTENDANT"
)

// ParseRole normalizes raw input to a known role.
func ParseRole(raw string) (Role, bool) {
	switch Role(strings.ToUpper(strings.TrimSpace(raw))) {
	case RoleAdmin:
		return RoleAdmin, true
	case RoleOwner:
		return RoleOwner, true
	case RoleManager:
		return RoleManager, true
	case RoleAttendant:
		return RoleAttendant, true
	}
	return "", false
}

// TenantStatus is the tenant lifecycle state carried in the session.
// StatusUnknown is the conservative default when the status cannot be
// determined.
type TenantStatus string

const (
	StatusActive    TenantStatus = "ACTIVE"
	StatusPending   TenantStatus = "PENDING"
	StatusSuspended TenantStatus = "SUSPENDED"
	StatusUnknown   TenantStatus = "UNKNOWN"
)

// ParseTenantStatus normalizes raw input; anything unrecognized is UNKNOWN.
func ParseTenantStatus(raw string) TenantStatus {
	switch TenantStatus(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatusActive:
		return StatusActive
	case StatusPending:
		return StatusPending
	case StatusSuspended:
		return StatusSuspended
	}
	return StatusUnknown
}

// Session is the typed record behind the opaque cookie value.
type Session struct {
	UserID       string       `json:"userId"`
	TenantID     string       `json:"tenantId"`
	Role         Role         `json:"role"`
	TenantStatus TenantStatus `json:"tenantStatus"`
}

// Anonymous is the safe fallback applied when no session can be decoded:
// the least-privileged role, no tenant, unknown status.
func Anonymous() Session {
	return Session{Role: RoleAttendant, TenantStatus: StatusUnknown}
}

// Encode serializes the session into the opaque cookie value.
func Encode(s Session) (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// Decode parses an opaque cookie value. It never fails loudly: malformed or
// empty input yields (zero, false) and callers fall back to Anonymous().
// Within a well-formed token, an unrecognized role degrades to ATTENDANT and
// an unrecognized status to UNKNOWN.
func Decode(raw string) (Session, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Session{}, false
	}
	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return Session{}, false
	}
	var payload struct {
		UserID       string `json:"userId"`
		TenantID     string `json:"tenantId"`
		Role         string `json:"role"`
		TenantStatus string `json:"tenantStatus"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return Session{}, false
	}

	s := Session{
		UserID:   strings.TrimSpace(payload.UserID),
		TenantID: strings.TrimSpace(payload.TenantID),
	}
	if role, ok := ParseRole(payload.Role); ok {
		s.Role = role
	} else {
		s.Role = RoleAttendant
	}
	s.TenantStatus = ParseTenantStatus(payload.TenantStatus)
	return s, true
}
