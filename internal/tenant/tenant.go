// Package tenant holds the tenant record and its lifecycle operations. All
// business data is scoped by tenant identity; the gatekeeper decides
// admission from the status carried in the session, while the endpoints
// here read and mutate the authoritative record.
package tenant

import (
	"context"
	"errors"
	"time"

	"ezduka.app/internal/session"
)

var (
	ErrNotFound      = errors.New("tenant: not found")
	ErrInvalidStatus = errors.New("tenant: invalid status")
)

// Tenant is an isolated business account.
type Tenant struct {
	ID        string                 `json:"id"`
	Name      string                 `json:"name"`
	Status    session.TenantStatus   `json:"status"`
	CreatedAt time.Time              `json:"created_at"`
	UpdatedAt time.Time              `json:"updated_at"`
}

// Store is the persistence contract for tenant records.
type Store interface {
	CreateTenant(ctx context.Context, t *Tenant) error
	FindTenant(ctx context.Context, id string) (Tenant, error)
	ListTenants(ctx context.Context) ([]Tenant, error)
	UpdateTenantStatus(ctx context.Context, id string, status session.TenantStatus) (Tenant, error)
}

// ValidTransition reports whether an admin may set the given status.
// UNKNOWN is a computed fallback, never a stored state.
func ValidTransition(status session.TenantStatus) bool {
	switch status {
	case session.StatusActive, session.StatusPending, session.StatusSuspended:
		return true
	}
	return false
}
