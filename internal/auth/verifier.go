package auth

import (
	"context"
	"errors"
	"strings"
	"sync"

	"ezduka.app/internal/session"
)

// ErrInvalidCredentials is returned for unknown users and wrong passwords
// alike; login must not reveal which.
var ErrInvalidCredentials = errors.New("auth: invalid credentials")

// Identity is what a successful credential check resolves to.
type Identity struct {
	UserID   string
	TenantID string
	Role     session.Role
}

// CredentialVerifier checks a login attempt. Hashing and credential storage
// live behind this interface.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (Identity, error)
}

// StaticVerifier is an in-memory verifier for dev mode and tests, seeded
// with plaintext passwords.
type StaticVerifier struct {
	mu    sync.RWMutex
	users map[string]staticUser
}

type staticUser struct {
	password string
	identity Identity
}

// NewStaticVerifier creates an empty verifier.
func NewStaticVerifier() *StaticVerifier {
	return &StaticVerifier{users: make(map[string]staticUser)}
}

// Seed registers a user.
func (v *StaticVerifier) Seed(email, password string, id Identity) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.users[normalizeEmail(email)] = staticUser{password: password, identity: id}
}

// Verify implements CredentialVerifier.
func (v *StaticVerifier) Verify(_ context.Context, email, password string) (Identity, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	u, ok := v.users[normalizeEmail(email)]
	if !ok || u.password != password {
		return Identity{}, ErrInvalidCredentials
	}
	return u.identity, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
