// Package idempotency is the dedup contract for financial mutation
// endpoints. The first request to store a (tenant, scope, key) wins; every
// later request with the same identity gets the recorded response replayed
// verbatim and runs no business logic. Scope strings partition the key
// space per endpoint family so the same literal key cannot collide across
// unrelated operations.
package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Header is the caller-supplied key header.
const Header = "Idempotency-Key"

// Retention bounds how long records are kept. Replays after this horizon
// re-execute; retries arrive within seconds, not days, so 48h is generous.
const Retention = 48 * time.Hour

// Scopes in use. One per endpoint family.
const (
	ScopeQuickSale       = "sales:quick"
	ScopePOCreate        = "po:create"
	ScopePOMarkPaid      = "po:mark-paid"
	ScopeInvoiceMarkPaid = "invoice:mark-paid"
	ScopePaymentRequest  = "payments:request"
)

// Record is the cached outcome of a mutation.
type Record struct {
	TenantID  string
	Scope     string
	Key       string
	Status    int
	Body      []byte
	CreatedAt time.Time
}

// Store persists records. Insert must be atomic insert-if-absent at the
// storage layer — a check-then-write pair would leave a race window where
// two concurrent duplicates both execute.
type Store interface {
	// Lookup returns the record for (tenantID, scope, key) if present and
	// not expired.
	Lookup(ctx context.Context, tenantID, scope, key string) (Record, bool, error)
	// Insert writes first-writer-wins. When the record already exists the
	// stored one is returned and inserted is false.
	Insert(ctx context.Context, rec Record) (stored Record, inserted bool, err error)
}

// DeriveKey builds the deterministic fallback key for requests that carry
// no Idempotency-Key header, from request-identifying fields.
func DeriveKey(method, path, tenantID string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{'|'})
	h.Write([]byte(path))
	h.Write([]byte{'|'})
	h.Write([]byte(tenantID))
	h.Write([]byte{'|'})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
