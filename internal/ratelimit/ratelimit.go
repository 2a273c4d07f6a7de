// Package ratelimit implements fixed-window admission control for the
// request gatekeeper. Two interchangeable strategies sit behind one
// contract: an in-process counter map (best-effort, per instance) and a
// Redis-backed atomic counter shared across instances. The pipeline
// consults the distributed strategy first and falls back to the local one
// when the store is unreachable; rate limiting fails open rather than
// blocking all traffic.
package ratelimit

import (
	"context"
	"time"
)

// Decision is the outcome of an admission check.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter admits or rejects a request key. Implementations must be safe for
// concurrent use.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}

// Config holds the window policy shared by both strategies.
type Config struct {
	Window time.Duration
	Limit  int
}

// DefaultConfig mirrors the production policy: 50 requests per 15 seconds
// per tenant/role/caller key.
func DefaultConfig() Config {
	return Config{Window: 15 * time.Second, Limit: 50}
}

func (c Config) withDefaults() Config {
	if c.Window <= 0 {
		c.Window = 15 * time.Second
	}
	if c.Limit <= 0 {
		c.Limit = 50
	}
	return c
}
