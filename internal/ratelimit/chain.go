package ratelimit

import "context"

// Chain consults the authoritative limiter first and the fallback only when
// the authoritative one errors. The order must never be reversed: the local
// counter alone cannot enforce a global limit.
type Chain struct {
	primary    Limiter
	fallback   Limiter
	onFallback func(error)
}

var _ Limiter = (*Chain)(nil)

// NewChain builds the two-strategy pipeline. onFallback is invoked (if
// non-nil) every time the primary errors and the decision is delegated.
func NewChain(primary, fallback Limiter, onFallback func(error)) *Chain {
	return &Chain{primary: primary, fallback: fallback, onFallback: onFallback}
}

// Admit delegates to the primary; on store failure the local fallback
// decides, and with no fallback the request is admitted (fail open).
func (c *Chain) Admit(ctx context.Context, key string) (Decision, error) {
	if c.primary != nil {
		d, err := c.primary.Admit(ctx, key)
		if err == nil {
			return d, nil
		}
		if c.onFallback != nil {
			c.onFallback(err)
		}
	}
	if c.fallback != nil {
		return c.fallback.Admit(ctx, key)
	}
	return Decision{Allowed: true}, nil
}
