package session

import "context"

type sessionContextKey struct{}

// ContextWith attaches the resolved session to the context for downstream
// handlers and audit logging.
func ContextWith(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, &s)
}

// FromContext extracts the session resolved by the gatekeeper.
func FromContext(ctx context.Context) (Session, bool) {
	if ctx == nil {
		return Session{}, false
	}
	v, ok := ctx.Value(sessionContextKey{}).(*Session)
	if !ok || v == nil {
		return Session{}, false
	}
	return *v, true
}
