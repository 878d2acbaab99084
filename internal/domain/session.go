package domain

import "context"

// Session identifies the operator issuing a request. It is resolved
// once at the edge and passed explicitly into usecases; nothing below
// the present layer reads ambient auth state.
type Session struct {
	AccountID string
	Email     string
	Role      string
}

type sessionCtxKey struct{}

// WithSession attaches a resolved session to the request context.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey{}, s)
}

// SessionFromContext extracts the session placed by the auth middleware.
func SessionFromContext(ctx context.Context) (Session, bool) {
	s, ok := ctx.Value(sessionCtxKey{}).(Session)
	return s, ok
}
