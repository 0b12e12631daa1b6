package shared

import "context"

type ctxKey int

const sessionCtxKey ctxKey = iota

// ContextWithSession returns a child context carrying the request's session.
func ContextWithSession(ctx context.Context, sess *Session) context.Context {
	return context.WithValue(ctx, sessionCtxKey, sess)
}

// SessionFromContext returns the session placed by the session middleware,
// or nil outside a request.
func SessionFromContext(ctx context.Context) *Session {
	sess, _ := ctx.Value(sessionCtxKey).(*Session)
	return sess
}
