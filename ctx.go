package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var requestAuthCtxKey = &contextKey{"request_auth"}

type contextKey struct {
	name string
}

// DefaultContextKey is the locals key used when the config has none
const DefaultContextKey = "auth"

// RequestAuth is what the gates attach to a request. Session is nil when
// the token is not bound to a session or the strict gate was used.
type RequestAuth struct {
	Identity Identity
	Session  *Session
	Claims   *JWTClaims
}

// UserID returns the authenticated user id
func (r *RequestAuth) UserID() string {
	if r == nil || r.Identity == nil {
		return ""
	}
	return r.Identity.ID()
}

// Role returns the authenticated user role
func (r *RequestAuth) Role() UserRole {
	if r == nil || r.Identity == nil {
		return ""
	}
	return UserRole(r.Identity.Role())
}

// SessionID returns the bound session id, empty if none
func (r *RequestAuth) SessionID() string {
	if r == nil {
		return ""
	}
	if r.Session != nil {
		return r.Session.ID.String()
	}
	if r.Claims != nil {
		return r.Claims.SessionID()
	}
	return ""
}

// WithRequestAuth sets the RequestAuth in the given context
func WithRequestAuth(ctx context.Context, ra *RequestAuth) context.Context {
	return context.WithValue(ctx, requestAuthCtxKey, ra)
}

// RequestAuthFromContext finds the RequestAuth in the context
func RequestAuthFromContext(ctx context.Context) (*RequestAuth, bool) {
	if ctx == nil {
		return nil, false
	}
	raw, ok := ctx.Value(requestAuthCtxKey).(*RequestAuth)
	return raw, ok && raw != nil
}

// GetRequestAuth extracts the RequestAuth from the request locals, falling
// back to the request context
func GetRequestAuth(ctx router.Context, key string) (*RequestAuth, bool) {
	if key == "" {
		key = DefaultContextKey
	}
	raw, ok := ctx.Locals(key).(*RequestAuth)
	if ok && raw != nil {
		return raw, true
	}
	return RequestAuthFromContext(ctx.Context())
}
