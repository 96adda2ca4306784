package auth

import (
	"context"
)

type contextKey int

const identityKey contextKey = iota

// ContextWithIdentity returns a copy of ctx carrying identity.
func ContextWithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity stored by [ContextWithIdentity].
// It never returns a non-nil identity with false.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

// MustIdentityFromContext is like [IdentityFromContext] but panics when no
// identity is present. Use it only behind the authentication middleware.
func MustIdentityFromContext(ctx context.Context) *Identity {
	identity, ok := IdentityFromContext(ctx)
	if !ok {
		panic("auth: no identity in context; ensure authentication middleware is configured")
	}
	return identity
}
