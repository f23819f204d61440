package auth

import (
	"context"

	"github.com/google/uuid"
)

// Identity is the authenticated caller attached to a request context by
// Middleware.
type Identity struct {
	UserID      uuid.UUID
	GitHubLogin string
}

type contextKey string

const identityKey contextKey = "identity"

// NewContext returns a context carrying identity.
func NewContext(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// FromContext extracts the Identity stored by Middleware, or nil if absent.
func FromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}
