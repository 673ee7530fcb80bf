// Package auth verifies bearer tokens and exposes the caller identity to handlers.
package auth

import (
	"context"
	"strings"
)

// Role constants used when checking authorisation boundaries.
const (
	RoleSeller = "seller"
	RoleAdmin  = "admin"
	// RoleSystem marks internal callers such as the auto-complete job.
	RoleSystem = "system"
)

// Identity captures the authenticated principal extracted from a token.
type Identity struct {
	UID      string
	Email    string
	SellerID string
	Roles    []string
}

// HasRole reports whether the identity includes the requested role (case-insensitive).
func (i *Identity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	for _, r := range i.Roles {
		if strings.EqualFold(r, role) {
			return true
		}
	}
	return false
}

func (i *Identity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

// SystemIdentity is used by background jobs that act without a request.
func SystemIdentity(name string) *Identity {
	return &Identity{UID: name, Roles: []string{RoleSystem}}
}

type contextKey string

const identityContextKey contextKey = "github.com/shopx/api/internal/platform/auth/identity"

// WithIdentity stores the identity within the context for downstream handlers.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, identityContextKey, identity)
}

// IdentityFromContext retrieves the identity previously stored in context.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	identity, ok := ctx.Value(identityContextKey).(*Identity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
