package auth

import (
	"context"
	"strings"
)

// Role constants used throughout the API when checking authorisation boundaries.
const (
	RoleAdmin      = "admin"
	RoleSuperAdmin = "super-admin"
)

// AdminIdentity captures the authenticated admin details extracted from an access token.
type AdminIdentity struct {
	ID    string
	Email string
	Name  string
	Role  string
}

// HasRole reports whether the identity carries the requested role (case-insensitive).
func (i *AdminIdentity) HasRole(role string) bool {
	if i == nil {
		return false
	}
	role = normaliseRole(role)
	if role == "" {
		return false
	}
	return strings.EqualFold(i.Role, role)
}

// HasAnyRole reports whether the identity carries any of the provided roles.
func (i *AdminIdentity) HasAnyRole(roles ...string) bool {
	for _, role := range roles {
		if i.HasRole(role) {
			return true
		}
	}
	return false
}

type contextKey string

const adminContextKey contextKey = "github.com/refugios-lanche/api/internal/platform/auth/admin"

// WithAdmin stores the admin identity within the context for downstream handlers.
func WithAdmin(ctx context.Context, identity *AdminIdentity) context.Context {
	return context.WithValue(ctx, adminContextKey, identity)
}

// AdminFromContext retrieves the admin identity previously stored in context.
func AdminFromContext(ctx context.Context) (*AdminIdentity, bool) {
	identity, ok := ctx.Value(adminContextKey).(*AdminIdentity)
	if !ok || identity == nil {
		return nil, false
	}
	return identity, true
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
