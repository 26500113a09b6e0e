package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/devilmonastery/ara/internal/domain/entities"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// contextKey is the key for storing the principal in context
type contextKey string

const principalContextKey contextKey = "principal"

// GetPrincipalFromContext extracts the authenticated principal from the context
func GetPrincipalFromContext(ctx context.Context) (*Principal, error) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	if !ok || p == nil {
		return nil, fmt.Errorf("%w: no authenticated user in context", ErrUnauthorized)
	}
	return p, nil
}

// SetPrincipalInContext stores the authenticated principal in the context
func SetPrincipalInContext(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

// RequireRole checks that the principal in ctx holds one of roles
func RequireRole(ctx context.Context, roles ...entities.Role) error {
	p, err := GetPrincipalFromContext(ctx)
	if err != nil {
		return err
	}
	for _, r := range roles {
		if p.HasRole(r) {
			return nil
		}
	}
	return fmt.Errorf("%w: one of %v required", ErrForbidden, roles)
}

// RequireAdmin checks if the principal is an administrator
func RequireAdmin(ctx context.Context) error {
	return RequireRole(ctx, entities.RoleSuperAdmin, entities.RoleAdmin)
}
