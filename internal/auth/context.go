package auth

import (
	"context"

	"github.com/google/uuid"

	"github.com/josh-kwaku/pointstore/internal/domain"
)

type claimsKey struct{}

func ContextWithClaims(ctx context.Context, c *Claims) context.Context {
	return context.WithValue(ctx, claimsKey{}, c)
}

func ClaimsFromContext(ctx context.Context) (*Claims, bool) {
	c, ok := ctx.Value(claimsKey{}).(*Claims)
	return c, ok && c != nil
}

// AccountIDFromContext returns the verified caller identity.
func AccountIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return uuid.Nil, false
	}
	return c.AccountID, true
}

func IsAdmin(ctx context.Context) bool {
	c, ok := ClaimsFromContext(ctx)
	return ok && c.Role == domain.RoleAdmin
}
