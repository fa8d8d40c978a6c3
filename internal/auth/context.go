package auth

import (
	"context"

	"notaspese/internal/core"
)

type userKey struct{}

// WithUser stores the authenticated user in ctx.
func WithUser(ctx context.Context, user core.User) context.Context {
	return context.WithValue(ctx, userKey{}, user)
}

// UserFromContext returns the authenticated user, if any.
func UserFromContext(ctx context.Context) (core.User, bool) {
	user, ok := ctx.Value(userKey{}).(core.User)
	return user, ok
}
