package auth

import (
	"context"
	"errors"

	"tmail/internal/biz"
)

type contextKey struct{}

// userContextKey is the context key for the authenticated user
var userContextKey = contextKey{}

var (
	// ErrNoUserInContext is returned when no user is found in context
	ErrNoUserInContext = errors.New("no authenticated user in context")
)

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *biz.UserProfile) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

// GetUserFromContext extracts authenticated user from request context
func GetUserFromContext(ctx context.Context) (*biz.UserProfile, error) {
	user, ok := ctx.Value(userContextKey).(*biz.UserProfile)
	if !ok || user == nil {
		return nil, ErrNoUserInContext
	}
	return user, nil
}

// MustGetUserFromContext panics if no user in context (use after auth middleware)
func MustGetUserFromContext(ctx context.Context) *biz.UserProfile {
	user, err := GetUserFromContext(ctx)
	if err != nil {
		panic("expected authenticated user in context")
	}
	return user
}
