package auth

import (
	"context"
	"errors"
)

// ErrUnauthorized is returned when no verified claims are attached to a context
var ErrUnauthorized = errors.New("unauthorized")

// contextKey is the key for storing verified claims in context
type contextKey string

const claimsContextKey contextKey = "claims"

// SetClaimsInContext stores verified credential claims in the context
func SetClaimsInContext(ctx context.Context, claims *Claims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}

// GetClaimsFromContext extracts the verified claims placed by the bearer middleware
func GetClaimsFromContext(ctx context.Context) (*Claims, error) {
	claims, ok := ctx.Value(claimsContextKey).(*Claims)
	if !ok || claims == nil {
		return nil, ErrUnauthorized
	}
	return claims, nil
}
