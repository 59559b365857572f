package service

import (
	"context"

	"famsync/internal/models"
)

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying the caller's identity
func WithIdentity(ctx context.Context, identity *models.Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// IdentityFrom returns the caller's identity stored by WithIdentity
func IdentityFrom(ctx context.Context) (*models.Identity, bool) {
	identity, ok := ctx.Value(identityKey{}).(*models.Identity)
	return identity, ok && identity != nil
}
