// Package auth provides tenant identity context helpers.
//
// This package is designed to be imported by both middleware and handler
// packages without causing import cycles.
package auth

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// contextKey is a custom type for context keys to avoid collisions.
type contextKey string

const tenantContextKey contextKey = "tenant"

// GetTenantID retrieves the tenant ID from the context.
//
// Returns uuid.Nil if no tenant identity was resolved by middleware.
func GetTenantID(ctx context.Context) uuid.UUID {
	id, ok := ctx.Value(tenantContextKey).(uuid.UUID)
	if !ok {
		return uuid.Nil
	}
	return id
}

// GetTenantIDFromRequest retrieves the tenant ID from the request context.
func GetTenantIDFromRequest(r *http.Request) uuid.UUID {
	return GetTenantID(r.Context())
}

// SetTenantID stores a tenant ID in the context.
//
// This is called by the tenant auth middleware after validating the
// tenant identity header.
func SetTenantID(ctx context.Context, id uuid.UUID) context.Context {
	return context.WithValue(ctx, tenantContextKey, id)
}
