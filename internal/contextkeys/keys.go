package contextkeys

import (
	"context"

	"github.com/Jeevanvsan/byee-ugraph-saas/internal/domain"
)

// contextKey is an unexported type for context keys to prevent collisions.
type contextKey string

const (
	// Principal is the context key for the authenticated caller.
	Principal contextKey = "principal"
	// RequestID is the context key for the per-request correlation id.
	RequestID contextKey = "requestID"
)

// WithPrincipal stores the authenticated caller on ctx.
func WithPrincipal(ctx context.Context, p *domain.Principal) context.Context {
	return context.WithValue(ctx, Principal, p)
}

// PrincipalFrom returns the caller stored by the auth middleware, or nil.
func PrincipalFrom(ctx context.Context) *domain.Principal {
	p, _ := ctx.Value(Principal).(*domain.Principal)
	return p
}

// RequestIDFrom returns the request id, or "" outside a request.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(RequestID).(string)
	return id
}
