// Package tenant carries the ambient tenant, session and actor binding for
// a request or task, and verifies identity tokens on privileged calls.
//
// The binding travels on the context.Context, never a global, so parallel
// tenants cannot cross-contaminate audit or metering writes. Explicit values
// supplied by a caller always win over ambient ones.
package tenant

import (
	"context"

	"github.com/google/uuid"
	"github.com/regsuite/governance/internal/types"
)

// DefaultTenant is used when no tenant binding is present on the context.
const DefaultTenant = "default"

type contextKey struct{}

// Binding is the ambient identity for the current request or task.
type Binding struct {
	TenantID  string
	SessionID string
	Actor     string
	ActorType types.ActorType
}

// NewBinding returns a binding with a fresh session id.
func NewBinding(tenantID, actor string, actorType types.ActorType) Binding {
	return Binding{
		TenantID:  tenantID,
		SessionID: uuid.NewString(),
		Actor:     actor,
		ActorType: actorType,
	}
}

// WithBinding returns a context carrying the binding.
func WithBinding(ctx context.Context, b Binding) context.Context {
	return context.WithValue(ctx, contextKey{}, b)
}

// FromContext returns the binding on the context, if any.
func FromContext(ctx context.Context) (Binding, bool) {
	b, ok := ctx.Value(contextKey{}).(Binding)
	return b, ok
}

// ID returns the tenant id bound to the context, or DefaultTenant.
func ID(ctx context.Context) string {
	if b, ok := FromContext(ctx); ok && b.TenantID != "" {
		return b.TenantID
	}
	return DefaultTenant
}

// Actor returns the explicit actor when non-empty, falling back to the
// ambient binding and finally to "system".
func Actor(ctx context.Context, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if b, ok := FromContext(ctx); ok && b.Actor != "" {
		return b.Actor
	}
	return "system"
}

// ActorType returns the explicit actor type when valid, falling back to the
// ambient binding and finally to system.
func ActorType(ctx context.Context, explicit types.ActorType) types.ActorType {
	if explicit.IsValid() {
		return explicit
	}
	if b, ok := FromContext(ctx); ok && b.ActorType.IsValid() {
		return b.ActorType
	}
	return types.ActorSystem
}
