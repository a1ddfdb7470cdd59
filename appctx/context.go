// Package appctx holds the context keys shared by config and utils without an import cycle.
package appctx

import "context"

type ContextKey string

func (c ContextKey) String() string { return string(c) }

var (
	ContextKeyTenantId      = ContextKey("TenantId")
	ContextKeyUserName      = ContextKey("UserName")
	ContextKeyCorrelationId = ContextKey("CorrelationId")
	ContextKeyJobId         = ContextKey("JobId")

	// ContextKeyIsAdmin marks internal admin requests; tenant scoping is bypassed.
	ContextKeyIsAdmin = ContextKey("IsAdmin")
	// ContextKeySkipTenantScope marks system work that spans tenants.
	ContextKeySkipTenantScope = ContextKey("SkipTenantScope")
)

// Value returns the value stored under key when it has type T.
func Value[T any](ctx context.Context, key ContextKey) (T, bool) {
	v, ok := ctx.Value(key).(T)
	return v, ok
}

func Set(ctx context.Context, key ContextKey, value any) context.Context {
	return context.WithValue(ctx, key, value)
}
