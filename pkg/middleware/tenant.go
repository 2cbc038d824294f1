package middleware

import (
	"context"

	"pipelinehub/pkg/tenants"
)

type ctxCallerKey struct{}

func WithCaller(ctx context.Context, c tenants.Caller) context.Context {
	return context.WithValue(ctx, ctxCallerKey{}, c)
}

// CallerFrom returns the authenticated caller; ok is false outside Authenticate.
func CallerFrom(ctx context.Context) (tenants.Caller, bool) {
	c, ok := ctx.Value(ctxCallerKey{}).(tenants.Caller)
	return c, ok
}
