// Package snsctx carries per call diagnostics switches through contexts.
package snsctx

import "context"

type verboseKey struct{}

// IsVerbose reports whether bus backends should dump the frames they
// exchange.
func IsVerbose(ctx context.Context) bool {
	v, _ := ctx.Value(verboseKey{}).(bool)
	return v
}

func SetVerbose(ctx context.Context, value bool) context.Context {
	return context.WithValue(ctx, verboseKey{}, value)
}
