package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey struct{}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, logger)
}

// Ctx retrieves the logger from the context.
// If no logger is found, the global logger is returned.
func Ctx(ctx context.Context) zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(zerolog.Logger); ok {
		return l
	}
	return L()
}

// WithFields returns a context whose logger carries the extra string fields,
// given as alternating key/value pairs.
func WithFields(ctx context.Context, kv ...string) context.Context {
	lc := Ctx(ctx).With()
	for i := 0; i+1 < len(kv); i += 2 {
		lc = lc.Str(kv[i], kv[i+1])
	}
	return WithLogger(ctx, lc.Logger())
}
