package log

import (
	"context"
	"log/slog"
)

type attrsKey struct{}

// WithAttrs returns a context carrying additional slog attributes that
// ContextHandler will merge into every record logged through it. Nested
// calls accumulate attributes rather than replacing them.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, attrsKey{}, merged)
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	attrs, _ := ctx.Value(attrsKey{}).([]slog.Attr)
	return attrs
}
