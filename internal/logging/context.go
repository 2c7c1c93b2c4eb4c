package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

type contextAttrs struct {
	stage string
	jobID int64
}

// WithStage records the active stage name on the context.
func WithStage(ctx context.Context, stage string) context.Context {
	attrs := attrsFrom(ctx)
	attrs.stage = stage
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithJobID records the active job identifier on the context.
func WithJobID(ctx context.Context, jobID int64) context.Context {
	attrs := attrsFrom(ctx)
	attrs.jobID = jobID
	return context.WithValue(ctx, contextKey{}, attrs)
}

// WithContext derives a logger carrying whatever identity the context holds.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	attrs := attrsFrom(ctx)
	if attrs.stage != "" {
		logger = logger.With(String(FieldStage, attrs.stage))
	}
	if attrs.jobID != 0 {
		logger = logger.With(Int64(FieldJobID, attrs.jobID))
	}
	return logger
}

func attrsFrom(ctx context.Context) contextAttrs {
	if ctx == nil {
		return contextAttrs{}
	}
	if attrs, ok := ctx.Value(contextKey{}).(contextAttrs); ok {
		return attrs
	}
	return contextAttrs{}
}
