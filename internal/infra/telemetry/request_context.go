package telemetry

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type requestContextKey struct{}

func NewRequestID() string {
	return uuid.NewString()
}

// WithRequestID attaches a correlation ID to the context. When id is empty a
// fresh one is generated.
func WithRequestID(ctx context.Context, id string) (context.Context, string) {
	if ctx == nil {
		ctx = context.Background()
	}
	if existing, ok := RequestIDFromContext(ctx); ok && id == "" {
		return ctx, existing
	}
	if id == "" {
		id = NewRequestID()
	}
	return context.WithValue(ctx, requestContextKey{}, id), id
}

func RequestIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	id, ok := ctx.Value(requestContextKey{}).(string)
	return id, ok && id != ""
}

// LoggerWithRequest annotates a logger with the context's correlation ID.
func LoggerWithRequest(ctx context.Context, base *zap.Logger) *zap.Logger {
	logger := base
	if logger == nil {
		logger = zap.NewNop()
	}
	if id, ok := RequestIDFromContext(ctx); ok {
		return logger.With(RequestIDField(id))
	}
	return logger
}
