package shared

import (
	"context"

	"github.com/google/uuid"
)

type traceKey struct{}
type taskUUIDKey struct{}

// WithTraceID attaches a trace_id to the context.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceKey{}, traceID)
}

// TraceID extracts trace_id from context. Returns "-" if absent.
func TraceID(ctx context.Context) string {
	if v, ok := ctx.Value(traceKey{}).(string); ok && v != "" {
		return v
	}
	return "-"
}

// NewTraceID generates a new trace_id.
func NewTraceID() string {
	return uuid.NewString()
}

// WithTaskUUID attaches the uuid of the task a hook is processing.
func WithTaskUUID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, taskUUIDKey{}, id)
}

// TaskUUID extracts the task uuid from context. Returns "" if absent.
func TaskUUID(ctx context.Context) string {
	if v, ok := ctx.Value(taskUUIDKey{}).(string); ok {
		return v
	}
	return ""
}
