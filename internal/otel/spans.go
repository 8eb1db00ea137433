package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by spans and metrics.
var (
	AttrHook     = attribute.Key("need.hook")
	AttrTaskUUID = attribute.Key("need.task.uuid")
	AttrLevel    = attribute.Key("need.level")
	AttrTrigger  = attribute.Key("need.trigger")
	AttrSource   = attribute.Key("need.priority.source")
	AttrOutcome  = attribute.Key("need.outcome")
	AttrTaskArgs = attribute.Key("need.task.args")
)

// StartSpan starts an internal span with common attributes.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for a call out to the task command.
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
