package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys used by the registry.
const (
	AttrRegistryID   = "registry.id"
	AttrIndexType    = "registry.index.type"
	AttrIndexName    = "registry.index.name"
	AttrPriority     = "registry.priority"
	AttrFallback     = "registry.factory.fallback"
	AttrObjectCount  = "registry.objects"
	AttrContractSize = "registry.contracts"
	AttrShutdown     = "registry.shutting_down"

	AttrErrorMessage = "error.message"
)

// Span names.
const (
	SpanBuild         = "registry.build"
	SpanReset         = "registry.reset"
	SpanTestContracts = "registry.test_contracts"
	SpanShutdown      = "registry.shutdown"
)

// Span events.
const (
	EventCacheHit       = "cache.hit"
	EventObjectClosed   = "object.closed"
	EventContractFailed = "contract.failed"
)

var noopTracer = noop.NewTracerProvider().Tracer("noop")

// Start opens an internal span. A nil tracer yields a no-op span.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noopTracer
	}
	return tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...),
	)
}

// End records err (if any) as the span outcome and ends the span.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String(AttrErrorMessage, err.Error()))
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
