package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Span attribute keys.
const (
	AttrPlaybookID     = "playbook.id"
	AttrProgressID     = "progress.id"
	AttrUserID         = "user.id"
	AttrOrganizationID = "organization.id"
	AttrStepID         = "step.id"
	AttrStepType       = "step.type"
	AttrOutcome        = "verification.outcome"
	AttrStatus         = "journey.status"
	AttrPercentage     = "journey.percentage"
	AttrNewlyCompleted = "journey.newly_completed"
	AttrHTTPRoute      = "http.route"
	AttrHTTPMethod     = "http.method"
	AttrHTTPStatus     = "http.status_code"
)

// Span name prefixes.
const (
	SpanPrefixEngine = "engine."
	SpanPrefixVerify = "verify."
	SpanPrefixHTTP   = "http."
)

// Event names.
const (
	EventStepCompleted    = "step.completed"
	EventJourneyCompleted = "journey.completed"
	EventSaveConflict     = "save.conflict"
)

var noopTracer = noop.NewTracerProvider().Tracer("noop")

// Start begins a span on tracer, or on a no-op tracer when tracer is nil.
func Start(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if tracer == nil {
		tracer = noopTracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End records err on span, if any, and ends it.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}
