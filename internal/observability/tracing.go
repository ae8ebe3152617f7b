package observability

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry tracer with the span helpers the saga
// orchestrator and routing engine call at each step/decision boundary.
// Unlike the teacher's internal/observability/tracing.go, this carries no
// OTLP exporter or SDK: the coordinator core emits spans against whatever
// TracerProvider the embedding process has already installed with
// otel.SetTracerProvider, or the package no-op default if none was set.
// Wiring an exporter is an operational concern of the process embedding
// this module, not of the core.
type Tracer struct {
	tracer trace.Tracer
}

// NewTracer returns a Tracer bound to the globally configured provider.
func NewTracer(name string) *Tracer {
	return &Tracer{tracer: otel.Tracer(name)}
}

// StartSpan starts a new span.
func (t *Tracer) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartSpanWithKind starts a new span with an explicit kind.
func (t *Tracer) StartSpanWithKind(ctx context.Context, name string, kind trace.SpanKind, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithSpanKind(kind), trace.WithAttributes(attrs...))
}

// AddEvent adds an event to the span in ctx, if any is recording.
func AddEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.AddEvent(name, trace.WithAttributes(attrs...))
	}
}

// SetAttributes sets attributes on the span in ctx, if any is recording.
func SetAttributes(ctx context.Context, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetAttributes(attrs...)
	}
}

// RecordError records err on the span in ctx, if any is recording.
func RecordError(ctx context.Context, err error, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.RecordError(err, trace.WithAttributes(attrs...))
	}
}

// SetStatus sets the status of the span in ctx, if any is recording.
func SetStatus(ctx context.Context, code codes.Code, description string) {
	span := trace.SpanFromContext(ctx)
	if span.IsRecording() {
		span.SetStatus(code, description)
	}
}

// Attribute keys shared by the saga, routing and validation spans.
var (
	AttrPaymentID   = attribute.Key("payment.id")
	AttrTenantID    = attribute.Key("tenant.id")
	AttrSagaID      = attribute.Key("saga.id")
	AttrSagaStep    = attribute.Key("saga.step")
	AttrSagaStatus  = attribute.Key("saga.status")
	AttrTxnID       = attribute.Key("transaction.id")
	AttrRuleID      = attribute.Key("rule.id")
	AttrDecisionID  = attribute.Key("routing.decision_id")
	AttrRiskLevel   = attribute.Key("validation.risk_level")
	AttrActionType  = attribute.Key("routing.action_type")
)

// TraceSagaStep starts a span covering one saga step execution.
func TraceSagaStep(ctx context.Context, tracer *Tracer, sagaID, stepID string) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "saga.step",
		AttrSagaID.String(sagaID),
		AttrSagaStep.String(stepID),
	)
}

// TraceValidation starts a span covering one validation run.
func TraceValidation(ctx context.Context, tracer *Tracer, paymentID string) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "validation.run", AttrPaymentID.String(paymentID))
}

// TraceRoutingDecision starts a span covering one routing decision.
func TraceRoutingDecision(ctx context.Context, tracer *Tracer, paymentID string) (context.Context, trace.Span) {
	return tracer.StartSpan(ctx, "routing.decide", AttrPaymentID.String(paymentID))
}
