package oteladapters

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const (
	statusSuccess   = "success"
	statusError     = "error"
	attrStatus      = "status"
	attrErrorType   = "error_type"
	spanErrorDesc   = "loan ledger operation failed"
	spanErrorPrefix = "loan ledger operation failed: "
)

// TracingCollector implements loanledger.TracingCollector on an OpenTelemetry tracer.
// Ledger spans become children of whatever span the caller's context carries.
type TracingCollector struct {
	tracer trace.Tracer
}

// NewTracingCollector creates a collector on the given tracer.
func NewTracingCollector(tracer trace.Tracer) *TracingCollector {
	return &TracingCollector{tracer: tracer}
}

// StartSpan starts an internal span with the given string attributes.
func (t *TracingCollector) StartSpan(
	ctx context.Context,
	name string,
	attrs map[string]string,
) (context.Context, loanledger.SpanContext) {

	spanCtx, span := t.tracer.Start(ctx, name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(toAttributes(attrs)...),
	)

	return spanCtx, &OTelSpanContext{span: span}
}

// FinishSpan sets the final attributes and status and ends the span.
// Span contexts that were not created by this collector are ignored.
func (t *TracingCollector) FinishSpan(spanCtx loanledger.SpanContext, status string, attrs map[string]string) {
	otelSpanCtx, ok := spanCtx.(*OTelSpanContext)
	if !ok {
		return
	}

	otelSpanCtx.span.SetAttributes(toAttributes(attrs)...)

	if errorType, hasType := attrs[attrErrorType]; status == statusError && hasType {
		otelSpanCtx.span.SetStatus(codes.Error, spanErrorPrefix+errorType)
	} else {
		otelSpanCtx.SetStatus(status)
	}

	otelSpanCtx.span.End()
}

var _ loanledger.TracingCollector = (*TracingCollector)(nil)

// OTelSpanContext wraps an OpenTelemetry span as loanledger.SpanContext.
type OTelSpanContext struct {
	span trace.Span
}

// SetStatus maps success to codes.Ok and error to codes.Error. Other values are recorded as a status attribute.
func (s *OTelSpanContext) SetStatus(status string) {
	switch status {
	case statusSuccess:
		s.span.SetStatus(codes.Ok, "")
	case statusError:
		s.span.SetStatus(codes.Error, spanErrorDesc)
	default:
		s.span.SetAttributes(attribute.String(attrStatus, status))
	}
}

func (s *OTelSpanContext) AddAttribute(key, value string) {
	s.span.SetAttributes(attribute.String(key, value))
}

var _ loanledger.SpanContext = (*OTelSpanContext)(nil)
