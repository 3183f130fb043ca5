package oteladapters_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger/oteladapters"
)

func newTracingCollectorWithExporter() (*oteladapters.TracingCollector, *tracetest.InMemoryExporter, *sdktrace.TracerProvider) {
	exporter := tracetest.NewInMemoryExporter()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSyncer(exporter))

	return oteladapters.NewTracingCollector(provider.Tracer("test")), exporter, provider
}

func spanAttribute(span tracetest.SpanStub, key string) (string, bool) {
	for _, attr := range span.Attributes {
		if attr.Key == attribute.Key(key) {
			return attr.Value.AsString(), true
		}
	}

	return "", false
}

func Test_TracingCollector_SuccessfulSpan(t *testing.T) {
	collector, exporter, _ := newTracingCollectorWithExporter()

	_, spanCtx := collector.StartSpan(context.Background(), "loanledger.create_loan", map[string]string{
		"operation": "create_loan",
		"title_id":  "3f0c",
	})
	spanCtx.AddAttribute("duration_ms", "1.25")
	collector.FinishSpan(spanCtx, "success", map[string]string{"loan_id": "0199"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)

	span := spans[0]
	assert.Equal(t, "loanledger.create_loan", span.Name)
	assert.Equal(t, codes.Ok, span.Status.Code)

	for key, expected := range map[string]string{"operation": "create_loan", "title_id": "3f0c", "duration_ms": "1.25", "loan_id": "0199"} {
		value, found := spanAttribute(span, key)
		assert.True(t, found, "attribute %s missing", key)
		assert.Equal(t, expected, value)
	}
}

func Test_TracingCollector_FailedSpan_CarriesTheErrorType(t *testing.T) {
	collector, exporter, _ := newTracingCollectorWithExporter()

	_, spanCtx := collector.StartSpan(context.Background(), "loanledger.register_return", nil)
	spanCtx.SetStatus("error")
	collector.FinishSpan(spanCtx, "error", map[string]string{"error_type": "invalid_transition"})

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Error, spans[0].Status.Code)
	assert.Equal(t, "loan ledger operation failed: invalid_transition", spans[0].Status.Description)
}

func Test_TracingCollector_ChildSpansFollowTheCallerContext(t *testing.T) {
	collector, exporter, provider := newTracingCollectorWithExporter()

	parentCtx, parent := provider.Tracer("http").Start(context.Background(), "POST /loans")
	_, spanCtx := collector.StartSpan(parentCtx, "loanledger.create_loan", nil)
	collector.FinishSpan(spanCtx, "success", nil)
	parent.End()

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, spans[1].SpanContext.TraceID(), spans[0].SpanContext.TraceID())
	assert.Equal(t, spans[1].SpanContext.SpanID(), spans[0].Parent.SpanID())
}

func Test_TracingCollector_UnknownStatusBecomesAnAttribute(t *testing.T) {
	collector, exporter, _ := newTracingCollectorWithExporter()

	_, spanCtx := collector.StartSpan(context.Background(), "loanledger.sweep_overdue", nil)
	collector.FinishSpan(spanCtx, "throttled", nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, codes.Unset, spans[0].Status.Code)

	value, found := spanAttribute(spans[0], "status")
	assert.True(t, found)
	assert.Equal(t, "throttled", value)
}
