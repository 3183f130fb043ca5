package main

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/AntonStoeckl/loan-ledger-go/internal/config"
)

func noEnvironment(string) (string, bool) {
	return "", false
}

func Test_Run_Help_ReturnsErrHelpAndPrintsUsage(t *testing.T) {
	// arrange
	var stdout, stderr bytes.Buffer

	// act
	err := run([]string{"--help"}, noEnvironment, &stdout, &stderr)

	// assert
	assert.ErrorIs(t, err, pflag.ErrHelp)
	assert.Contains(t, stderr.String(), "--database-dsn")
}

func Test_Run_InvalidConfig_FailsBeforeOpeningTheDatabase(t *testing.T) {
	// arrange
	var stdout, stderr bytes.Buffer

	// act
	err := run([]string{"--log-format", "xml"}, noEnvironment, &stdout, &stderr)

	// assert
	assert.ErrorIs(t, err, config.ErrInvalidConfig)
	assert.Empty(t, stdout.String())
}

func Test_NewLogger_AddsTraceIdentifiersInsideASpan(t *testing.T) {
	// setup
	provider := sdktrace.NewTracerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()

	// arrange
	var out bytes.Buffer

	logger, err := newLogger(config.LogConfig{Level: "info", Format: config.LogFormatJSON}, &out)
	require.NoError(t, err)

	ctx, span := provider.Tracer("test").Start(context.Background(), "op")

	// act
	logger.InfoContext(ctx, "inside span")
	span.End()

	// assert
	assert.Equal(t, span.SpanContext().TraceID().String(), jsoniter.Get(out.Bytes(), logAttrTraceID).ToString())
	assert.Equal(t, span.SpanContext().SpanID().String(), jsoniter.Get(out.Bytes(), logAttrSpanID).ToString())
}

func Test_NewLogger_WithoutSpan_HasNoTraceIdentifiers(t *testing.T) {
	// arrange
	var out bytes.Buffer

	logger, err := newLogger(config.LogConfig{Level: "debug", Format: config.LogFormatText}, &out)
	require.NoError(t, err)

	// act
	logger.Debug("plain", "loan_id", "0199")

	// assert
	assert.Contains(t, out.String(), "loan_id=0199")
	assert.NotContains(t, out.String(), logAttrTraceID)
}

func Test_NewLogger_RespectsTheLevel(t *testing.T) {
	// arrange
	var out bytes.Buffer

	logger, err := newLogger(config.LogConfig{Level: "warn", Format: config.LogFormatJSON}, &out)
	require.NoError(t, err)

	// act
	logger.Info("dropped")

	// assert
	assert.Empty(t, out.String())
}

func Test_Telemetry_Disabled_UsesThePlainLogger(t *testing.T) {
	// arrange
	telemetry, err := setupTelemetry(context.Background(), config.ObservabilityConfig{Enabled: false})
	require.NoError(t, err)

	// act
	options := telemetry.ledgerOptions(slog.New(slog.DiscardHandler))

	// assert
	assert.Nil(t, telemetry.metrics)
	assert.Len(t, options, 1)
	assert.NoError(t, telemetry.Shutdown(context.Background()))
}

func Test_Telemetry_Enabled_ServesCollectedMetrics(t *testing.T) {
	// setup
	telemetry, err := setupTelemetry(context.Background(), config.ObservabilityConfig{
		Enabled:        true,
		ServiceName:    "loanledger-test",
		ServiceVersion: "test",
	})
	require.NoError(t, err)
	defer func() { _ = telemetry.Shutdown(context.Background()) }()

	// arrange
	telemetry.metrics.IncrementCounter("loanledger_test_total", map[string]string{"operation": "create_loan"})
	telemetry.metrics.IncrementCounter("loanledger_test_total", map[string]string{"operation": "create_loan"})

	recorder := httptest.NewRecorder()

	// act
	telemetry.debugHandler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/debug/metrics", nil))

	// assert
	require.Equal(t, http.StatusOK, recorder.Code)
	assert.Len(t, telemetry.ledgerOptions(slog.New(slog.DiscardHandler)), 3)

	body := recorder.Body.Bytes()
	assert.Equal(t, "loanledger_test_total", jsoniter.Get(body, "metrics", 0, "name").ToString())
	assert.Equal(t, float64(2), jsoniter.Get(body, "metrics", 0, "points", 0, "value").ToFloat64())
	assert.Equal(t, "create_loan", jsoniter.Get(body, "metrics", 0, "points", 0, "attributes", "operation").ToString())
}
