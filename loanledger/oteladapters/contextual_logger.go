package oteladapters

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/log"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// SlogBridgeLogger implements loanledger.ContextualLogger with a *slog.Logger.
// Created by NewSlogBridgeLogger it writes through the OpenTelemetry slog bridge,
// so every record carries the trace and span id of the ledger operation that emitted it.
type SlogBridgeLogger struct {
	logger *slog.Logger
}

// NewSlogBridgeLogger creates a logger on the global OpenTelemetry LoggerProvider.
func NewSlogBridgeLogger(name string) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name)}
}

// NewSlogBridgeLoggerWithProvider creates a logger on an explicit LoggerProvider.
func NewSlogBridgeLoggerWithProvider(name string, provider log.LoggerProvider) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: otelslog.NewLogger(name, otelslog.WithLoggerProvider(provider))}
}

// NewSlogBridgeLoggerWithHandler wraps a plain slog.Handler. There is no trace correlation in this mode.
func NewSlogBridgeLoggerWithHandler(handler slog.Handler) *SlogBridgeLogger {
	return &SlogBridgeLogger{logger: slog.New(handler)}
}

func (l *SlogBridgeLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.DebugContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.InfoContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.WarnContext(ctx, msg, args...)
}

func (l *SlogBridgeLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.ErrorContext(ctx, msg, args...)
}

var _ loanledger.ContextualLogger = (*SlogBridgeLogger)(nil)

// OTelLogger implements loanledger.ContextualLogger on the OpenTelemetry log API directly.
type OTelLogger struct {
	logger log.Logger
}

// NewOTelLogger wraps an OpenTelemetry log.Logger.
func NewOTelLogger(logger log.Logger) *OTelLogger {
	return &OTelLogger{logger: logger}
}

func (l *OTelLogger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.logger.Emit(ctx, buildRecord(log.SeverityDebug, msg, args...))
}

func (l *OTelLogger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.logger.Emit(ctx, buildRecord(log.SeverityInfo, msg, args...))
}

func (l *OTelLogger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.logger.Emit(ctx, buildRecord(log.SeverityWarn, msg, args...))
}

func (l *OTelLogger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.logger.Emit(ctx, buildRecord(log.SeverityError, msg, args...))
}

var _ loanledger.ContextualLogger = (*OTelLogger)(nil)

// buildRecord turns slog style key/value args into a log record.
// A trailing key without value and non-string keys are dropped.
func buildRecord(severity log.Severity, msg string, args ...any) log.Record {
	var record log.Record
	record.SetSeverity(severity)
	record.SetSeverityText(severity.String())
	record.SetBody(log.StringValue(msg))

	for i := 0; i+1 < len(args); i += 2 {
		key, ok := args[i].(string)
		if !ok {
			continue
		}

		record.AddAttributes(logKeyValue(key, args[i+1]))
	}

	return record
}

func logKeyValue(key string, value any) log.KeyValue {
	switch v := value.(type) {
	case string:
		return log.String(key, v)
	case bool:
		return log.Bool(key, v)
	case int:
		return log.Int(key, v)
	case int64:
		return log.Int64(key, v)
	case float64:
		return log.Float64(key, v)
	default:
		return log.String(key, slog.AnyValue(v).String())
	}
}
