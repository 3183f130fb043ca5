package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	jsoniter "github.com/json-iterator/go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/AntonStoeckl/loan-ledger-go/internal/config"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/oteladapters"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
)

const instrumentationName = "github.com/AntonStoeckl/loan-ledger-go"

var jsonAPI = jsoniter.ConfigCompatibleWithStandardLibrary

// telemetry holds the OpenTelemetry SDK providers. The zero value means observability is off.
//
// There is no exporter: spans exist for log correlation, metrics are pulled
// through a manual reader and served under /debug/metrics.
type telemetry struct {
	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
	reader         *sdkmetric.ManualReader
	metrics        *oteladapters.MetricsCollector
	tracing        *oteladapters.TracingCollector
}

func setupTelemetry(ctx context.Context, cfg config.ObservabilityConfig) (*telemetry, error) {
	if !cfg.Enabled {
		return &telemetry{}, nil
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.AlwaysSample())),
	)

	reader := sdkmetric.NewManualReader()
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(reader),
		sdkmetric.WithResource(res),
	)

	otel.SetTracerProvider(tracerProvider)
	otel.SetMeterProvider(meterProvider)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &telemetry{
		tracerProvider: tracerProvider,
		meterProvider:  meterProvider,
		reader:         reader,
		metrics:        oteladapters.NewMetricsCollector(meterProvider.Meter(instrumentationName)),
		tracing:        oteladapters.NewTracingCollector(tracerProvider.Tracer(instrumentationName)),
	}, nil
}

// ledgerOptions returns the logging and instrumentation options for the ledger.
// With observability on, logging goes through the contextual logger only, so records carry trace ids.
func (t *telemetry) ledgerOptions(logger *slog.Logger) []postgresengine.Option {
	if t.metrics == nil {
		return []postgresengine.Option{postgresengine.WithLogger(logger)}
	}

	return []postgresengine.Option{
		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLoggerWithHandler(logger.Handler())),
		postgresengine.WithMetrics(t.metrics),
		postgresengine.WithTracing(t.tracing),
	}
}

// Shutdown flushes and stops the providers.
func (t *telemetry) Shutdown(ctx context.Context) error {
	var errs []error

	if t.tracerProvider != nil {
		errs = append(errs, t.tracerProvider.Shutdown(ctx))
	}

	if t.meterProvider != nil {
		errs = append(errs, t.meterProvider.Shutdown(ctx))
	}

	return errors.Join(errs...)
}

type metricSnapshot struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Unit        string          `json:"unit,omitempty"`
	Points      []pointSnapshot `json:"points"`
}

type pointSnapshot struct {
	Attributes map[string]string `json:"attributes,omitempty"`
	Value      float64           `json:"value"`
	Count      uint64            `json:"count,omitempty"`
}

// debugHandler serves the current metric values as JSON.
func (t *telemetry) debugHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var collected metricdata.ResourceMetrics
		if err := t.reader.Collect(r.Context(), &collected); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		_ = jsonAPI.NewEncoder(w).Encode(map[string][]metricSnapshot{"metrics": snapshotOf(collected)})
	})
}

func snapshotOf(collected metricdata.ResourceMetrics) []metricSnapshot {
	snapshots := make([]metricSnapshot, 0)

	for _, scope := range collected.ScopeMetrics {
		for _, m := range scope.Metrics {
			snapshot := metricSnapshot{Name: m.Name, Description: m.Description, Unit: m.Unit, Points: make([]pointSnapshot, 0)}

			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, point := range data.DataPoints {
					snapshot.Points = append(snapshot.Points, pointSnapshot{Attributes: attributesOf(point.Attributes.ToSlice()), Value: float64(point.Value)})
				}
			case metricdata.Sum[float64]:
				for _, point := range data.DataPoints {
					snapshot.Points = append(snapshot.Points, pointSnapshot{Attributes: attributesOf(point.Attributes.ToSlice()), Value: point.Value})
				}
			case metricdata.Gauge[float64]:
				for _, point := range data.DataPoints {
					snapshot.Points = append(snapshot.Points, pointSnapshot{Attributes: attributesOf(point.Attributes.ToSlice()), Value: point.Value})
				}
			case metricdata.Histogram[float64]:
				for _, point := range data.DataPoints {
					snapshot.Points = append(snapshot.Points, pointSnapshot{Attributes: attributesOf(point.Attributes.ToSlice()), Value: point.Sum, Count: point.Count})
				}
			}

			snapshots = append(snapshots, snapshot)
		}
	}

	return snapshots
}

func attributesOf(kvs []attribute.KeyValue) map[string]string {
	if len(kvs) == 0 {
		return nil
	}

	attributes := make(map[string]string, len(kvs))
	for _, kv := range kvs {
		attributes[string(kv.Key)] = kv.Value.Emit()
	}

	return attributes
}
