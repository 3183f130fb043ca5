// Package oteladapters implements the loanledger observability interfaces on top of OpenTelemetry.
//
// The ledger itself only knows loanledger.ContextualLogger, loanledger.MetricsCollector and
// loanledger.TracingCollector. The adapters in this package map them to the slog bridge,
// OpenTelemetry meters and OpenTelemetry tracers:
//
//	meter := otel.Meter("loanledger")
//	tracer := otel.Tracer("loanledger")
//
//	ledger, err := postgresengine.NewLedgerFromPGXPool(pool,
//		postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("loanledger")),
//		postgresengine.WithMetrics(oteladapters.NewMetricsCollector(meter)),
//		postgresengine.WithTracing(oteladapters.NewTracingCollector(tracer)),
//	)
package oteladapters
