// Command loanledger serves the loan ledger over HTTP and runs the scheduled overdue sweep.
//
// Configuration is read from --config / LOANLEDGER_CONFIG, LOANLEDGER_* variables and flags,
// see package internal/config. Run with --help for the flag list.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/loan-ledger-go/internal/config"
	"github.com/AntonStoeckl/loan-ledger-go/internal/httpapi"
	"github.com/AntonStoeckl/loan-ledger-go/internal/scheduler"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/notify"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
)

func main() {
	if err := run(os.Args[1:], os.LookupEnv, os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}

		_, _ = fmt.Fprintln(os.Stderr, "loanledger:", err)
		os.Exit(1)
	}
}

func run(args []string, lookupEnv config.LookupEnvFunc, stdout, stderr io.Writer) error {
	cfg, err := config.Load(args, lookupEnv, stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger, err := newLogger(cfg.Log, stdout)
	if err != nil {
		return err
	}

	telemetry, err := setupTelemetry(ctx, cfg.Observability)
	if err != nil {
		return fmt.Errorf("set up telemetry: %w", err)
	}

	defer func() {
		if shutdownErr := telemetry.Shutdown(context.WithoutCancel(ctx)); shutdownErr != nil {
			logger.Warn("telemetry shutdown failed", "error", shutdownErr.Error())
		}
	}()

	connections, err := config.OpenConnections(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer connections.Close()

	dispatcherOptions := []notify.Option{notify.WithLogger(logger)}
	if telemetry.metrics != nil {
		dispatcherOptions = append(dispatcherOptions, notify.WithMetrics(telemetry.metrics))
	}

	if cfg.Audit.Path != "" {
		auditLog, openErr := notify.OpenJSONLinesAuditLog(cfg.Audit.Path)
		if openErr != nil {
			return fmt.Errorf("open audit log: %w", openErr)
		}

		defer func() {
			if closeErr := auditLog.Close(); closeErr != nil {
				logger.Warn("closing audit log failed", "error", closeErr.Error())
			}
		}()

		dispatcherOptions = append(dispatcherOptions, notify.WithAuditLog(auditLog))
	}

	dispatcher := notify.NewDispatcher(dispatcherOptions...)
	dispatcher.Start(ctx)

	ledgerOptions := []postgresengine.Option{
		postgresengine.WithEventPublisher(dispatcher),
		postgresengine.WithLockTimeout(cfg.Database.LockTimeout),
		postgresengine.WithOpportunisticSweepLimit(rate.Limit(cfg.Sweeper.OpportunisticRate), cfg.Sweeper.OpportunisticBurst),
	}
	ledgerOptions = append(ledgerOptions, telemetry.ledgerOptions(logger)...)

	ledger, err := connections.NewLedger(ledgerOptions...)
	if err != nil {
		return fmt.Errorf("create ledger: %w", err)
	}

	if cfg.Database.CreateSchema {
		if err = ledger.CreateSchema(ctx); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}

	sweepScheduler, err := scheduler.NewSweepScheduler(ledger, cfg.Sweeper.Interval, logger)
	if err != nil {
		return err
	}

	var background sync.WaitGroup
	background.Add(1)

	go func() {
		defer background.Done()
		sweepScheduler.Run(ctx)
	}()

	serverOptions := []httpapi.Option{
		httpapi.WithLogger(logger),
		httpapi.WithHealthCheck(connections.Ping),
	}
	if telemetry.metrics != nil {
		serverOptions = append(serverOptions, httpapi.WithRetryMetrics(telemetry.metrics), httpapi.WithDebugHandler(telemetry.debugHandler()))
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      httpapi.NewServer(ledger, serverOptions...),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)

	go func() {
		logger.Info("loan ledger listening", "addr", cfg.HTTP.Addr, "adapter", connections.Adapter())

		if listenErr := httpServer.ListenAndServe(); listenErr != nil && !errors.Is(listenErr, http.ErrServerClosed) {
			serveErr <- listenErr
		}

		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err = <-serveErr:
		stop()
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if shutdownErr := httpServer.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn("http shutdown failed", "error", shutdownErr.Error())
	}

	background.Wait()

	if drainErr := dispatcher.Shutdown(shutdownCtx); drainErr != nil {
		logger.Warn("loan event dispatcher shutdown failed", "error", drainErr.Error())
	}

	logger.Info("loan ledger stopped")

	return err
}
