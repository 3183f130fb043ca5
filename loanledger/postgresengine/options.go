package postgresengine

import (
	"time"

	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// Option defines a functional option for configuring the Ledger.
type Option func(*Ledger) error

// WithTitlesTableName sets the table name for catalog titles.
func WithTitlesTableName(tableName string) Option {
	return func(l *Ledger) error {
		if err := validateTableName(tableName); err != nil {
			return err
		}

		l.titlesTable = tableName

		return nil
	}
}

// WithLoansTableName sets the table name for loans.
func WithLoansTableName(tableName string) Option {
	return func(l *Ledger) error {
		if err := validateTableName(tableName); err != nil {
			return err
		}

		l.loansTable = tableName

		return nil
	}
}

// WithLogger sets the logger for the Ledger.
// The logger will receive messages at different levels based on the logger's configured level:
//
// Debug level: SQL statements with execution timing (development use)
// Info level: Operation outcomes and durations (production-safe)
// Warn level: Non-critical issues like cleanup failures or a failed opportunistic sweep
// Error level: Critical failures that cause operation failures.
func WithLogger(logger loanledger.Logger) Option {
	return func(l *Ledger) error {
		l.logger = logger
		return nil
	}
}

// WithContextualLogger sets the contextual logger for the Ledger.
// The contextual logger receives the same messages as the Logger, together with the context,
// so trace and span IDs can be correlated.
func WithContextualLogger(logger loanledger.ContextualLogger) Option {
	return func(l *Ledger) error {
		l.contextualLogger = logger
		return nil
	}
}

// WithMetrics sets the metrics collector for the Ledger.
// If the collector also implements loanledger.ContextualMetricsCollector, the context-aware methods are used.
func WithMetrics(collector loanledger.MetricsCollector) Option {
	return func(l *Ledger) error {
		l.metricsCollector = collector
		return nil
	}
}

// WithTracing sets the tracing collector for the Ledger.
// Every public operation gets one span.
func WithTracing(collector loanledger.TracingCollector) Option {
	return func(l *Ledger) error {
		l.tracingCollector = collector
		return nil
	}
}

// WithClock replaces the system clock, mainly for tests that need to advance time.
func WithClock(clock loanledger.Clock) Option {
	return func(l *Ledger) error {
		if clock == nil {
			return nil
		}

		l.clock = clock

		return nil
	}
}

// WithEventPublisher sets the receiver of post-commit LoanEvents.
func WithEventPublisher(publisher loanledger.EventPublisher) Option {
	return func(l *Ledger) error {
		l.publisher = publisher
		return nil
	}
}

// WithLockTimeout bounds how long a transaction waits for a row lock.
// A transaction that runs into the timeout fails with loanledger.ErrTransactionFailed.
// Zero keeps the server default.
func WithLockTimeout(timeout time.Duration) Option {
	return func(l *Ledger) error {
		if timeout < 0 {
			timeout = 0
		}

		l.lockTimeout = timeout

		return nil
	}
}

// WithOpportunisticSweepLimit throttles the overdue sweeps triggered by GetAll with an overdue refresh.
// Without this option every such read sweeps first. SweepOverdue itself is never throttled.
func WithOpportunisticSweepLimit(limit rate.Limit, burst int) Option {
	return func(l *Ledger) error {
		if burst < 1 {
			burst = 1
		}

		l.sweepLimiter = rate.NewLimiter(limit, burst)

		return nil
	}
}
