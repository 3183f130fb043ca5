package notify

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const (
	defaultBufferSize = 256

	metricEventsDropped        = "loanledger_events_dropped_total"
	metricNotificationFailures = "loanledger_notification_failures_total"

	labelEventType       = "event_type"
	labelConsumer        = "consumer"
	consumerAudit        = "audit"
	consumerAchievements = "achievements"

	logMsgEventDropped        = "loan event queue full, dropping event"
	logMsgEventAfterShutdown  = "loan event published after shutdown, dropping event"
	logMsgAuditFailed         = "appending loan audit record failed"
	logMsgAchievementsFailed  = "achievement evaluation failed"
	logMsgAchievementsUpdated = "achievements evaluated"
	logMsgDrainTimeout        = "loan event drain timed out, remaining events are lost"
	logAttrEventType          = "event_type"
	logAttrLoanID             = "loan_id"
	logAttrBorrowerID         = "borrower_id"
	logAttrUnlocked           = "unlocked"
	logAttrError              = "error"
)

// ErrConsumerPanicked wraps a panic raised by an audit log or achievement evaluator.
var ErrConsumerPanicked = errors.New("loan event consumer panicked")

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithAuditLog sets the audit sink that receives every event.
func WithAuditLog(auditLog AuditLog) Option {
	return func(d *Dispatcher) { d.auditLog = auditLog }
}

// WithAchievementEvaluator sets the evaluator that runs after every LoanReturned event.
func WithAchievementEvaluator(evaluator AchievementEvaluator) Option {
	return func(d *Dispatcher) { d.evaluator = evaluator }
}

// WithLogger sets the logger for dropped events and consumer failures.
func WithLogger(logger loanledger.Logger) Option {
	return func(d *Dispatcher) { d.logger = logger }
}

// WithMetrics sets the collector for the dropped and failure counters.
func WithMetrics(collector loanledger.MetricsCollector) Option {
	return func(d *Dispatcher) { d.metricsCollector = collector }
}

// WithBufferSize sets the queue capacity. Values below 1 are ignored.
func WithBufferSize(size int) Option {
	return func(d *Dispatcher) {
		if size > 0 {
			d.bufferSize = size
		}
	}
}

// Dispatcher queues loan events and delivers them to the consumers on one goroutine, in publish order.
type Dispatcher struct {
	auditLog         AuditLog
	evaluator        AchievementEvaluator
	logger           loanledger.Logger
	metricsCollector loanledger.MetricsCollector
	bufferSize       int

	events    chan loanledger.LoanEvent
	wg        sync.WaitGroup
	startOnce sync.Once

	shutdownMu sync.RWMutex
	shutdown   bool
}

// NewDispatcher creates a Dispatcher. Call Start to begin delivery.
func NewDispatcher(options ...Option) *Dispatcher {
	d := &Dispatcher{bufferSize: defaultBufferSize}
	for _, option := range options {
		option(d)
	}

	d.events = make(chan loanledger.LoanEvent, d.bufferSize)

	return d
}

// Start begins delivering queued events in a background goroutine until ctx is done or Shutdown is called.
// Calling Start more than once has no effect.
func (d *Dispatcher) Start(ctx context.Context) {
	d.startOnce.Do(func() {
		d.wg.Add(1)
		go d.run(ctx)
	})
}

func (d *Dispatcher) run(ctx context.Context) {
	defer d.wg.Done()

	for {
		select {
		case event, ok := <-d.events:
			if !ok {
				return
			}

			d.deliver(ctx, event)

		case <-ctx.Done():
			return
		}
	}
}

// Publish queues an event without blocking. A full queue drops the event with a warning.
func (d *Dispatcher) Publish(ctx context.Context, event loanledger.LoanEvent) {
	d.shutdownMu.RLock()
	defer d.shutdownMu.RUnlock()

	if d.shutdown {
		d.warn(logMsgEventAfterShutdown, logAttrEventType, event.EventType, logAttrLoanID, event.LoanID.String())
		d.countDropped(ctx, event)

		return
	}

	select {
	case d.events <- event:
	default:
		d.warn(logMsgEventDropped, logAttrEventType, event.EventType, logAttrLoanID, event.LoanID.String())
		d.countDropped(ctx, event)
	}
}

// Shutdown stops accepting events and delivers the queued ones.
// It returns ctx.Err() if ctx ends before the queue is drained.
func (d *Dispatcher) Shutdown(ctx context.Context) error {
	d.shutdownMu.Lock()
	if d.shutdown {
		d.shutdownMu.Unlock()
		return nil
	}

	d.shutdown = true
	close(d.events)
	d.shutdownMu.Unlock()

	drainCtx := context.WithoutCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		// the run loop exits on close or on its own context, whatever is left is delivered here
		d.wg.Wait()
		for event := range d.events {
			d.deliver(drainCtx, event)
		}
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		d.warn(logMsgDrainTimeout)
		return ctx.Err()
	}
}

var _ loanledger.EventPublisher = (*Dispatcher)(nil)

func (d *Dispatcher) deliver(ctx context.Context, event loanledger.LoanEvent) {
	if d.auditLog != nil {
		err := recovered(func() error { return d.auditLog.Append(ctx, AuditRecordFromEvent(event)) })
		if err != nil {
			d.warn(logMsgAuditFailed, logAttrEventType, event.EventType, logAttrLoanID, event.LoanID.String(), logAttrError, err.Error())
			d.countFailure(ctx, consumerAudit, event)
		}
	}

	if d.evaluator != nil && event.EventType == loanledger.LoanReturnedEventType {
		var result AchievementResult

		err := recovered(func() error {
			var evalErr error
			result, evalErr = d.evaluator.Evaluate(ctx, event.BorrowerID)

			return evalErr
		})
		if err != nil {
			d.warn(logMsgAchievementsFailed, logAttrBorrowerID, event.BorrowerID.String(), logAttrError, err.Error())
			d.countFailure(ctx, consumerAchievements, event)

			return
		}

		if d.logger != nil {
			d.logger.Info(logMsgAchievementsUpdated, logAttrBorrowerID, event.BorrowerID.String(), logAttrUnlocked, len(result.Unlocked))
		}
	}
}

// recovered runs call and turns a panic into ErrConsumerPanicked, so one bad consumer cannot stop the run loop.
func recovered(call func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrConsumerPanicked, r)
		}
	}()

	return call()
}

func (d *Dispatcher) warn(message string, args ...any) {
	if d.logger != nil {
		d.logger.Warn(message, args...)
	}
}

func (d *Dispatcher) countDropped(ctx context.Context, event loanledger.LoanEvent) {
	d.increment(ctx, metricEventsDropped, map[string]string{labelEventType: event.EventType})
}

func (d *Dispatcher) countFailure(ctx context.Context, consumer string, event loanledger.LoanEvent) {
	d.increment(ctx, metricNotificationFailures, map[string]string{labelConsumer: consumer, labelEventType: event.EventType})
}

func (d *Dispatcher) increment(ctx context.Context, metric string, labels map[string]string) {
	if d.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := d.metricsCollector.(loanledger.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
		return
	}

	d.metricsCollector.IncrementCounter(metric, labels)
}
