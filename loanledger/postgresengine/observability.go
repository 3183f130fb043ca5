package postgresengine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// Metric names.
const (
	metricOperationDuration = "loanledger_operation_duration_seconds"
	metricOperationsTotal   = "loanledger_operations_total"
	metricDatabaseErrors    = "loanledger_database_errors_total"
	metricLoansSwept        = "loanledger_loans_swept_total"
	metricOutOfStock        = "loanledger_out_of_stock_total"
)

// Operation names, used as span suffix, metric label and log message suffix.
const (
	operationAddTitle       = "add_title"
	operationGetTitle       = "get_title"
	operationWithdrawTitle  = "withdraw_title"
	operationCreateLoan     = "create_loan"
	operationGetByID        = "get_by_id"
	operationGetByBorrower  = "get_by_borrower"
	operationGetAll         = "get_all"
	operationSweepOverdue   = "sweep_overdue"
	operationRegisterReturn = "register_return"
	operationApprove        = "approve"
	operationCancel         = "cancel"
	spanNamePrefix          = "loanledger."
)

// Span attributes and metric labels.
const (
	spanAttrOperation    = "operation"
	spanAttrErrorType    = "error_type"
	spanAttrLoanID       = "loan_id"
	spanAttrTitleID      = "title_id"
	spanAttrBorrowerID   = "borrower_id"
	spanAttrStatus       = "loan_status"
	spanAttrLoanCount    = "loan_count"
	spanAttrRowsAffected = "rows_affected"
	spanAttrDurationMS   = "duration_ms"
	labelStatus          = "status"
	statusSuccess        = "success"
	statusError          = "error"
)

// Error types, used as error_type label and span attribute.
const (
	errorTypeNotFound          = "not_found"
	errorTypeOutOfStock        = "out_of_stock"
	errorTypeTitleWithdrawn    = "title_withdrawn"
	errorTypeInvalidTransition = "invalid_transition"
	errorTypeValidation        = "validation"
	errorTypeTransactionFailed = "transaction_failed"
	errorTypeCommitUnknown     = "commit_outcome_unknown"
	errorTypeBuildQuery        = "build_query"
	errorTypeScan              = "row_scan"
	errorTypeDatabase          = "database"
	errorTypeCanceled          = "context_canceled"
	errorTypeTimeout           = "context_timeout"
	errorTypeUnknown           = "unknown"
)

// errorTypeOf classifies an operation error for metrics, spans and log levels.
func errorTypeOf(err error) string {
	switch {
	case errors.Is(err, loanledger.ErrOutOfStock):
		return errorTypeOutOfStock
	case errors.Is(err, loanledger.ErrLoanNotFound), errors.Is(err, loanledger.ErrTitleNotFound):
		return errorTypeNotFound
	case errors.Is(err, loanledger.ErrTitleWithdrawn):
		return errorTypeTitleWithdrawn
	case errors.Is(err, loanledger.ErrInvalidStatusTransition):
		return errorTypeInvalidTransition
	case errors.Is(err, loanledger.ErrNilID),
		errors.Is(err, loanledger.ErrInvalidLoanKind),
		errors.Is(err, loanledger.ErrInvalidDueDate),
		errors.Is(err, loanledger.ErrInvalidDuration),
		errors.Is(err, loanledger.ErrInvalidCopyCount):
		return errorTypeValidation
	case errors.Is(err, loanledger.ErrCommitOutcomeUnknown):
		return errorTypeCommitUnknown
	case errors.Is(err, context.Canceled):
		return errorTypeCanceled
	case errors.Is(err, context.DeadlineExceeded):
		return errorTypeTimeout
	case errors.Is(err, loanledger.ErrTransactionFailed):
		return errorTypeTransactionFailed
	case errors.Is(err, loanledger.ErrBuildingQueryFailed):
		return errorTypeBuildQuery
	case errors.Is(err, loanledger.ErrScanningDBRowFailed):
		return errorTypeScan
	case errors.Is(err, loanledger.ErrQueryingFailed):
		return errorTypeDatabase
	default:
		return errorTypeUnknown
	}
}

// isRejection reports whether an error type is a business rule rejection rather than a failure.
func isRejection(errorType string) bool {
	switch errorType {
	case errorTypeNotFound, errorTypeOutOfStock, errorTypeTitleWithdrawn, errorTypeInvalidTransition, errorTypeValidation:
		return true
	default:
		return false
	}
}

func isDatabaseError(errorType string) bool {
	switch errorType {
	case errorTypeTransactionFailed, errorTypeCommitUnknown, errorTypeBuildQuery, errorTypeScan, errorTypeDatabase:
		return true
	default:
		return false
	}
}

// === Operation Observer Pattern ===
// The observer encapsulates span lifecycle, metrics recording and outcome logging of one operation.

type operationObserver struct {
	l         *Ledger
	ctx       context.Context
	operation string
	span      loanledger.SpanContext
	start     time.Time
}

// startOperation starts the span for an operation and returns the observer together with the span's context.
func (l *Ledger) startOperation(
	ctx context.Context,
	operation string,
	attrs map[string]string,
) (*operationObserver, context.Context) {

	spanAttrs := map[string]string{spanAttrOperation: operation}
	for key, value := range attrs {
		spanAttrs[key] = value
	}

	var span loanledger.SpanContext
	if l.tracingCollector != nil {
		ctx, span = l.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, spanAttrs)
	}

	return &operationObserver{
		l:         l,
		ctx:       ctx,
		operation: operation,
		span:      span,
		start:     time.Now(),
	}, ctx
}

// finishSuccess records the successful outcome. logArgs are appended to the info log line,
// attrs are added to the span.
func (o *operationObserver) finishSuccess(attrs map[string]string, logArgs ...any) {
	duration := time.Since(o.start)

	o.l.recordDuration(o.ctx, o.operation, statusSuccess, duration)
	o.l.incrementCounter(o.ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       statusSuccess,
	})

	if o.span != nil {
		o.span.SetStatus(statusSuccess)
		o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(duration)))
	}

	if o.l.tracingCollector != nil && o.span != nil {
		o.l.tracingCollector.FinishSpan(o.span, statusSuccess, attrs)
	}

	args := append([]any{logAttrDurationMS, toMilliseconds(duration)}, logArgs...)
	o.l.logOperation(o.ctx, logMsgOperation+o.operation, args...)
}

// finishError records the failed outcome and returns err unchanged.
func (o *operationObserver) finishError(err error, logArgs ...any) error {
	duration := time.Since(o.start)
	errorType := errorTypeOf(err)

	o.l.recordDuration(o.ctx, o.operation, statusError, duration)
	o.l.incrementCounter(o.ctx, metricOperationsTotal, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       statusError,
		spanAttrErrorType: errorType,
	})

	if isDatabaseError(errorType) {
		o.l.incrementCounter(o.ctx, metricDatabaseErrors, map[string]string{
			spanAttrOperation: o.operation,
			labelStatus:       statusError,
			spanAttrErrorType: errorType,
		})
	}

	if errorType == errorTypeOutOfStock {
		o.l.incrementCounter(o.ctx, metricOutOfStock, map[string]string{spanAttrOperation: o.operation})
	}

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.span.AddAttribute(spanAttrErrorType, errorType)
		o.span.AddAttribute(spanAttrDurationMS, fmt.Sprintf("%.2f", toMilliseconds(duration)))
	}

	if o.l.tracingCollector != nil && o.span != nil {
		o.l.tracingCollector.FinishSpan(o.span, statusError, map[string]string{spanAttrErrorType: errorType})
	}

	args := append([]any{logAttrErrorType, errorType, logAttrDurationMS, toMilliseconds(duration)}, logArgs...)
	if isRejection(errorType) {
		o.l.logOperation(o.ctx, logMsgOperationRejected+o.operation, args...)
	} else {
		o.l.logError(o.ctx, logMsgOperationFailed+o.operation, err, args...)
	}

	return err
}

// recordValue records a value metric labeled with the observer's operation.
func (o *operationObserver) recordValue(metric string, value float64) {
	o.l.recordValue(o.ctx, metric, value, map[string]string{
		spanAttrOperation: o.operation,
		labelStatus:       statusSuccess,
	})
}

/***** metrics helpers *****/

// recordDuration records the duration metric with context if the collector supports it.
func (l *Ledger) recordDuration(ctx context.Context, operation, status string, duration time.Duration) {
	if l.metricsCollector == nil {
		return
	}

	labels := map[string]string{
		spanAttrOperation: operation,
		labelStatus:       status,
	}

	if contextualCollector, ok := l.metricsCollector.(loanledger.ContextualMetricsCollector); ok {
		contextualCollector.RecordDurationContext(ctx, metricOperationDuration, duration, labels)
	} else {
		l.metricsCollector.RecordDuration(metricOperationDuration, duration, labels)
	}
}

// incrementCounter increments a counter with context if the collector supports it.
func (l *Ledger) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if l.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := l.metricsCollector.(loanledger.ContextualMetricsCollector); ok {
		contextualCollector.IncrementCounterContext(ctx, metric, labels)
	} else {
		l.metricsCollector.IncrementCounter(metric, labels)
	}
}

// recordValue records a value metric with context if the collector supports it.
func (l *Ledger) recordValue(ctx context.Context, metric string, value float64, labels map[string]string) {
	if l.metricsCollector == nil {
		return
	}

	if contextualCollector, ok := l.metricsCollector.(loanledger.ContextualMetricsCollector); ok {
		contextualCollector.RecordValueContext(ctx, metric, value, labels)
	} else {
		l.metricsCollector.RecordValue(metric, value, labels)
	}
}
