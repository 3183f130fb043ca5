package postgresengine_test

import (
	"context"
	"database/sql"
	"log/slog"
	"testing"
	"time"

	_ "github.com/lib/pq" // postgres driver
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/AntonStoeckl/loan-ledger-go/loanledger"
	. "github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
	. "github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper"
	"github.com/AntonStoeckl/loan-ledger-go/testutil/postgresengine/helper/postgreswrapper"
)

func Test_Observability_SuccessfulCreateLoan_IsMeasuredTracedAndLogged(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, WithClock(clock))
	logHandler := NewLogHandlerSpy(false)
	metrics := NewMetricsCollectorSpy(true)
	tracing := NewTracingCollectorSpy(true)
	ledger := wrapper.LedgerWithOptions(t,
		WithClock(clock),
		WithLogger(slog.New(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing),
	)

	// arrange
	title := GivenTitleWasAdded(t, ctxWithTimeout, ledger, 2)

	// act
	loanID, err := ledger.CreateLoan(ctxWithTimeout, FixtureCreateLoanParams(title.ID, GivenUniqueID(t), clock.Now(), 3))

	// assert
	require.NoError(t, err)

	assert.True(t, metrics.HasDurationRecordForMetric("loanledger_operation_duration_seconds").
		WithOperation("create_loan").
		WithStatus("success").
		Assert())
	assert.True(t, metrics.HasCounterRecordForMetric("loanledger_operations_total").
		WithOperation("create_loan").
		WithStatus("success").
		Assert())

	assert.True(t, tracing.HasSpanRecordForName("loanledger.create_loan").
		WithStatus("success").
		WithStartAttribute("title_id", title.ID.String()).
		WithEndAttribute("loan_id", loanID.String()).
		Assert())

	assert.True(t, logHandler.HasInfoLogWithMessage("loanledger operation: create_loan").
		WithDurationMS().
		WithAttribute("loan_id", loanID.String()).
		WithAttribute("available_copies", "1").
		Assert())
	assert.True(t, logHandler.HasDebugLogWithMessage("executed sql for: insert_loan").
		WithDurationMS().
		WithAttributeKey("query").
		Assert())
}

func Test_Observability_OutOfStock_IsARejection_NotAFailure(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, WithClock(clock))
	logHandler := NewLogHandlerSpy(false)
	metrics := NewMetricsCollectorSpy(true)
	tracing := NewTracingCollectorSpy(true)
	ledger := wrapper.LedgerWithOptions(t,
		WithClock(clock),
		WithLogger(slog.New(logHandler)),
		WithMetrics(metrics),
		WithTracing(tracing),
	)

	// arrange
	title := GivenTitleWasAdded(t, ctxWithTimeout, ledger, 0)

	// act
	_, err := ledger.CreateLoan(ctxWithTimeout, FixtureCreateLoanParams(title.ID, GivenUniqueID(t), clock.Now(), 3))

	// assert
	require.ErrorIs(t, err, ErrOutOfStock)

	assert.True(t, metrics.HasCounterRecordForMetric("loanledger_operations_total").
		WithOperation("create_loan").
		WithStatus("error").
		WithErrorType("out_of_stock").
		Assert())
	assert.Equal(t, 1, metrics.CountCounterRecordsForMetric("loanledger_out_of_stock_total"))
	assert.Equal(t, 0, metrics.CountCounterRecordsForMetric("loanledger_database_errors_total"))

	assert.True(t, tracing.HasSpanRecordForName("loanledger.create_loan").
		WithStatus("error").
		WithEndAttribute("error_type", "out_of_stock").
		Assert())

	assert.True(t, logHandler.HasInfoLogWithMessage("loanledger operation rejected: create_loan").
		WithAttribute("error_type", "out_of_stock").
		Assert())
	assert.False(t, logHandler.HasErrorLogWithMessage("loanledger operation failed: create_loan").Assert())
}

func Test_Observability_SweepRecordsTheNumberOfSweptLoans(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, WithClock(clock))
	metrics := NewMetricsCollectorSpy(true)
	ledger := wrapper.LedgerWithOptions(t, WithClock(clock), WithMetrics(metrics))

	// arrange
	title := GivenTitleWasAdded(t, ctxWithTimeout, ledger, 2)
	GivenActiveLoanWasCreated(t, ctxWithTimeout, ledger, clock, title.ID, 1)
	GivenActiveLoanWasCreated(t, ctxWithTimeout, ledger, clock, title.ID, 1)
	clock.Advance(48 * time.Hour)

	// act
	swept, err := ledger.SweepOverdue(ctxWithTimeout)

	// assert
	require.NoError(t, err)
	assert.Equal(t, int64(2), swept)

	records := metrics.GetValueRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "loanledger_loans_swept_total", records[0].Metric)
	assert.InDelta(t, 2.0, records[0].Value, 0.0001)
	assert.Equal(t, "sweep_overdue", records[0].Labels["operation"])
}

func Test_Observability_ValidationErrors_AreRejectedBeforeTouchingTheDatabase(t *testing.T) {
	// setup
	db, openErr := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable")
	require.NoError(t, openErr)
	t.Cleanup(func() { _ = db.Close() })

	logHandler := NewLogHandlerSpy(false)
	metrics := NewMetricsCollectorSpy(true)
	ledger, err := NewLedgerFromSQLDB(db, WithLogger(slog.New(logHandler)), WithMetrics(metrics))
	require.NoError(t, err)

	// arrange
	params := FixtureCreateLoanParams(GivenUniqueID(t), GivenUniqueID(t), FixtureStartTime, 3)

	// act
	_, createErr := ledger.CreateLoan(context.Background(), params)

	// assert
	assert.ErrorIs(t, createErr, ErrInvalidDueDate)
	assert.True(t, metrics.HasCounterRecordForMetric("loanledger_operations_total").
		WithOperation("create_loan").
		WithErrorType("validation").
		Assert())
	assert.True(t, logHandler.HasInfoLogWithMessage("loanledger operation rejected: create_loan").Assert())
	assert.Equal(t, 0, metrics.CountCounterRecordsForMetric("loanledger_database_errors_total"))
}

func Test_Observability_UnreachableDatabase_IsAFailure(t *testing.T) {
	// setup
	db, openErr := sql.Open("postgres", "postgres://nobody@127.0.0.1:1/none?sslmode=disable&connect_timeout=1")
	require.NoError(t, openErr)
	t.Cleanup(func() { _ = db.Close() })

	logHandler := NewLogHandlerSpy(false)
	metrics := NewMetricsCollectorSpy(true)
	ledger, err := NewLedgerFromSQLDB(db, WithLogger(slog.New(logHandler)), WithMetrics(metrics))
	require.NoError(t, err)

	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// act
	_, sweepErr := ledger.SweepOverdue(ctxWithTimeout)

	// assert
	require.Error(t, sweepErr)
	assert.ErrorIs(t, sweepErr, ErrTransactionFailed, "connection failures are retryable")
	assert.Equal(t, 1, metrics.CountCounterRecordsForMetric("loanledger_database_errors_total"))
	assert.True(t, logHandler.HasErrorLogWithMessage("loanledger operation failed: sweep_overdue").Assert())
}

type requestKey struct{}

func Test_Observability_ContextualLogger_ReceivesTheCallersContext(t *testing.T) {
	// setup
	ctxWithTimeout, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clock := NewFakeClock(FixtureStartTime)
	wrapper := postgreswrapper.CreateWrapperWithTestConfig(t, WithClock(clock))
	contextualLogger := NewContextualLoggerSpy()
	ledger := wrapper.LedgerWithOptions(t, WithClock(clock), WithContextualLogger(contextualLogger))

	// arrange
	title := GivenTitleWasAdded(t, ctxWithTimeout, ledger, 1)
	ctx := context.WithValue(ctxWithTimeout, requestKey{}, "req-42")

	// act
	_, err := ledger.CreateLoan(ctx, FixtureCreateLoanParams(title.ID, GivenUniqueID(t), clock.Now(), 3))

	// assert
	require.NoError(t, err)

	records := contextualLogger.RecordsWithMessage("info", "loanledger operation: create_loan")
	require.Len(t, records, 1)
	assert.Equal(t, "req-42", records[0].Context.Value(requestKey{}))
	assert.NotEmpty(t, contextualLogger.RecordsWithMessage("debug", "executed sql for: insert_loan"))
}
