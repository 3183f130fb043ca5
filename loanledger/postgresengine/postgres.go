package postgresengine

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jmoiron/sqlx"
	"golang.org/x/time/rate"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

const (
	defaultTitlesTableName = "titles"
	defaultLoansTableName  = "loans"
	dialectPostgres        = "postgres"
)

const (
	logMsgBuildQueryFailed    = "failed to build sql statement"
	logMsgDBQueryFailed       = "database query execution failed"
	logMsgDBExecFailed        = "database execution failed"
	logMsgBeginTxFailed       = "failed to begin transaction"
	logMsgCommitFailed        = "failed to commit transaction"
	logMsgRollbackFailed      = "failed to roll back transaction"
	logMsgCloseRowsFailed     = "failed to close database rows"
	logMsgScanRowFailed       = "failed to scan database row"
	logMsgRowsAffectedFailed  = "failed to get rows affected count"
	logMsgOpportunisticSweep  = "opportunistic overdue sweep failed, reading without it"
	logMsgSQLExecuted         = "executed sql for: "
	logMsgOperation           = "loanledger operation: "
	logMsgOperationFailed     = "loanledger operation failed: "
	logMsgOperationRejected   = "loanledger operation rejected: "
	logAttrError              = "error"
	logAttrErrorType          = "error_type"
	logAttrQuery              = "query"
	logAttrDurationMS         = "duration_ms"
	logAttrLoanID             = "loan_id"
	logAttrTitleID            = "title_id"
	logAttrBorrowerID         = "borrower_id"
	logAttrLoanCount          = "loan_count"
	logAttrRowsAffected       = "rows_affected"
	logAttrAlreadyReturned    = "already_returned"
	logAttrAvailableCopies    = "available_copies"
	logActionLockTimeout      = "lock_timeout"
	logActionLockTitle        = "lock_title"
	logActionLockLoan         = "lock_loan"
	logActionInsertLoan       = "insert_loan"
	logActionInsertTitle      = "insert_title"
	logActionUpdateLoan       = "update_loan"
	logActionAdjustStock      = "adjust_stock"
	logActionWithdrawTitle    = "withdraw_title"
	logActionSweep            = "sweep"
	logActionSelectLoans      = "select_loans"
	logActionSelectTitle      = "select_title"
	logActionSchema           = "schema"
	lockTimeoutStatementFmt   = "SET LOCAL lock_timeout = '%dms'"
	noteSeparator             = "\n"
	cancelReasonNotePrefix    = "canceled: "
	tableNamePatternExpr      = `^[a-z_][a-z0-9_]*$`
)

var tableNamePattern = regexp.MustCompile(tableNamePatternExpr)

// Ledger is the PostgreSQL implementation of the loan lifecycle and inventory consistency engine.
// It is safe for concurrent use; all coordination happens in the database through row locks.
type Ledger struct {
	db               adapters.DBAdapter
	titlesTable      string
	loansTable       string
	clock            loanledger.Clock
	publisher        loanledger.EventPublisher
	lockTimeout      time.Duration
	sweepLimiter     *rate.Limiter
	logger           loanledger.Logger
	contextualLogger loanledger.ContextualLogger
	metricsCollector loanledger.MetricsCollector
	tracingCollector loanledger.TracingCollector
}

// NewLedgerFromPGXPool creates a new Ledger using a pgx Pool with optional configuration.
func NewLedgerFromPGXPool(db *pgxpool.Pool, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewPGXAdapter(db), options...)
}

// NewLedgerFromPGXPoolAndReplica creates a new Ledger using a pgx Pool as primary and a second pool as replica.
// Reads run on the replica when the context carries loanledger.EventualConsistency.
func NewLedgerFromPGXPoolAndReplica(db *pgxpool.Pool, replica *pgxpool.Pool, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newLedger(adapters.NewPGXAdapter(db), options...)
	}

	return newLedger(adapters.NewPGXAdapterWithReplica(db, replica), options...)
}

// NewLedgerFromSQLDB creates a new Ledger using a sql.DB with optional configuration.
func NewLedgerFromSQLDB(db *sql.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLAdapter(db), options...)
}

// NewLedgerFromSQLDBAndReplica creates a new Ledger using a sql.DB as primary and a second sql.DB as replica.
func NewLedgerFromSQLDBAndReplica(db *sql.DB, replica *sql.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newLedger(adapters.NewSQLAdapter(db), options...)
	}

	return newLedger(adapters.NewSQLAdapterWithReplica(db, replica), options...)
}

// NewLedgerFromSQLX creates a new Ledger using a sqlx.DB with optional configuration.
func NewLedgerFromSQLX(db *sqlx.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	return newLedger(adapters.NewSQLXAdapter(db), options...)
}

// NewLedgerFromSQLXAndReplica creates a new Ledger using a sqlx.DB as primary and a second sqlx.DB as replica.
func NewLedgerFromSQLXAndReplica(db *sqlx.DB, replica *sqlx.DB, options ...Option) (*Ledger, error) {
	if db == nil {
		return nil, loanledger.ErrNilDatabaseConnection
	}

	if replica == nil {
		return newLedger(adapters.NewSQLXAdapter(db), options...)
	}

	return newLedger(adapters.NewSQLXAdapterWithReplica(db, replica), options...)
}

func newLedger(db adapters.DBAdapter, options ...Option) (*Ledger, error) {
	l := &Ledger{
		db:          db,
		titlesTable: defaultTitlesTableName,
		loansTable:  defaultLoansTableName,
		clock:       loanledger.SystemClock(),
	}

	for _, option := range options {
		if err := option(l); err != nil {
			return nil, err
		}
	}

	return l, nil
}

func validateTableName(tableName string) error {
	if tableName == "" {
		return loanledger.ErrEmptyTableName
	}

	if !tableNamePattern.MatchString(tableName) {
		return fmt.Errorf("%w: %q", loanledger.ErrInvalidTableName, tableName)
	}

	return nil
}

/***** transactions and statement execution *****/

// inTx runs fn in one READ COMMITTED transaction on the primary.
// The transaction is rolled back when fn returns an error and committed otherwise.
func (l *Ledger) inTx(ctx context.Context, fn func(tx adapters.DBTx) error) error {
	tx, beginErr := l.db.BeginTx(ctx)
	if beginErr != nil {
		l.logError(ctx, logMsgBeginTxFailed, beginErr)
		return wrapDBError(beginErr)
	}

	finished := false
	defer func() {
		if finished {
			return
		}

		if rollbackErr := tx.Rollback(context.WithoutCancel(ctx)); rollbackErr != nil {
			l.logWarn(ctx, logMsgRollbackFailed, logAttrError, rollbackErr.Error())
		}
	}()

	if l.lockTimeout > 0 {
		if _, err := l.exec(ctx, tx, logActionLockTimeout, l.lockTimeoutStatement()); err != nil {
			return err
		}
	}

	if err := fn(tx); err != nil {
		return err
	}

	finished = true
	if commitErr := tx.Commit(ctx); commitErr != nil {
		l.logError(ctx, logMsgCommitFailed, commitErr)
		return wrapCommitError(commitErr)
	}

	return nil
}

func (l *Ledger) lockTimeoutStatement() string {
	ms := max(l.lockTimeout.Milliseconds(), 1)
	return fmt.Sprintf(lockTimeoutStatementFmt, ms)
}

// queryTx runs a statement returning rows inside tx. The caller must close the rows
// before the next statement on the same transaction.
func (l *Ledger) queryTx(ctx context.Context, tx adapters.DBTx, action, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := tx.Query(ctx, sqlQuery)
	l.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		l.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, wrapDBError(queryErr)
	}

	return rows, nil
}

// query runs a read outside a transaction, honouring the consistency level of ctx.
func (l *Ledger) query(ctx context.Context, action, sqlQuery string) (adapters.DBRows, error) {
	start := time.Now()
	rows, queryErr := l.db.Query(ctx, sqlQuery)
	l.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if queryErr != nil {
		l.logError(ctx, logMsgDBQueryFailed, queryErr, logAttrQuery, sqlQuery)
		return nil, wrapDBError(queryErr)
	}

	return rows, nil
}

// exec runs a statement without result rows inside tx and returns the number of affected rows.
func (l *Ledger) exec(ctx context.Context, tx adapters.DBTx, action, sqlQuery string) (int64, error) {
	start := time.Now()
	result, execErr := tx.Exec(ctx, sqlQuery)
	l.logQueryWithDuration(ctx, sqlQuery, action, time.Since(start))

	if execErr != nil {
		l.logError(ctx, logMsgDBExecFailed, execErr, logAttrQuery, sqlQuery)
		return 0, wrapDBError(execErr)
	}

	rowsAffected, rowsAffectedErr := result.RowsAffected()
	if rowsAffectedErr != nil {
		l.logError(ctx, logMsgRowsAffectedFailed, rowsAffectedErr)
		return 0, wrapDBError(rowsAffectedErr)
	}

	return rowsAffected, nil
}

// closeRows safely closes database rows and logs any errors.
func (l *Ledger) closeRows(ctx context.Context, rows adapters.DBRows) {
	if closeErr := rows.Close(); closeErr != nil {
		l.logWarn(ctx, logMsgCloseRowsFailed, logAttrError, closeErr.Error())
	}
}

func (l *Ledger) publish(ctx context.Context, event loanledger.LoanEvent) {
	if l.publisher != nil {
		l.publisher.Publish(ctx, event)
	}
}

/***** logging *****/

// logQueryWithDuration logs SQL statements with execution time at debug level.
func (l *Ledger) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	if l.logger != nil {
		l.logger.Debug(logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}

	if l.contextualLogger != nil {
		l.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery)
	}
}

// logOperation logs operational information at info level.
func (l *Ledger) logOperation(ctx context.Context, message string, args ...any) {
	if l.logger != nil {
		l.logger.Info(message, args...)
	}

	if l.contextualLogger != nil {
		l.contextualLogger.InfoContext(ctx, message, args...)
	}
}

func (l *Ledger) logWarn(ctx context.Context, message string, args ...any) {
	if l.logger != nil {
		l.logger.Warn(message, args...)
	}

	if l.contextualLogger != nil {
		l.contextualLogger.WarnContext(ctx, message, args...)
	}
}

// logError logs error information at the error level.
func (l *Ledger) logError(ctx context.Context, message string, err error, args ...any) {
	allArgs := []any{logAttrError, err.Error()}
	allArgs = append(allArgs, args...)

	if l.logger != nil {
		l.logger.Error(message, allArgs...)
	}

	if l.contextualLogger != nil {
		l.contextualLogger.ErrorContext(ctx, message, allArgs...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
