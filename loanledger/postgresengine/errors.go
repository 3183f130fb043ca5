package postgresengine

import (
	"context"
	"database/sql/driver"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

const sqlStateClassConnectionException = "08"

// SQLSTATEs after which the transaction is gone but a retry can succeed.
var transientSQLStates = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"55P03": {}, // lock_not_available, raised by lock_timeout
	"57014": {}, // query_canceled, raised by statement_timeout
}

// wrapDBError joins a driver error with loanledger.ErrTransactionFailed if it is transient,
// otherwise with loanledger.ErrQueryingFailed.
func wrapDBError(err error) error {
	if isTransientDBError(err) {
		return errors.Join(loanledger.ErrTransactionFailed, err)
	}

	return errors.Join(loanledger.ErrQueryingFailed, err)
}

// wrapCommitError classifies a failed COMMIT. A server answer means the transaction was rolled back
// and is handled like any other statement error. Without one the outcome is unknown.
func wrapCommitError(err error) error {
	if code, answered := sqlStateOf(err); answered && !strings.HasPrefix(code, sqlStateClassConnectionException) {
		return wrapDBError(err)
	}

	return errors.Join(loanledger.ErrCommitOutcomeUnknown, err)
}

func sqlStateOf(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), true
	}

	return "", false
}

// isTransientDBError reports whether err is a lock timeout, deadlock, serialization failure,
// statement timeout or connection failure, for both pgx and lib/pq.
func isTransientDBError(err error) bool {
	if err == nil {
		return false
	}

	// context.DeadlineExceeded also satisfies net.Error
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	if code, ok := sqlStateOf(err); ok {
		return isTransientSQLState(code)
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	if errors.Is(err, driver.ErrBadConn) || pgconn.SafeToRetry(err) {
		return true
	}

	var netErr net.Error

	return errors.As(err, &netErr)
}

func isTransientSQLState(code string) bool {
	if strings.HasPrefix(code, sqlStateClassConnectionException) {
		return true
	}

	_, ok := transientSQLStates[code]

	return ok
}
