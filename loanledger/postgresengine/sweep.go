package postgresengine

import (
	"context"
	"strconv"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// SweepOverdue marks every active loan whose expected return lies before now as overdue
// and returns the number of loans it changed.
//
// It is a single UPDATE in one transaction and only touches the status column of active rows,
// so it is safe alongside concurrent CreateLoan and RegisterReturn calls. Running it twice in a row
// returns 0 the second time. It publishes no events.
func (l *Ledger) SweepOverdue(ctx context.Context) (int64, error) {
	observer, ctx := l.startOperation(ctx, operationSweepOverdue, nil)

	sqlQuery, buildErr := l.buildSweepQuery(l.clock.Now())
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return 0, observer.finishError(buildErr)
	}

	var swept int64

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		rowsAffected, execErr := l.exec(ctx, tx, logActionSweep, sqlQuery)
		swept = rowsAffected

		return execErr
	})
	if txErr != nil {
		return 0, observer.finishError(txErr)
	}

	observer.recordValue(metricLoansSwept, float64(swept))
	observer.finishSuccess(
		map[string]string{spanAttrRowsAffected: strconv.FormatInt(swept, 10)},
		logAttrRowsAffected, swept,
	)

	return swept, nil
}
