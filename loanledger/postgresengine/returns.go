package postgresengine

import (
	"context"
	"strconv"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// RegisterReturn closes an active or overdue loan and puts its copy back into stock.
//
// Returning an already returned loan succeeds with AlreadyReturned set and changes nothing,
// so available_copies grows by exactly one per loan no matter how often the return is registered.
// Pending and canceled loans fail with loanledger.ErrInvalidStatusTransition.
// A LoanReturned event is published after commit, but not for repeated returns.
func (l *Ledger) RegisterReturn(ctx context.Context, loanID uuid.UUID) (loanledger.ReturnResult, error) {
	observer, ctx := l.startOperation(ctx, operationRegisterReturn, map[string]string{spanAttrLoanID: loanID.String()})

	var result loanledger.ReturnResult

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		loan, lockErr := l.lockLoan(ctx, tx, loanID)
		if lockErr != nil {
			return lockErr
		}

		if loan.Status == loanledger.StatusReturned {
			result = loanledger.ReturnResult{Loan: loan, AlreadyReturned: true}
			return nil
		}

		next, transitionErr := loan.Status.TransitionTo(loanledger.StatusReturned)
		if transitionErr != nil {
			return transitionErr
		}

		if _, titleLockErr := l.lockTitle(ctx, tx, loan.TitleID); titleLockErr != nil {
			return titleLockErr
		}

		now := l.clock.Now()

		if updateErr := l.updateLoan(ctx, tx, loanID, goqu.Record{
			colStatus:         next.String(),
			colActualReturnAt: now,
		}); updateErr != nil {
			return updateErr
		}

		if stockErr := l.adjustStock(ctx, tx, loan.TitleID, 1); stockErr != nil {
			return stockErr
		}

		loan.Status = next
		loan.ActualReturnAt = &now
		result = loanledger.ReturnResult{Loan: loan}

		return nil
	})
	if txErr != nil {
		return loanledger.ReturnResult{}, observer.finishError(txErr, logAttrLoanID, loanID.String())
	}

	observer.finishSuccess(
		map[string]string{spanAttrStatus: result.Loan.Status.String()},
		logAttrLoanID, loanID.String(),
		logAttrAlreadyReturned, strconv.FormatBool(result.AlreadyReturned),
	)

	if !result.AlreadyReturned {
		l.publish(ctx, loanledger.BuildLoanEvent(loanledger.LoanReturnedEventType, result.Loan, *result.Loan.ActualReturnAt, ""))
	}

	return result, nil
}
