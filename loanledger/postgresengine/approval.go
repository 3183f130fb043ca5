package postgresengine

import (
	"context"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// Approve turns a pending loan into an active one and re-bases its window to start now.
//
// The window keeps its exact length: a loan created at T0 and due at T0 + 5 days is due
// at T1 + 5 days when approved at T1. Availability is not checked again, the copy was reserved
// at creation. A LoanApproved event is published after commit.
//
// A missing loan yields (false, loanledger.ErrLoanNotFound), a loan that is not pending
// yields (false, loanledger.ErrInvalidStatusTransition).
func (l *Ledger) Approve(ctx context.Context, loanID uuid.UUID) (bool, error) {
	observer, ctx := l.startOperation(ctx, operationApprove, map[string]string{spanAttrLoanID: loanID.String()})

	var approved loanledger.Loan

	now := l.clock.Now()

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		loan, lockErr := l.lockLoan(ctx, tx, loanID)
		if lockErr != nil {
			return lockErr
		}

		next, transitionErr := loan.Status.TransitionTo(loanledger.StatusActive)
		if transitionErr != nil {
			return transitionErr
		}

		createdAt, expectedReturnAt, rebaseErr := loan.Kind.Rebase(loan.CreatedAt, loan.ExpectedReturnAt, now)
		if rebaseErr != nil {
			return rebaseErr
		}

		if updateErr := l.updateLoan(ctx, tx, loanID, goqu.Record{
			colStatus:           next.String(),
			colCreatedAt:        createdAt,
			colExpectedReturnAt: expectedReturnAt,
		}); updateErr != nil {
			return updateErr
		}

		loan.Status = next
		loan.CreatedAt = createdAt
		loan.ExpectedReturnAt = expectedReturnAt
		approved = loan

		return nil
	})
	if txErr != nil {
		return false, observer.finishError(txErr, logAttrLoanID, loanID.String())
	}

	observer.finishSuccess(nil, logAttrLoanID, loanID.String())

	l.publish(ctx, loanledger.BuildLoanEvent(loanledger.LoanApprovedEventType, approved, now, ""))

	return true, nil
}
