package postgresengine

import (
	"context"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// Cancel abandons a pending loan and releases the copy it reserved at creation.
//
// The reason, if given, is appended to the loan's notes. Canceling an already canceled loan
// returns (false, nil) and changes nothing. Loans in any other status fail with
// loanledger.ErrInvalidStatusTransition. A LoanCanceled event is published after commit.
func (l *Ledger) Cancel(ctx context.Context, loanID uuid.UUID, reason string) (bool, error) {
	observer, ctx := l.startOperation(ctx, operationCancel, map[string]string{spanAttrLoanID: loanID.String()})

	var (
		canceled loanledger.Loan
		changed  bool
	)

	now := l.clock.Now()

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		loan, lockErr := l.lockLoan(ctx, tx, loanID)
		if lockErr != nil {
			return lockErr
		}

		if loan.Status == loanledger.StatusCanceled {
			return nil
		}

		next, transitionErr := loan.Status.TransitionTo(loanledger.StatusCanceled)
		if transitionErr != nil {
			return transitionErr
		}

		if _, titleLockErr := l.lockTitle(ctx, tx, loan.TitleID); titleLockErr != nil {
			return titleLockErr
		}

		notes := appendNote(loan.Notes, reason)

		if updateErr := l.updateLoan(ctx, tx, loanID, goqu.Record{
			colStatus: next.String(),
			colNotes:  notes,
		}); updateErr != nil {
			return updateErr
		}

		if stockErr := l.adjustStock(ctx, tx, loan.TitleID, 1); stockErr != nil {
			return stockErr
		}

		loan.Status = next
		loan.Notes = notes
		canceled = loan
		changed = true

		return nil
	})
	if txErr != nil {
		return false, observer.finishError(txErr, logAttrLoanID, loanID.String())
	}

	observer.finishSuccess(nil, logAttrLoanID, loanID.String())

	if changed {
		l.publish(ctx, loanledger.BuildLoanEvent(loanledger.LoanCanceledEventType, canceled, now, reason))
	}

	return changed, nil
}

func appendNote(notes, reason string) string {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return notes
	}

	if notes == "" {
		return cancelReasonNotePrefix + reason
	}

	return notes + noteSeparator + cancelReasonNotePrefix + reason
}
