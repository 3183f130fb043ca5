package postgresengine

import (
	"context"
	"strconv"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// CreateLoan reserves one copy of a title for a borrower and records a pending loan.
//
// The title row is locked for the whole transaction, so two concurrent requests for the last copy
// are serialized: one succeeds, the other fails with loanledger.ErrOutOfStock.
// A LoanCreated event is published after commit.
func (l *Ledger) CreateLoan(ctx context.Context, params loanledger.CreateLoanParams) (uuid.UUID, error) {
	observer, ctx := l.startOperation(ctx, operationCreateLoan, map[string]string{
		spanAttrTitleID:    params.TitleID.String(),
		spanAttrBorrowerID: params.BorrowerID.String(),
	})

	now := l.clock.Now()

	if err := params.Validate(now); err != nil {
		return uuid.Nil, observer.finishError(err)
	}

	loanID, idErr := uuid.NewV7()
	if idErr != nil {
		return uuid.Nil, observer.finishError(idErr)
	}

	loan := loanledger.Loan{
		ID:               loanID,
		BorrowerID:       params.BorrowerID,
		BorrowerGrade:    params.BorrowerGrade,
		TitleID:          params.TitleID,
		CreatedAt:        now,
		ExpectedReturnAt: params.ExpectedReturnAt.UTC(),
		Status:           loanledger.StatusPending,
		Kind:             params.Kind,
		Notes:            params.Notes,
	}

	var availableAfter int

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		title, lockErr := l.lockTitle(ctx, tx, params.TitleID)
		if lockErr != nil {
			return lockErr
		}

		if title.Withdrawn {
			return loanledger.ErrTitleWithdrawn
		}

		if title.AvailableCopies <= 0 {
			return loanledger.ErrOutOfStock
		}

		sqlQuery, buildErr := l.buildInsertLoanQuery(loan)
		if buildErr != nil {
			l.logError(ctx, logMsgBuildQueryFailed, buildErr)
			return buildErr
		}

		if _, execErr := l.exec(ctx, tx, logActionInsertLoan, sqlQuery); execErr != nil {
			return execErr
		}

		availableAfter = title.AvailableCopies - 1

		return l.adjustStock(ctx, tx, params.TitleID, -1)
	})
	if txErr != nil {
		return uuid.Nil, observer.finishError(txErr, logAttrTitleID, params.TitleID.String())
	}

	observer.finishSuccess(
		map[string]string{spanAttrLoanID: loanID.String()},
		logAttrLoanID, loanID.String(),
		logAttrTitleID, params.TitleID.String(),
		logAttrAvailableCopies, availableAfter,
	)

	l.publish(ctx, loanledger.BuildLoanEvent(loanledger.LoanCreatedEventType, loan, now, ""))

	return loanID, nil
}

// GetByID reads one loan.
func (l *Ledger) GetByID(ctx context.Context, loanID uuid.UUID) (loanledger.Loan, error) {
	observer, ctx := l.startOperation(ctx, operationGetByID, map[string]string{spanAttrLoanID: loanID.String()})

	sqlQuery, buildErr := l.buildSelectLoanQuery(loanID, false)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return loanledger.Loan{}, observer.finishError(buildErr)
	}

	loans, readErr := l.readLoans(ctx, sqlQuery)
	if readErr != nil {
		return loanledger.Loan{}, observer.finishError(readErr)
	}

	if len(loans) == 0 {
		return loanledger.Loan{}, observer.finishError(loanledger.ErrLoanNotFound, logAttrLoanID, loanID.String())
	}

	observer.finishSuccess(
		map[string]string{spanAttrStatus: loans[0].Status.String()},
		logAttrLoanID, loanID.String(),
	)

	return loans[0], nil
}

// GetByBorrower lists all loans of one borrower, newest first.
func (l *Ledger) GetByBorrower(ctx context.Context, borrowerID uuid.UUID) (loanledger.Loans, error) {
	observer, ctx := l.startOperation(ctx, operationGetByBorrower, map[string]string{spanAttrBorrowerID: borrowerID.String()})

	filter := loanledger.BuildLoanFilter().BorrowedBy(borrowerID).Finalize()

	loans, err := l.listLoans(ctx, filter)
	if err != nil {
		return nil, observer.finishError(err)
	}

	observer.finishSuccess(
		map[string]string{spanAttrLoanCount: strconv.Itoa(len(loans))},
		logAttrBorrowerID, borrowerID.String(),
		logAttrLoanCount, len(loans),
	)

	return loans, nil
}

// GetAll lists the loans matching filter, newest first.
//
// If the filter requests an overdue refresh, SweepOverdue runs before the read, throttled by the
// limit configured with WithOpportunisticSweepLimit. A failing or throttled sweep does not fail the read.
func (l *Ledger) GetAll(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error) {
	if filter.RefreshOverdue() && (l.sweepLimiter == nil || l.sweepLimiter.Allow()) {
		if _, sweepErr := l.SweepOverdue(ctx); sweepErr != nil {
			l.logWarn(ctx, logMsgOpportunisticSweep, logAttrError, sweepErr.Error())
		}
	}

	observer, ctx := l.startOperation(ctx, operationGetAll, nil)

	loans, err := l.listLoans(ctx, filter)
	if err != nil {
		return nil, observer.finishError(err)
	}

	observer.finishSuccess(
		map[string]string{spanAttrLoanCount: strconv.Itoa(len(loans))},
		logAttrLoanCount, len(loans),
	)

	return loans, nil
}

func (l *Ledger) listLoans(ctx context.Context, filter loanledger.LoanFilter) (loanledger.Loans, error) {
	sqlQuery, buildErr := l.buildSelectLoansQuery(filter)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return nil, buildErr
	}

	return l.readLoans(ctx, sqlQuery)
}

func (l *Ledger) readLoans(ctx context.Context, sqlQuery string) (loanledger.Loans, error) {
	rows, queryErr := l.query(ctx, logActionSelectLoans, sqlQuery)
	if queryErr != nil {
		return nil, queryErr
	}

	return l.scanLoans(ctx, rows)
}
