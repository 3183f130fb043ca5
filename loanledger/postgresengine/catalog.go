package postgresengine

import (
	"context"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine/internal/adapters"
)

// AddTitle inserts a catalog title with all copies available.
func (l *Ledger) AddTitle(ctx context.Context, params loanledger.NewTitleParams) (loanledger.Title, error) {
	observer, ctx := l.startOperation(ctx, operationAddTitle, nil)

	if err := params.Validate(); err != nil {
		return loanledger.Title{}, observer.finishError(err)
	}

	titleID, idErr := uuid.NewV7()
	if idErr != nil {
		return loanledger.Title{}, observer.finishError(idErr)
	}

	title := loanledger.Title{
		ID:              titleID,
		ISBN:            params.ISBN,
		Name:            params.Name,
		Author:          params.Author,
		Edition:         params.Edition,
		Publisher:       params.Publisher,
		PublishingYear:  params.PublishingYear,
		GradeCohort:     params.GradeCohort,
		TotalCopies:     params.TotalCopies,
		AvailableCopies: params.TotalCopies,
		CreatedAt:       l.clock.Now(),
	}

	sqlQuery, buildErr := l.buildInsertTitleQuery(title)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return loanledger.Title{}, observer.finishError(buildErr)
	}

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		_, execErr := l.exec(ctx, tx, logActionInsertTitle, sqlQuery)
		return execErr
	})
	if txErr != nil {
		return loanledger.Title{}, observer.finishError(txErr)
	}

	observer.finishSuccess(
		map[string]string{spanAttrTitleID: title.ID.String()},
		logAttrTitleID, title.ID.String(),
		logAttrAvailableCopies, title.AvailableCopies,
	)

	return title, nil
}

// GetTitle reads a catalog title including its current copy counts.
func (l *Ledger) GetTitle(ctx context.Context, titleID uuid.UUID) (loanledger.Title, error) {
	observer, ctx := l.startOperation(ctx, operationGetTitle, map[string]string{spanAttrTitleID: titleID.String()})

	sqlQuery, buildErr := l.buildSelectTitleQuery(titleID, false)
	if buildErr != nil {
		l.logError(ctx, logMsgBuildQueryFailed, buildErr)
		return loanledger.Title{}, observer.finishError(buildErr)
	}

	rows, queryErr := l.query(ctx, logActionSelectTitle, sqlQuery)
	if queryErr != nil {
		return loanledger.Title{}, observer.finishError(queryErr)
	}

	titles, scanErr := l.scanTitles(ctx, rows)
	if scanErr != nil {
		return loanledger.Title{}, observer.finishError(scanErr)
	}

	if len(titles) == 0 {
		return loanledger.Title{}, observer.finishError(loanledger.ErrTitleNotFound, logAttrTitleID, titleID.String())
	}

	observer.finishSuccess(nil, logAttrTitleID, titleID.String())

	return titles[0], nil
}

// WithdrawTitle soft-deletes a title. Existing loans are unaffected, new loans fail with ErrTitleWithdrawn.
// Withdrawing an already withdrawn title succeeds.
func (l *Ledger) WithdrawTitle(ctx context.Context, titleID uuid.UUID) error {
	observer, ctx := l.startOperation(ctx, operationWithdrawTitle, map[string]string{spanAttrTitleID: titleID.String()})

	txErr := l.inTx(ctx, func(tx adapters.DBTx) error {
		if _, err := l.lockTitle(ctx, tx, titleID); err != nil {
			return err
		}

		sqlQuery, buildErr := l.buildWithdrawTitleQuery(titleID)
		if buildErr != nil {
			l.logError(ctx, logMsgBuildQueryFailed, buildErr)
			return buildErr
		}

		_, execErr := l.exec(ctx, tx, logActionWithdrawTitle, sqlQuery)

		return execErr
	})
	if txErr != nil {
		return observer.finishError(txErr, logAttrTitleID, titleID.String())
	}

	observer.finishSuccess(nil, logAttrTitleID, titleID.String())

	return nil
}
