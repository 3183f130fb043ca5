package helper

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
	"github.com/AntonStoeckl/loan-ledger-go/loanledger/postgresengine"
)

// FixtureStartTime is the fake clock start used across ledger tests.
var FixtureStartTime = time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)

func GivenUniqueID(t testing.TB) uuid.UUID {
	id, err := uuid.NewV7()
	require.NoError(t, err, "error in arranging test data")

	return id
}

func FixtureNewTitleParams(totalCopies int) loanledger.NewTitleParams {
	return loanledger.NewTitleParams{
		ISBN:           "978-1-098-10013-1",
		Name:           "Learning Domain-Driven Design",
		Author:         "Vlad Khononov",
		Edition:        "First Edition",
		Publisher:      "O'Reilly Media, Inc.",
		PublishingYear: 2021,
		GradeCohort:    "grade-10",
		TotalCopies:    totalCopies,
	}
}

// FixtureCreateLoanParams builds a days loan of the given length, starting at the clock's now.
func FixtureCreateLoanParams(titleID, borrowerID uuid.UUID, now time.Time, days int) loanledger.CreateLoanParams {
	return loanledger.CreateLoanParams{
		TitleID:          titleID,
		BorrowerID:       borrowerID,
		BorrowerGrade:    "grade-10",
		ExpectedReturnAt: now.AddDate(0, 0, days),
		Notes:            "fixture loan",
		Kind:             loanledger.LoanKindDays,
	}
}

func GivenTitleWasAdded(t testing.TB, ctx context.Context, ledger *postgresengine.Ledger, totalCopies int) loanledger.Title {
	title, err := ledger.AddTitle(ctx, FixtureNewTitleParams(totalCopies))
	require.NoError(t, err, "error in arranging test data")

	return title
}

func GivenPendingLoanWasCreated(
	t testing.TB,
	ctx context.Context,
	ledger *postgresengine.Ledger,
	clock *FakeClock,
	titleID uuid.UUID,
	days int,
) uuid.UUID {

	loanID, err := ledger.CreateLoan(ctx, FixtureCreateLoanParams(titleID, GivenUniqueID(t), clock.Now(), days))
	require.NoError(t, err, "error in arranging test data")

	return loanID
}

func GivenActiveLoanWasCreated(
	t testing.TB,
	ctx context.Context,
	ledger *postgresengine.Ledger,
	clock *FakeClock,
	titleID uuid.UUID,
	days int,
) uuid.UUID {

	loanID := GivenPendingLoanWasCreated(t, ctx, ledger, clock, titleID, days)

	approved, err := ledger.Approve(ctx, loanID)
	require.NoError(t, err, "error in arranging test data")
	require.True(t, approved, "error in arranging test data")

	return loanID
}

func GivenLoanWasReturned(t testing.TB, ctx context.Context, ledger *postgresengine.Ledger, loanID uuid.UUID) {
	_, err := ledger.RegisterReturn(ctx, loanID)
	require.NoError(t, err, "error in arranging test data")
}

func AvailableCopiesOf(t testing.TB, ctx context.Context, ledger *postgresengine.Ledger, titleID uuid.UUID) int {
	title, err := ledger.GetTitle(ctx, titleID)
	require.NoError(t, err, "error reading title")

	return title.AvailableCopies
}
