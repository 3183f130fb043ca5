package loanledger_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

func Test_BuildLoanEvent_SerializesWithSnakeCaseKeys(t *testing.T) {
	occurredAt := time.Date(2026, time.March, 2, 8, 0, 0, 0, time.UTC)
	loan := loanledger.Loan{
		ID:               uuid.New(),
		BorrowerID:       uuid.New(),
		TitleID:          uuid.New(),
		Status:           loanledger.StatusCanceled,
		ExpectedReturnAt: occurredAt.AddDate(0, 0, 7),
	}

	event := loanledger.BuildLoanEvent(loanledger.LoanCanceledEventType, loan, occurredAt, "moved away")

	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	require.NoError(t, err)

	assert.Equal(t, "LoanCanceled", jsoniter.Get(encoded, "event_type").ToString())
	assert.Equal(t, loan.ID.String(), jsoniter.Get(encoded, "loan_id").ToString())
	assert.Equal(t, "canceled", jsoniter.Get(encoded, "status").ToString())
	assert.Equal(t, "2026-03-02T08:00:00Z", jsoniter.Get(encoded, "occurred_at").ToString())
	assert.Equal(t, "moved away", jsoniter.Get(encoded, "detail").ToString())
}

func Test_BuildLoanEvent_OmitsAnEmptyDetail(t *testing.T) {
	event := loanledger.BuildLoanEvent(loanledger.LoanCreatedEventType, loanledger.Loan{Status: loanledger.StatusPending}, time.Now(), "")

	encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.Marshal(event)
	require.NoError(t, err)

	assert.NotContains(t, string(encoded), "detail")
}
