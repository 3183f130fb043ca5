package loanledger

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// EventType names a committed loan lifecycle change.
type EventType = string

const (
	LoanCreatedEventType  EventType = "LoanCreated"
	LoanApprovedEventType EventType = "LoanApproved"
	LoanReturnedEventType EventType = "LoanReturned"
	LoanCanceledEventType EventType = "LoanCanceled"
)

// LoanEvent describes a lifecycle change after its transaction has committed.
// Sweeps do not produce events.
type LoanEvent struct {
	EventType        EventType `json:"event_type"`
	LoanID           uuid.UUID `json:"loan_id"`
	BorrowerID       uuid.UUID `json:"borrower_id"`
	TitleID          uuid.UUID `json:"title_id"`
	Status           Status    `json:"status"`
	ExpectedReturnAt time.Time `json:"expected_return_at"`
	OccurredAt       time.Time `json:"occurred_at"`
	Detail           string    `json:"detail,omitempty"`
}

// BuildLoanEvent creates a LoanEvent from the committed state of a loan.
func BuildLoanEvent(eventType EventType, loan Loan, occurredAt time.Time, detail string) LoanEvent {
	return LoanEvent{
		EventType:        eventType,
		LoanID:           loan.ID,
		BorrowerID:       loan.BorrowerID,
		TitleID:          loan.TitleID,
		Status:           loan.Status,
		ExpectedReturnAt: loan.ExpectedReturnAt,
		OccurredAt:       occurredAt,
		Detail:           detail,
	}
}

// EventPublisher receives LoanEvents after commit.
//
// Publish must not block on downstream consumers and has no error result:
// the committed loan state is authoritative regardless of delivery.
type EventPublisher interface {
	Publish(ctx context.Context, event LoanEvent)
}
