package notify

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// AchievementResult is what the achievement layer reports after evaluating a borrower.
type AchievementResult struct {
	BorrowerID uuid.UUID
	Unlocked   []string
}

// AchievementEvaluator re-evaluates a borrower's achievements after a return.
type AchievementEvaluator interface {
	Evaluate(ctx context.Context, borrowerID uuid.UUID) (AchievementResult, error)
}

// AchievementEvaluatorFunc adapts a function to AchievementEvaluator.
type AchievementEvaluatorFunc func(ctx context.Context, borrowerID uuid.UUID) (AchievementResult, error)

// Evaluate calls f.
func (f AchievementEvaluatorFunc) Evaluate(ctx context.Context, borrowerID uuid.UUID) (AchievementResult, error) {
	return f(ctx, borrowerID)
}

// AuditRecord is one entry of the loan audit trail.
type AuditRecord struct {
	Action           loanledger.EventType `json:"action"`
	LoanID           uuid.UUID            `json:"loan_id"`
	BorrowerID       uuid.UUID            `json:"borrower_id"`
	TitleID          uuid.UUID            `json:"title_id"`
	Status           loanledger.Status    `json:"status"`
	ExpectedReturnAt time.Time            `json:"expected_return_at"`
	OccurredAt       time.Time            `json:"occurred_at"`
	Detail           string               `json:"detail,omitempty"`
}

// AuditRecordFromEvent maps a LoanEvent to its audit entry.
func AuditRecordFromEvent(event loanledger.LoanEvent) AuditRecord {
	return AuditRecord{
		Action:           event.EventType,
		LoanID:           event.LoanID,
		BorrowerID:       event.BorrowerID,
		TitleID:          event.TitleID,
		Status:           event.Status,
		ExpectedReturnAt: event.ExpectedReturnAt,
		OccurredAt:       event.OccurredAt,
		Detail:           event.Detail,
	}
}

// AuditLog persists audit records. Append must be safe for sequential calls from one goroutine.
type AuditLog interface {
	Append(ctx context.Context, record AuditRecord) error
}
