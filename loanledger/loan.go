package loanledger

import (
	"time"

	"github.com/google/uuid"
)

// Loan binds one borrower to one copy of a title for a bounded time window.
//
// ActualReturnAt is non-nil if and only if Status is StatusReturned.
type Loan struct {
	ID               uuid.UUID
	BorrowerID       uuid.UUID
	BorrowerGrade    string
	TitleID          uuid.UUID
	CreatedAt        time.Time
	ExpectedReturnAt time.Time
	ActualReturnAt   *time.Time
	Status           Status
	Kind             LoanKind
	Notes            string
}

// Loans is an alias type for a slice of Loan.
type Loans = []Loan

// IsConsistent reports whether the return timestamp agrees with the status.
func (l Loan) IsConsistent() bool {
	return (l.Status == StatusReturned) == (l.ActualReturnAt != nil)
}

// IsPastDue reports whether the loan is still out and its due date lies before now.
func (l Loan) IsPastDue(now time.Time) bool {
	return (l.Status == StatusActive || l.Status == StatusOverdue) && l.ExpectedReturnAt.Before(now)
}

// CreateLoanParams carries the input of CreateLoan.
type CreateLoanParams struct {
	TitleID          uuid.UUID
	BorrowerID       uuid.UUID
	BorrowerGrade    string
	ExpectedReturnAt time.Time
	Notes            string
	Kind             LoanKind
}

// Validate checks the parameters against the given loan start.
func (p CreateLoanParams) Validate(now time.Time) error {
	if p.TitleID == uuid.Nil || p.BorrowerID == uuid.Nil {
		return ErrNilID
	}

	if err := p.Kind.Validate(); err != nil {
		return err
	}

	if !p.ExpectedReturnAt.After(now) {
		return ErrInvalidDueDate
	}

	return nil
}

// ReturnResult is the outcome of a successful RegisterReturn.
// AlreadyReturned is true when the loan was returned before and nothing changed.
type ReturnResult struct {
	Loan            Loan
	AlreadyReturned bool
}
