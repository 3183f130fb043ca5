package loanledger

import (
	"errors"
	"fmt"
	"time"
)

// LoanKind determines the unit of a loan's duration and how it is re-based on approval.
type LoanKind string

const (
	LoanKindDays  LoanKind = "days"
	LoanKindHours LoanKind = "hours"
)

// ParseLoanKind converts the persisted or inbound string form into a LoanKind.
func ParseLoanKind(s string) (LoanKind, error) {
	kind := LoanKind(s)
	if err := kind.Validate(); err != nil {
		return "", err
	}

	return kind, nil
}

// Validate returns ErrInvalidLoanKind for anything but days or hours.
func (k LoanKind) Validate() error {
	switch k {
	case LoanKindDays, LoanKindHours:
		return nil
	default:
		return errors.Join(ErrInvalidLoanKind, fmt.Errorf("loan kind %q", string(k)))
	}
}

// Unit returns the duration of one unit of this kind.
func (k LoanKind) Unit() time.Duration {
	if k == LoanKindHours {
		return time.Hour
	}

	return 24 * time.Hour
}

// DueDate computes the expected return for a loan of amount units starting at start.
func (k LoanKind) DueDate(start time.Time, amount int) (time.Time, error) {
	if err := k.Validate(); err != nil {
		return time.Time{}, err
	}

	if amount <= 0 {
		return time.Time{}, ErrInvalidDuration
	}

	if k == LoanKindDays {
		return start.AddDate(0, 0, amount), nil
	}

	return start.Add(time.Duration(amount) * time.Hour), nil
}

// Rebase moves a loan window so that it starts at at and keeps its original length due - created.
func (k LoanKind) Rebase(created, due, at time.Time) (time.Time, time.Time, error) {
	if err := k.Validate(); err != nil {
		return time.Time{}, time.Time{}, err
	}

	window := due.Sub(created)
	if window <= 0 {
		return time.Time{}, time.Time{}, ErrInvalidDuration
	}

	return at, at.Add(window), nil
}
