package loanledger

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

/***** LoanFilter *****/

// LoanFilter describes a read projection over the loans table.
// It is built with BuildLoanFilter and is immutable afterwards.
type LoanFilter struct {
	statuses       []Status
	gradeCohort    string
	borrowerID     uuid.UUID
	titleID        uuid.UUID
	createdFrom    time.Time
	createdUntil   time.Time
	capReturned    int
	refreshOverdue bool
}

// Statuses returns the statuses to match. Empty means all statuses.
func (f LoanFilter) Statuses() []Status {
	return f.statuses
}

// GradeCohort returns the borrower grade cohort to match, or "".
func (f LoanFilter) GradeCohort() string {
	return f.gradeCohort
}

// BorrowerID returns the borrower to match, or uuid.Nil.
func (f LoanFilter) BorrowerID() uuid.UUID {
	return f.borrowerID
}

// TitleID returns the title to match, or uuid.Nil.
func (f LoanFilter) TitleID() uuid.UUID {
	return f.titleID
}

// CreatedFrom returns the inclusive lower bound on created_at, zero if unbounded.
func (f LoanFilter) CreatedFrom() time.Time {
	return f.createdFrom
}

// CreatedUntil returns the inclusive upper bound on created_at, zero if unbounded.
func (f LoanFilter) CreatedUntil() time.Time {
	return f.createdUntil
}

// CapReturned returns the maximum number of returned loans to include, 0 meaning no cap.
//
// With a cap, all matching non-returned loans are listed, but only the
// most recently returned loans (by actual return) up to the cap.
func (f LoanFilter) CapReturned() int {
	return f.capReturned
}

// RefreshOverdue reports whether an overdue sweep should run before the read.
func (f LoanFilter) RefreshOverdue() bool {
	return f.refreshOverdue
}

// IncludesStatus reports whether loans in status s can match this filter.
func (f LoanFilter) IncludesStatus(s Status) bool {
	return len(f.statuses) == 0 || slices.Contains(f.statuses, s)
}

// NonReturnedStatuses returns the statuses to match excluding StatusReturned.
func (f LoanFilter) NonReturnedStatuses() []Status {
	candidates := f.statuses
	if len(candidates) == 0 {
		candidates = AllStatuses()
	}

	result := make([]Status, 0, len(candidates))
	for _, s := range candidates {
		if s != StatusReturned {
			result = append(result, s)
		}
	}

	return result
}

// HasCappedReturned reports whether returned loans have to be queried separately.
func (f LoanFilter) HasCappedReturned() bool {
	return f.capReturned > 0 && f.IncludesStatus(StatusReturned)
}

/***** LoanFilterBuilder *****/

// LoanFilterBuilder builds a LoanFilter. Every method returns the builder, Finalize returns the filter.
type LoanFilterBuilder struct {
	filter LoanFilter
}

// BuildLoanFilter starts an empty filter that matches all loans.
func BuildLoanFilter() *LoanFilterBuilder {
	return &LoanFilterBuilder{}
}

// WithStatuses restricts the filter to one or more statuses.
//
// It sanitizes the input:
//   - removing StatusUnknown
//   - sorting the statuses
//   - removing duplicate statuses
func (b *LoanFilterBuilder) WithStatuses(status Status, statuses ...Status) *LoanFilterBuilder {
	all := append([]Status{status}, statuses...)
	all = slices.DeleteFunc(all, func(s Status) bool {
		_, known := statusNames[s]
		return !known
	})
	all = append(b.filter.statuses, all...)
	slices.Sort(all)
	b.filter.statuses = slices.Compact(all)

	return b
}

// InGradeCohort restricts the filter to loans of borrowers in the given grade cohort.
func (b *LoanFilterBuilder) InGradeCohort(grade string) *LoanFilterBuilder {
	b.filter.gradeCohort = grade
	return b
}

// BorrowedBy restricts the filter to one borrower.
func (b *LoanFilterBuilder) BorrowedBy(borrowerID uuid.UUID) *LoanFilterBuilder {
	b.filter.borrowerID = borrowerID
	return b
}

// OfTitle restricts the filter to one title.
func (b *LoanFilterBuilder) OfTitle(titleID uuid.UUID) *LoanFilterBuilder {
	b.filter.titleID = titleID
	return b
}

// CreatedFrom sets an inclusive lower bound on the loan's created_at.
func (b *LoanFilterBuilder) CreatedFrom(from time.Time) *LoanFilterBuilder {
	b.filter.createdFrom = from
	return b
}

// CreatedUntil sets an inclusive upper bound on the loan's created_at.
func (b *LoanFilterBuilder) CreatedUntil(until time.Time) *LoanFilterBuilder {
	b.filter.createdUntil = until
	return b
}

// CapReturned limits returned loans to the n most recently returned. n <= 0 removes the cap.
func (b *LoanFilterBuilder) CapReturned(n int) *LoanFilterBuilder {
	if n < 0 {
		n = 0
	}

	b.filter.capReturned = n

	return b
}

// WithOverdueRefresh requests an opportunistic overdue sweep before the read.
func (b *LoanFilterBuilder) WithOverdueRefresh() *LoanFilterBuilder {
	b.filter.refreshOverdue = true
	return b
}

// Finalize returns the LoanFilter.
func (b *LoanFilterBuilder) Finalize() LoanFilter {
	f := b.filter
	f.statuses = slices.Clone(b.filter.statuses)

	return f
}
