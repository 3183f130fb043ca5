// Package loanledger provides the core types of the loan lifecycle and inventory consistency engine
// of a school library.
//
// A Title holds the authoritative copy counts of a catalog entry. A Loan binds one borrower to one
// copy of a title and moves through an explicit state machine:
//
//	pending -> active -> (overdue) -> returned
//	pending -> canceled
//
// This package defines the storage-agnostic parts shared by the engine implementations:
//   - Status with its transition table, LoanKind with due date and re-basing rules
//   - LoanFilter and its builder for read projections
//   - LoanEvent and EventPublisher for post-commit notification
//   - sentinel errors, the consistency context and the observability interfaces
//
// Common usage pattern:
//
//	loanID, err := ledger.CreateLoan(ctx, loanledger.CreateLoanParams{
//		TitleID:          titleID,
//		BorrowerID:       borrowerID,
//		ExpectedReturnAt: due,
//		Kind:             loanledger.LoanKindDays,
//	})
//	if errors.Is(err, loanledger.ErrOutOfStock) {
//		// reject the request
//	}
//
//	approved, err := ledger.Approve(ctx, loanID)
//	result, err := ledger.RegisterReturn(ctx, loanID)
package loanledger
