package loanledger

import (
	"errors"
)

var (
	// ErrTitleNotFound is returned when the referenced catalog title does not exist.
	ErrTitleNotFound = errors.New("title not found")

	// ErrLoanNotFound is returned when the referenced loan does not exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrOutOfStock is returned when a title has no available copies left at loan creation time.
	ErrOutOfStock = errors.New("title is out of stock")

	// ErrTitleWithdrawn is returned when a loan is requested for a soft-deleted title.
	ErrTitleWithdrawn = errors.New("title is withdrawn from the catalog")

	// ErrInvalidStatusTransition is returned for any status change not in the transition table.
	ErrInvalidStatusTransition = errors.New("invalid loan status transition")

	// ErrUnknownStatus is returned when a status string does not name a known loan status.
	ErrUnknownStatus = errors.New("unknown loan status")

	// ErrInvalidLoanKind is returned when a loan kind is neither days nor hours.
	ErrInvalidLoanKind = errors.New("invalid loan kind")

	// ErrInvalidDueDate is returned when the expected return is not after the loan start.
	ErrInvalidDueDate = errors.New("expected return must be after the loan start")

	// ErrInvalidDuration is returned when a requested loan duration is not positive.
	ErrInvalidDuration = errors.New("loan duration must be positive")

	// ErrInvalidCopyCount is returned when a title is created with a negative number of copies.
	ErrInvalidCopyCount = errors.New("total copies must not be negative")

	// ErrNilID is returned when a required identifier is the nil UUID.
	ErrNilID = errors.New("identifier must not be nil")

	// ErrTransactionFailed is returned when a transaction was rolled back because of a lock timeout,
	// deadlock, serialization failure or lost connection before commit. The caller may retry.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrCommitOutcomeUnknown is returned when the connection broke while COMMIT was in flight.
	// The transaction may or may not have been applied, so a blind retry can apply it twice.
	ErrCommitOutcomeUnknown = errors.New("commit outcome unknown")

	// ErrBuildingQueryFailed is returned when a SQL statement could not be built.
	ErrBuildingQueryFailed = errors.New("building query failed")

	// ErrQueryingFailed is returned when a read query failed.
	ErrQueryingFailed = errors.New("querying failed")

	// ErrScanningDBRowFailed is returned when a result row could not be scanned.
	ErrScanningDBRowFailed = errors.New("scanning db row failed")

	// ErrNilDatabaseConnection is returned when a nil connection is handed to a constructor.
	ErrNilDatabaseConnection = errors.New("database connection must not be nil")

	// ErrEmptyTableName is returned when an empty table name is configured.
	ErrEmptyTableName = errors.New("table name must not be empty")

	// ErrInvalidTableName is returned when a configured table name is not a plain lower case identifier.
	ErrInvalidTableName = errors.New("table name must match [a-z_][a-z0-9_]*")
)
