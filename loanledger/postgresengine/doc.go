// Package postgresengine provides a PostgreSQL implementation of the loan ledger.
//
// The Ledger owns two tables: titles, which hold the authoritative copy counts, and loans.
// Every mutation runs in one READ COMMITTED transaction on the primary and takes explicit
// SELECT ... FOR UPDATE row locks before reading anything it is going to change.
// Locks are always taken loan first, then title.
//
// Database adapters are available for pgx.Pool, sql.DB (lib/pq) and sqlx.DB.
// Reads may be routed to a replica with loanledger.WithEventualConsistency.
//
// Lock timeouts, deadlocks, serialization failures and lost connections are reported as
// loanledger.ErrTransactionFailed. The transaction has been rolled back in that case and the
// caller may retry; the Ledger itself never retries.
//
// Example usage:
//
//	pool, _ := pgxpool.New(ctx, dsn)
//	ledger, err := postgresengine.NewLedgerFromPGXPool(pool,
//		postgresengine.WithLogger(slog.Default()),
//		postgresengine.WithLockTimeout(2*time.Second),
//	)
//	if err != nil {
//		return err
//	}
//
//	loanID, err := ledger.CreateLoan(ctx, loanledger.CreateLoanParams{...})
//	if errors.Is(err, loanledger.ErrOutOfStock) {
//		// no copy left
//	}
package postgresengine
