// Package postgreswrapper abstracts over the three database adapters for ledger tests.
//
// The adapter is selected with the ADAPTER_TYPE environment variable (pgx.pool, sql.db, sqlx.db; pgx.pool by default).
// Every wrapper works on its own freshly created tables, which are dropped again when the test ends,
// so tests in different packages can run in parallel against the same database.
// Tests are skipped when the database is not reachable.
package postgreswrapper
