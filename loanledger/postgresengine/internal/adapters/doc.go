// Package adapters provide database adapter implementations for the PostgreSQL loan ledger.
//
// This package implements the adapter pattern to support multiple PostgreSQL database libraries:
// pgx.Pool, sql.DB, and sqlx.DB. All adapters provide equivalent functionality through
// a common DBAdapter interface: pool-level reads (optionally routed to a replica) and
// READ COMMITTED transactions on the primary for every mutation.
package adapters
