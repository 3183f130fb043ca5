// Package config provides PostgreSQL database configuration for loan ledger testing.
//
// It contains factory functions for the three supported adapters (pgx.Pool, sql.DB, sqlx.DB).
// The DSN defaults to a local test database and can be overridden with LOANLEDGER_TEST_DSN,
// the replica DSN with LOANLEDGER_TEST_REPLICA_DSN.
package config
