// Package config loads the loan ledger service configuration.
//
// Values are resolved in layers, later layers winning:
//   - built-in defaults (Default)
//   - the YAML file given by --config or LOANLEDGER_CONFIG
//   - LOANLEDGER_* environment variables
//   - command-line flags that were set explicitly
//
// The package also builds the database connections for the three supported
// adapters (pgx.pool, sql.db, sqlx.db) from the resolved DatabaseConfig.
package config
