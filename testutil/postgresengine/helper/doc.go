// Package helper provides fixtures, a fake clock and observability spies for loan ledger tests.
//
// The spies capture slog records, contextual log calls, metrics calls, tracing spans and published LoanEvents,
// so tests can assert on the instrumentation of the Ledger without a real backend.
package helper
