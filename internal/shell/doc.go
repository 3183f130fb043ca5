// Package shell holds caller-side helpers that sit between inbound adapters and the loan ledger.
//
// The ledger never retries on its own. RetryWithExponentialBackoff re-runs an operation
// when it failed with loanledger.ErrTransactionFailed (serialization failures, deadlocks,
// lock timeouts, dropped connections) and fails fast on everything else.
package shell
