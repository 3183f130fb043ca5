// Package notify delivers committed loan events to downstream consumers.
//
// The Dispatcher implements loanledger.EventPublisher. The ledger hands it events after commit,
// the Dispatcher queues them and a single goroutine feeds them to the AuditLog and, for returns,
// to the AchievementEvaluator. Consumer failures are logged and counted, never propagated: the
// committed loan state is authoritative regardless of what happens downstream.
package notify
