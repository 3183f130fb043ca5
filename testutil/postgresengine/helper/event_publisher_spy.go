package helper

import (
	"context"
	"sync"

	"github.com/AntonStoeckl/loan-ledger-go/loanledger"
)

// EventPublisherSpy is a loanledger.EventPublisher that captures published events.
type EventPublisherSpy struct {
	events []loanledger.LoanEvent
	mu     sync.Mutex
}

// NewEventPublisherSpy creates a new EventPublisherSpy.
func NewEventPublisherSpy() *EventPublisherSpy {
	return &EventPublisherSpy{events: make([]loanledger.LoanEvent, 0)}
}

// Publish implements loanledger.EventPublisher.
func (s *EventPublisherSpy) Publish(_ context.Context, event loanledger.LoanEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
}

// GetEvents returns a copy of all published events.
func (s *EventPublisherSpy) GetEvents() []loanledger.LoanEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	events := make([]loanledger.LoanEvent, len(s.events))
	copy(events, s.events)

	return events
}

// CountEventsOfType counts the published events of one type.
func (s *EventPublisherSpy) CountEventsOfType(eventType loanledger.EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, event := range s.events {
		if event.EventType == eventType {
			count++
		}
	}

	return count
}
