package loanledger

import (
	"errors"
	"fmt"
)

// Status is the lifecycle state of a Loan.
//
// Transitions are only allowed along the transition table:
//
//	pending  -> active   (approval)
//	pending  -> canceled (cancellation, releases the reserved copy)
//	active   -> overdue  (sweep)
//	active   -> returned (return, releases the copy)
//	overdue  -> returned (return, releases the copy)
//
// returned and canceled are terminal.
type Status uint8

const (
	StatusUnknown Status = iota
	StatusPending
	StatusActive
	StatusOverdue
	StatusReturned
	StatusCanceled
)

var statusNames = map[Status]string{
	StatusPending:  "pending",
	StatusActive:   "active",
	StatusOverdue:  "overdue",
	StatusReturned: "returned",
	StatusCanceled: "canceled",
}

var transitions = map[Status][]Status{
	StatusPending: {StatusActive, StatusCanceled},
	StatusActive:  {StatusOverdue, StatusReturned},
	StatusOverdue: {StatusReturned},
}

// ParseStatus converts the persisted string form into a Status.
func ParseStatus(s string) (Status, error) {
	for status, name := range statusNames {
		if name == s {
			return status, nil
		}
	}

	return StatusUnknown, errors.Join(ErrUnknownStatus, fmt.Errorf("status %q", s))
}

// AllStatuses returns every known status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusActive, StatusOverdue, StatusReturned, StatusCanceled}
}

// String returns the persisted string form, or "unknown".
func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}

	return "unknown"
}

// IsTerminal reports whether no further transition is permitted.
func (s Status) IsTerminal() bool {
	return s == StatusReturned || s == StatusCanceled
}

// HoldsCopy reports whether a loan in this status keeps one copy of its title reserved.
func (s Status) HoldsCopy() bool {
	return s == StatusPending || s == StatusActive || s == StatusOverdue
}

// CanTransitionTo reports whether next is reachable from s in one step.
func (s Status) CanTransitionTo(next Status) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}

	return false
}

// TransitionTo returns next if the step is in the transition table, otherwise ErrInvalidStatusTransition.
func (s Status) TransitionTo(next Status) (Status, error) {
	if !s.CanTransitionTo(next) {
		return s, errors.Join(ErrInvalidStatusTransition, fmt.Errorf("from %s to %s", s, next))
	}

	return next, nil
}

// MarshalText encodes the status as its persisted string form.
func (s Status) MarshalText() ([]byte, error) {
	if _, ok := statusNames[s]; !ok {
		return nil, errors.Join(ErrUnknownStatus, fmt.Errorf("status %d", uint8(s)))
	}

	return []byte(s.String()), nil
}

// UnmarshalText decodes the persisted string form.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}

	*s = parsed

	return nil
}
