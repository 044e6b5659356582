package model

import "fmt"

type Status string

const (
	StatusPending       Status = "pending"
	StatusInFlight      Status = "in_flight"
	StatusAwaitingRetry Status = "awaiting_retry"
	StatusSucceeded     Status = "succeeded"
	StatusFailed        Status = "failed"
)

var terminalStatuses = map[Status]bool{
	StatusSucceeded: true,
	StatusFailed:    true,
}

// Entry status transitions: pending → in_flight → {succeeded|failed},
// with in_flight → awaiting_retry → pending while a backoff delay runs.
// pending → failed covers validation failures and batch aborts, which
// never reach dispatch.
var validEntryTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInFlight: true,
		StatusFailed:   true,
	},
	StatusInFlight: {
		StatusAwaitingRetry: true,
		StatusSucceeded:     true,
		StatusFailed:        true,
	},
	StatusAwaitingRetry: {
		StatusPending: true,
		StatusFailed:  true,
	},
}

func IsTerminal(s Status) bool {
	return terminalStatuses[s]
}

func ValidateEntryTransition(from, to Status) error {
	if IsTerminal(from) {
		return fmt.Errorf("cannot transition from terminal status %q", from)
	}
	allowed, ok := validEntryTransitions[from]
	if !ok {
		return fmt.Errorf("unknown status %q", from)
	}
	if !allowed[to] {
		return fmt.Errorf("invalid entry transition: %q → %q", from, to)
	}
	return nil
}
