package core

import (
	"errors"
	"fmt"
)

const (
	StatusPending  ExpenseStatus = "pending"
	StatusApproved ExpenseStatus = "approved"
	StatusRejected ExpenseStatus = "rejected"
	StatusPaid     ExpenseStatus = "paid"
)

// ExpenseStatus is a state of the expense approval workflow.
type ExpenseStatus string

var (
	ErrInvalidStatus     = errors.New("invalid expense status")
	ErrInvalidTransition = errors.New("invalid status transition")
)

// SettlementBuckets are the statuses that carry a balance, in display order.
// Rejected expenses never contribute.
var SettlementBuckets = []ExpenseStatus{StatusPending, StatusApproved, StatusPaid}

var transitions = map[ExpenseStatus][]ExpenseStatus{
	StatusPending:  {StatusApproved, StatusRejected},
	StatusApproved: {StatusPaid},
	StatusRejected: nil,
	StatusPaid:     nil,
}

// Valid reports whether s is a known status.
func (s ExpenseStatus) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// IsTerminal reports whether no transition leaves s.
func (s ExpenseStatus) IsTerminal() bool {
	return s.Valid() && len(transitions[s]) == 0
}

// CanTransition reports whether s -> to is allowed.
func (s ExpenseStatus) CanTransition(to ExpenseStatus) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition validates s -> to and returns the new status.
func (s ExpenseStatus) Transition(to ExpenseStatus) (ExpenseStatus, error) {
	if !to.Valid() {
		return s, fmt.Errorf("%w: %q", ErrInvalidStatus, to)
	}
	if !s.CanTransition(to) {
		return s, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s, to)
	}
	return to, nil
}

// InitialStatus is the status a new expense starts in: approved when the
// creator records their own payment, pending otherwise.
func InitialStatus(paidByID, creatorID string) ExpenseStatus {
	if paidByID != "" && paidByID == creatorID {
		return StatusApproved
	}
	return StatusPending
}

// ParseStatus converts a raw string to an ExpenseStatus.
func ParseStatus(s string) (ExpenseStatus, error) {
	st := ExpenseStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
	}
	return st, nil
}
