package core

import (
	"errors"
	"testing"
)

func TestStatusTransitions(t *testing.T) {
	all := []ExpenseStatus{StatusPending, StatusApproved, StatusRejected, StatusPaid}
	allowed := map[[2]ExpenseStatus]bool{
		{StatusPending, StatusApproved}: true,
		{StatusPending, StatusRejected}: true,
		{StatusApproved, StatusPaid}:    true,
	}
	for _, from := range all {
		for _, to := range all {
			got, err := from.Transition(to)
			if allowed[[2]ExpenseStatus{from, to}] {
				if err != nil || got != to {
					t.Fatalf("%s -> %s expected ok, got %s (err=%v)", from, to, got, err)
				}
				continue
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Fatalf("%s -> %s expected ErrInvalidTransition, got %v", from, to, err)
			}
			if got != from {
				t.Fatalf("%s -> %s should keep prior status, got %s", from, to, got)
			}
		}
	}
}

func TestStatusTerminal(t *testing.T) {
	if !StatusRejected.IsTerminal() || !StatusPaid.IsTerminal() {
		t.Fatalf("rejected and paid are terminal")
	}
	if StatusPending.IsTerminal() || StatusApproved.IsTerminal() {
		t.Fatalf("pending and approved are not terminal")
	}
	if ExpenseStatus("bogus").IsTerminal() {
		t.Fatalf("unknown status is not terminal")
	}
}

func TestTransitionToUnknownStatus(t *testing.T) {
	if _, err := StatusPending.Transition("done"); !errors.Is(err, ErrInvalidStatus) {
		t.Fatalf("expected ErrInvalidStatus, got %v", err)
	}
}

func TestInitialStatus(t *testing.T) {
	if InitialStatus("u1", "u1") != StatusApproved {
		t.Fatalf("creator paying themselves should be auto-approved")
	}
	if InitialStatus("u2", "u1") != StatusPending {
		t.Fatalf("expense paid by another member starts pending")
	}
	if InitialStatus("", "") != StatusPending {
		t.Fatalf("missing payer starts pending")
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus("paid"); err != nil || s != StatusPaid {
		t.Fatalf("ParseStatus(paid) = %s, %v", s, err)
	}
	if _, err := ParseStatus("PAID"); err == nil {
		t.Fatalf("status parsing is case sensitive")
	}
}
