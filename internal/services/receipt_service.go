package services

import (
	"context"
	"time"

	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/receipts"
)

// ReceiptScanner turns a receipt image into an expense draft.
// *receipts.Scanner satisfies it.
type ReceiptScanner interface {
	Enabled() bool
	Scan(ctx context.Context, image []byte, mediaType string) (receipts.Draft, error)
}

// DraftApproval is a reviewed draft plus the fields a receipt cannot tell.
type DraftApproval struct {
	Draft        receipts.Draft
	PaidByID     string
	SplitEqually bool
	ChildID      string
}

type ReceiptService struct {
	scanner  ReceiptScanner
	members  backend.MemberLister
	expenses *ExpenseService
	now      func() time.Time
}

func NewReceiptService(scanner ReceiptScanner, members backend.MemberLister, expenses *ExpenseService) *ReceiptService {
	return &ReceiptService{scanner: scanner, members: members, expenses: expenses, now: time.Now}
}

func (s *ReceiptService) Enabled() bool {
	return s.scanner != nil && s.scanner.Enabled()
}

// Scan reads a receipt for a member of accountID. Nothing is stored.
func (s *ReceiptService) Scan(ctx context.Context, actorID, accountID string, image []byte, mediaType string) (receipts.Draft, error) {
	if !s.Enabled() {
		return receipts.Draft{}, receipts.ErrDisabled
	}
	if _, _, err := requireMember(ctx, s.members, accountID, actorID); err != nil {
		return receipts.Draft{}, err
	}
	return s.scanner.Scan(ctx, image, mediaType)
}

// Approve stores a reviewed draft as an expense. The payer defaults to the
// actor, in which case the expense is approved immediately; an unreadable
// date becomes today.
func (s *ReceiptService) Approve(ctx context.Context, actorID, accountID string, a DraftApproval) (core.Expense, error) {
	date := a.Draft.Date
	if date.IsZero() {
		date = core.DateOf(s.now())
	}
	paidBy := a.PaidByID
	if paidBy == "" {
		paidBy = actorID
	}
	return s.expenses.CreateExpense(ctx, actorID, accountID, core.Expense{
		Date:         date,
		Description:  a.Draft.Description,
		Amount:       a.Draft.Amount,
		Category:     a.Draft.Category,
		ChildID:      a.ChildID,
		PaidByID:     paidBy,
		SplitEqually: a.SplitEqually,
	})
}
