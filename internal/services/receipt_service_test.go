package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coparent/internal/core"
	"coparent/internal/receipts"
)

type fakeScanner struct {
	draft receipts.Draft
	err   error
	calls int
}

func (s *fakeScanner) Enabled() bool { return true }

func (s *fakeScanner) Scan(context.Context, []byte, string) (receipts.Draft, error) {
	s.calls++
	return s.draft, s.err
}

func TestReceiptScanAndApprove(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	scanner := &fakeScanner{draft: receipts.Draft{
		Amount: core.Money{Agorot: 8790}, Category: "Food", Description: "Shufersal",
	}}
	svc := NewReceiptService(scanner, f.store, f.expenses)
	svc.now = (&fixedClock{t: time.Date(2024, 6, 12, 18, 30, 0, 0, time.UTC)}).now

	_, err := svc.Scan(ctx, "stranger", f.account.ID, []byte("img"), "image/jpeg")
	assert.ErrorIs(t, err, ErrNotMember)
	assert.Zero(t, scanner.calls)

	draft, err := svc.Scan(ctx, yoni, f.account.ID, []byte("img"), "image/jpeg")
	require.NoError(t, err)
	assert.Equal(t, "Shufersal", draft.Description)

	e, err := svc.Approve(ctx, yoni, f.account.ID, DraftApproval{Draft: draft, SplitEqually: true})
	require.NoError(t, err)
	assert.Equal(t, yoni, e.PaidByID)
	assert.Equal(t, core.StatusApproved, e.Status, "scanned by the payer")
	assert.Equal(t, "2024-06-12", e.Date.String(), "unreadable date becomes today")

	e, err = svc.Approve(ctx, yoni, f.account.ID, DraftApproval{Draft: draft, PaidByID: dana})
	require.NoError(t, err)
	assert.Equal(t, core.StatusPending, e.Status)
}

func TestReceiptScanDisabled(t *testing.T) {
	f := newFamily(t)
	svc := NewReceiptService(nil, f.store, f.expenses)
	assert.False(t, svc.Enabled())

	_, err := svc.Scan(context.Background(), dana, f.account.ID, nil, "image/png")
	assert.ErrorIs(t, err, receipts.ErrDisabled)
}
