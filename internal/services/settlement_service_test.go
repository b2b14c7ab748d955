package services

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coparent/internal/core"
)

func bucket(t *testing.T, r SettlementReport, s core.ExpenseStatus) core.Settlement {
	t.Helper()
	for _, b := range r.Buckets {
		if b.Status == s {
			return b
		}
	}
	t.Fatalf("no %s bucket", s)
	return core.Settlement{}
}

func TestSettleTwoMembers(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	settle := NewSettlementService(f.store, f.store, nil)

	f.expense(t, dana, dana, 10000, core.NewDate(2024, 6, 3))
	f.expense(t, dana, yoni, 4000, core.NewDate(2024, 6, 4))
	f.expense(t, dana, dana, 99900, core.NewDate(2024, 5, 30))

	r, err := settle.Settle(ctx, yoni, f.account.ID, core.ReceivableView, core.MonthPeriod(2024, 6))
	require.NoError(t, err)
	require.Len(t, r.Buckets, 3)
	assert.Len(t, r.Members, 2)

	approved := bucket(t, r, core.StatusApproved)
	require.NotNil(t, approved.Transfer)
	assert.Equal(t, yoni, approved.Transfer.FromUserID)
	assert.Equal(t, dana, approved.Transfer.ToUserID)
	assert.True(t, approved.Transfer.Amount.Equal(decimal.NewFromInt(50)), "got %s", approved.Transfer.Amount)

	pending := bucket(t, r, core.StatusPending)
	require.NotNil(t, pending.Transfer)
	assert.Equal(t, dana, pending.Transfer.FromUserID, "pending bucket is computed on its own")
	assert.True(t, pending.Transfer.Amount.Equal(decimal.NewFromInt(20)))

	assert.True(t, bucket(t, r, core.StatusPaid).Transfer.Settled)
}

func TestSettleSeesWritesAfterInvalidate(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	settle := NewSettlementService(f.store, f.store, nil)
	expenses := NewExpenseService(f.store, nil, settle, nil)
	june := core.MonthPeriod(2024, 6)

	r, err := settle.Settle(ctx, dana, f.account.ID, core.PayableView, june)
	require.NoError(t, err)
	assert.True(t, bucket(t, r, core.StatusApproved).Transfer.Settled)

	_, err = expenses.CreateExpense(ctx, dana, f.account.ID, core.Expense{
		Date: core.NewDate(2024, 6, 9), Description: "Rent", Amount: core.Money{Agorot: 20000},
		Category: "Housing", PaidByID: dana, SplitEqually: true,
	})
	require.NoError(t, err)

	r, err = settle.Settle(ctx, dana, f.account.ID, core.PayableView, june)
	require.NoError(t, err)
	tr := bucket(t, r, core.StatusApproved).Transfer
	require.False(t, tr.Settled, "cached ledger must be dropped on write")
	assert.Equal(t, dana, tr.FromUserID, "payable view: the responsible payer owes")
	assert.True(t, tr.Amount.Equal(decimal.NewFromInt(100)))
}

func TestSettleRejectsBadInput(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	settle := NewSettlementService(f.store, f.store, nil)

	_, err := settle.Settle(ctx, dana, f.account.ID, core.View("sideways"), core.AllTime())
	assert.ErrorIs(t, err, core.ErrInvalidView)

	_, err = settle.Settle(ctx, dana, f.account.ID, core.ReceivableView, core.MonthPeriod(2024, 13))
	assert.ErrorIs(t, err, core.ErrInvalidPeriod)

	_, err = settle.Settle(ctx, "stranger", f.account.ID, core.ReceivableView, core.AllTime())
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestSettleDefaultsToAllTime(t *testing.T) {
	f := newFamily(t)
	settle := NewSettlementService(f.store, f.store, nil)
	f.expense(t, dana, dana, 10000, core.NewDate(2019, 1, 1))

	r, err := settle.Settle(context.Background(), dana, f.account.ID, core.ReceivableView, core.Period{})
	require.NoError(t, err)
	assert.Equal(t, core.PeriodAll, r.Period.Type)
	assert.False(t, bucket(t, r, core.StatusApproved).Transfer.Settled)
}
