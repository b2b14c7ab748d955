package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coparent/internal/core"
)

func TestCreateAccountStartsTrial(t *testing.T) {
	f := newFamily(t)
	clock := &fixedClock{t: time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)}
	svc := NewAccountService(f.store, nil, nil)
	svc.now = clock.now

	a, err := svc.CreateAccount(context.Background(), yoni, "  Yoni's place ")
	require.NoError(t, err)
	assert.Equal(t, "Yoni's place", a.Name)
	assert.Equal(t, core.SubscriptionTrial, a.SubscriptionStatus)
	assert.Equal(t, clock.t.Add(14*24*time.Hour), a.TrialEndsAt)

	members, err := svc.ListMembers(context.Background(), yoni, a.ID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, core.RoleAdmin, members[0].Role)
	assert.Equal(t, "Yoni", members[0].UserName)

	accounts, err := svc.ListAccounts(context.Background(), yoni)
	require.NoError(t, err)
	assert.Len(t, accounts, 2, "the family account and the new one")

	_, err = svc.CreateAccount(context.Background(), yoni, " ")
	assert.ErrorIs(t, err, core.ErrEmptyName)
}

func TestRemoveMember(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	svc := NewAccountService(f.store, f.invalid, nil)

	err := svc.RemoveMember(ctx, yoni, f.account.ID, dana)
	assert.ErrorIs(t, err, ErrForbidden, "members cannot remove anyone")

	err = svc.RemoveMember(ctx, dana, f.account.ID, dana)
	assert.ErrorIs(t, err, ErrForbidden)
	assert.ErrorIs(t, err, ErrOwnerRemoval)

	require.NoError(t, svc.RemoveMember(ctx, dana, f.account.ID, yoni))
	assert.Equal(t, 1, f.invalid.count(f.account.ID))

	_, err = svc.GetAccount(ctx, yoni, f.account.ID)
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestChildrenAndBudgets(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	svc := NewAccountService(f.store, nil, nil)

	child, err := svc.AddChild(ctx, yoni, f.account.ID, "Noa", core.NewDate(2018, 3, 2))
	require.NoError(t, err)
	children, err := svc.ListChildren(ctx, dana, f.account.ID)
	require.NoError(t, err)
	require.Len(t, children, 1)
	assert.Equal(t, child.ID, children[0].ID)

	budget := core.Budget{Categories: []string{" Food "}, MonthlyAmount: core.Money{Agorot: 150000}, BudgetType: core.BudgetRecurring}
	_, err = svc.CreateBudget(ctx, yoni, f.account.ID, budget)
	assert.ErrorIs(t, err, ErrForbidden)

	b, err := svc.CreateBudget(ctx, dana, f.account.ID, budget)
	require.NoError(t, err)
	assert.Equal(t, []string{"Food"}, b.Categories)

	budgets, err := svc.ListBudgets(ctx, yoni, f.account.ID)
	require.NoError(t, err)
	assert.Len(t, budgets, 1)

	require.NoError(t, svc.DeleteBudget(ctx, dana, f.account.ID, b.ID))
	budgets, err = svc.ListBudgets(ctx, yoni, f.account.ID)
	require.NoError(t, err)
	assert.Empty(t, budgets)
}

func TestBuildReport(t *testing.T) {
	f := newFamily(t)
	ctx := context.Background()
	reports := NewReportService(f.store)

	f.expense(t, dana, dana, 10000, core.NewDate(2024, 6, 3))
	rejected := f.expense(t, dana, yoni, 5000, core.NewDate(2024, 6, 4))
	_, err := f.expenses.TransitionExpense(ctx, yoni, rejected.ID, core.StatusRejected)
	require.NoError(t, err)

	r, err := reports.BuildReport(ctx, yoni, f.account.ID, core.MonthPeriod(2024, 6))
	require.NoError(t, err)
	assert.Equal(t, int64(10000), r.Total.Agorot, "rejected expenses never count")
	require.Len(t, r.ByCategory, 1)
	assert.Equal(t, "Food", r.ByCategory[0].Name)

	_, err = reports.BuildReport(ctx, "stranger", f.account.ID, core.AllTime())
	assert.ErrorIs(t, err, ErrNotMember)
}
