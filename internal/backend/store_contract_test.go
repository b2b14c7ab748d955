package backend_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
)

// StoreSuite runs the same behavioural checks against every Store implementation
type StoreSuite struct {
	suite.Suite
	typ     backend.BackendType
	store   backend.Store
	cleanup backend.CleanupFunc
	ctx     context.Context
}

func TestMemoryStore(t *testing.T) {
	suite.Run(t, &StoreSuite{typ: backend.MemoryBackend})
}

func TestSQLiteStore(t *testing.T) {
	suite.Run(t, &StoreSuite{typ: backend.SQLiteBackend})
}

func (s *StoreSuite) SetupTest() {
	s.ctx = context.Background()
	res, err := backend.NewFactory(log.Discard()).CreateBackend(s.ctx, backend.Config{
		Type:         s.typ,
		SQLiteDBPath: filepath.Join(s.T().TempDir(), "test.db"),
	})
	require.NoError(s.T(), err, "failed to create store")
	s.store = res.Store
	s.cleanup = res.Cleanup
}

func (s *StoreSuite) TearDownTest() {
	if s.cleanup != nil {
		s.cleanup()
	}
}

func (s *StoreSuite) newAccount(ownerID string) core.Account {
	a, err := s.store.CreateAccount(s.ctx,
		core.Account{Name: "Family", OwnerID: ownerID, SubscriptionStatus: core.SubscriptionTrial},
		core.AccountMember{UserID: ownerID, UserName: "Owner", Role: core.RoleAdmin})
	require.NoError(s.T(), err)
	return a
}

func (s *StoreSuite) newExpense(accountID string, d core.Date, status core.ExpenseStatus) core.Expense {
	e, err := s.store.CreateExpense(s.ctx, core.Expense{
		AccountID:    accountID,
		Date:         d,
		Description:  "Groceries",
		Amount:       core.Money{Agorot: 12345},
		Category:     "Food",
		PaidByID:     "u1",
		SplitEqually: true,
		Status:       status,
		CreatedBy:    "u1",
	})
	require.NoError(s.T(), err)
	return e
}

func (s *StoreSuite) TestCreateAndGetExpense() {
	a := s.newAccount("u1")
	e := s.newExpense(a.ID, core.NewDate(2024, 6, 15), core.StatusPending)

	assert.NotEmpty(s.T(), e.ID)
	assert.False(s.T(), e.CreatedAt.IsZero())

	got, err := s.store.GetExpense(s.ctx, e.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "2024-06-15", got.Date.String())
	assert.Equal(s.T(), int64(12345), got.Amount.Agorot)
	assert.True(s.T(), got.SplitEqually)
	assert.Equal(s.T(), core.StatusPending, got.Status)

	_, err = s.store.GetExpense(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestCreateExpenseRejectsInvalid() {
	_, err := s.store.CreateExpense(s.ctx, core.Expense{AccountID: "a", Description: "x"})
	assert.Error(s.T(), err)
}

func (s *StoreSuite) TestListExpensesFilters() {
	a := s.newAccount("u1")
	other := s.newAccount("u2")
	s.newExpense(a.ID, core.NewDate(2024, 3, 31), core.StatusApproved)
	s.newExpense(a.ID, core.NewDate(2024, 4, 1), core.StatusPending)
	s.newExpense(a.ID, core.NewDate(2024, 6, 30), core.StatusApproved)
	s.newExpense(other.ID, core.NewDate(2024, 4, 2), core.StatusApproved)

	all, err := s.store.ListExpenses(s.ctx, a.ID, core.ExpenseFilter{})
	require.NoError(s.T(), err)
	assert.Len(s.T(), all, 3)

	q2, err := s.store.ListExpenses(s.ctx, a.ID, core.ExpenseFilter{Period: core.QuarterPeriod(2024, 2)})
	require.NoError(s.T(), err)
	assert.Len(s.T(), q2, 2)

	approvedQ2, err := s.store.ListExpenses(s.ctx, a.ID, core.ExpenseFilter{
		Period:   core.QuarterPeriod(2024, 2),
		Statuses: []core.ExpenseStatus{core.StatusApproved},
		Category: "food",
	})
	require.NoError(s.T(), err)
	require.Len(s.T(), approvedQ2, 1)
	assert.Equal(s.T(), "2024-06-30", approvedQ2[0].Date.String())

	_, err = s.store.ListExpenses(s.ctx, a.ID, core.ExpenseFilter{Period: core.MonthPeriod(2024, 13)})
	assert.ErrorIs(s.T(), err, core.ErrInvalidPeriod)
}

func (s *StoreSuite) TestTransitionIsConditional() {
	a := s.newAccount("u1")
	e := s.newExpense(a.ID, core.NewDate(2024, 6, 1), core.StatusPending)

	require.NoError(s.T(), s.store.TransitionExpense(s.ctx, e.ID, core.StatusPending, core.StatusApproved))

	err := s.store.TransitionExpense(s.ctx, e.ID, core.StatusPending, core.StatusRejected)
	assert.ErrorIs(s.T(), err, core.ErrConflict)

	got, err := s.store.GetExpense(s.ctx, e.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), core.StatusApproved, got.Status, "losing writer must not change the row")

	err = s.store.TransitionExpense(s.ctx, "missing", core.StatusPending, core.StatusApproved)
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestConcurrentTransitionsHaveOneWinner() {
	a := s.newAccount("u1")
	e := s.newExpense(a.ID, core.NewDate(2024, 6, 1), core.StatusPending)

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		wins      int
		conflicts int
	)
	for _, to := range []core.ExpenseStatus{core.StatusApproved, core.StatusRejected, core.StatusApproved, core.StatusRejected} {
		wg.Add(1)
		go func(to core.ExpenseStatus) {
			defer wg.Done()
			err := s.store.TransitionExpense(s.ctx, e.ID, core.StatusPending, to)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if assert.ErrorIs(s.T(), err, core.ErrConflict) {
				conflicts++
			}
		}(to)
	}
	wg.Wait()
	assert.Equal(s.T(), 1, wins)
	assert.Equal(s.T(), 3, conflicts)
}

func (s *StoreSuite) TestUpdatePendingExpense() {
	a := s.newAccount("u1")
	e := s.newExpense(a.ID, core.NewDate(2024, 6, 1), core.StatusPending)

	e.Description = "Shoes"
	e.Amount = core.Money{Agorot: 500}
	require.NoError(s.T(), s.store.UpdatePendingExpense(s.ctx, e))

	got, err := s.store.GetExpense(s.ctx, e.ID)
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "Shoes", got.Description)
	assert.Equal(s.T(), int64(500), got.Amount.Agorot)

	require.NoError(s.T(), s.store.TransitionExpense(s.ctx, e.ID, core.StatusPending, core.StatusApproved))
	assert.ErrorIs(s.T(), s.store.UpdatePendingExpense(s.ctx, e), core.ErrConflict)
}

func (s *StoreSuite) TestRecurringTemplatesAndInstances() {
	a := s.newAccount("u1")
	tmpl := core.Expense{
		AccountID: a.ID, Date: core.NewDate(2024, 1, 10), Description: "Rent", Amount: core.Money{Agorot: 100000},
		Category: "Housing", PaidByID: "u1", Status: core.StatusApproved, IsRecurring: true, Frequency: core.Monthly,
	}
	tmpl, err := s.store.CreateExpense(s.ctx, tmpl)
	require.NoError(s.T(), err)

	_, ok, err := s.store.LatestInstanceDate(s.ctx, tmpl.ID)
	require.NoError(s.T(), err)
	assert.False(s.T(), ok)

	for _, m := range []int{2, 3} {
		inst := tmpl
		inst.ID = ""
		inst.IsRecurring = false
		inst.RecurringParentID = tmpl.ID
		inst.Date = core.NewDate(2024, m, 10)
		_, err := s.store.CreateExpense(s.ctx, inst)
		require.NoError(s.T(), err)
	}

	templates, err := s.store.ListRecurringTemplates(s.ctx)
	require.NoError(s.T(), err)
	require.Len(s.T(), templates, 1)
	assert.Equal(s.T(), tmpl.ID, templates[0].ID)

	latest, ok, err := s.store.LatestInstanceDate(s.ctx, tmpl.ID)
	require.NoError(s.T(), err)
	assert.True(s.T(), ok)
	assert.Equal(s.T(), "2024-03-10", latest.String())

	dup := tmpl
	dup.ID = ""
	dup.IsRecurring = false
	dup.RecurringParentID = tmpl.ID
	dup.Date = core.NewDate(2024, 3, 10)
	_, err = s.store.CreateExpense(s.ctx, dup)
	assert.ErrorIs(s.T(), err, core.ErrAlreadyExists, "one instance per template and date")
}

func (s *StoreSuite) TestMirrorQueue() {
	a := s.newAccount("u1")
	pending := s.newExpense(a.ID, core.NewDate(2024, 6, 1), core.StatusPending)
	approved := s.newExpense(a.ID, core.NewDate(2024, 6, 2), core.StatusApproved)

	items, err := s.store.ListUnmirrored(s.ctx, 10)
	require.NoError(s.T(), err)
	require.Len(s.T(), items, 1)
	assert.Equal(s.T(), approved.ID, items[0].ID)

	require.NoError(s.T(), s.store.MarkMirrored(s.ctx, approved.ID, "Expenses!A2"))
	items, err = s.store.ListUnmirrored(s.ctx, 10)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), items)

	require.NoError(s.T(), s.store.TransitionExpense(s.ctx, pending.ID, core.StatusPending, core.StatusApproved))
	items, err = s.store.ListUnmirrored(s.ctx, 10)
	require.NoError(s.T(), err)
	assert.Len(s.T(), items, 1)
}

func (s *StoreSuite) TestAccountsAndMembers() {
	_, err := s.store.CreateUser(s.ctx, core.User{ID: "u2", Name: "Dana", Email: "dana@example.com"})
	require.NoError(s.T(), err)

	a := s.newAccount("u1")
	require.NoError(s.T(), s.store.AddMember(s.ctx, a.ID, core.AccountMember{UserID: "u2", Role: core.RoleMember}))
	assert.ErrorIs(s.T(), s.store.AddMember(s.ctx, a.ID, core.AccountMember{UserID: "u2", Role: core.RoleMember}), core.ErrAlreadyExists)

	members, err := s.store.ListMembers(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), members, 2)
	assert.Equal(s.T(), "u1", members[0].UserID)
	assert.Equal(s.T(), core.RoleAdmin, members[0].Role)
	assert.Equal(s.T(), "Dana", members[1].UserName, "member name falls back to the user record")

	accounts, err := s.store.ListAccountsForUser(s.ctx, "u2")
	require.NoError(s.T(), err)
	require.Len(s.T(), accounts, 1)
	assert.Equal(s.T(), a.ID, accounts[0].ID)

	require.NoError(s.T(), s.store.RemoveMember(s.ctx, a.ID, "u2"))
	assert.ErrorIs(s.T(), s.store.RemoveMember(s.ctx, a.ID, "u2"), core.ErrNotFound)

	_, err = s.store.ListMembers(s.ctx, "missing")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestUsersAreUnique() {
	u, err := s.store.CreateUser(s.ctx, core.User{Email: "a@example.com", Name: "A"})
	require.NoError(s.T(), err)
	_, err = s.store.CreateUser(s.ctx, core.User{Email: "a@example.com", Name: "B"})
	assert.ErrorIs(s.T(), err, core.ErrAlreadyExists)

	_, err = s.store.CreateUser(s.ctx, core.User{Phone: "+972501234567"})
	require.NoError(s.T(), err)
	_, err = s.store.CreateUser(s.ctx, core.User{Phone: "+972501234567"})
	assert.ErrorIs(s.T(), err, core.ErrAlreadyExists)

	// users without email or phone never collide
	_, err = s.store.CreateUser(s.ctx, core.User{Name: "C"})
	require.NoError(s.T(), err)
	_, err = s.store.CreateUser(s.ctx, core.User{Name: "D"})
	require.NoError(s.T(), err)

	got, err := s.store.GetUserByEmail(s.ctx, "a@example.com")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), u.ID, got.ID)

	_, err = s.store.GetUserByPhone(s.ctx, "+1000")
	assert.ErrorIs(s.T(), err, core.ErrNotFound)
}

func (s *StoreSuite) TestInvitationLifecycle() {
	a := s.newAccount("u1")
	now := time.Now().UTC().Truncate(time.Second)
	inv, err := s.store.CreateInvitation(s.ctx, core.Invitation{
		AccountID: a.ID, Phone: "+972501234567", Token: "tok-1", InvitedBy: "u1",
		Status: core.InvitationPending, ExpiresAt: now.Add(7 * 24 * time.Hour),
	})
	require.NoError(s.T(), err)

	got, err := s.store.GetInvitationByToken(s.ctx, "tok-1")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), inv.ID, got.ID)
	assert.True(s.T(), got.ExpiresAt.Equal(inv.ExpiresAt))

	require.NoError(s.T(), s.store.CloseInvitation(s.ctx, inv.ID, core.InvitationAccepted, "u2", now))
	assert.ErrorIs(s.T(), s.store.CloseInvitation(s.ctx, inv.ID, core.InvitationAccepted, "u3", now), core.ErrConflict)
	assert.ErrorIs(s.T(), s.store.CloseInvitation(s.ctx, "missing", core.InvitationAccepted, "u3", now), core.ErrNotFound)

	list, err := s.store.ListInvitations(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), list, 1)
	assert.Equal(s.T(), core.InvitationAccepted, list[0].Status)
	assert.Equal(s.T(), "u2", list[0].AcceptedBy)
}

func (s *StoreSuite) TestBudgetsAndChildren() {
	a := s.newAccount("u1")
	b, err := s.store.CreateBudget(s.ctx, core.Budget{
		AccountID: a.ID, Categories: []string{"Food", "Snacks"}, MonthlyAmount: core.Money{Agorot: 150000},
		BudgetType: core.BudgetRecurring, StartDate: core.NewDate(2024, 1, 1),
	})
	require.NoError(s.T(), err)

	budgets, err := s.store.ListBudgets(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), budgets, 1)
	assert.Equal(s.T(), []string{"Food", "Snacks"}, budgets[0].Categories)
	assert.Equal(s.T(), "2024-01-01", budgets[0].StartDate.String())
	assert.True(s.T(), budgets[0].EndDate.IsZero())

	require.NoError(s.T(), s.store.DeleteBudget(s.ctx, a.ID, b.ID))
	assert.ErrorIs(s.T(), s.store.DeleteBudget(s.ctx, a.ID, b.ID), core.ErrNotFound)

	_, err = s.store.CreateChild(s.ctx, core.Child{AccountID: a.ID, Name: "Noa", BirthDate: core.NewDate(2018, 5, 2)})
	require.NoError(s.T(), err)
	_, err = s.store.CreateChild(s.ctx, core.Child{AccountID: a.ID, Name: " "})
	assert.ErrorIs(s.T(), err, core.ErrEmptyName)

	children, err := s.store.ListChildren(s.ctx, a.ID)
	require.NoError(s.T(), err)
	require.Len(s.T(), children, 1)
	assert.Equal(s.T(), "2018-05-02", children[0].BirthDate.String())
}
