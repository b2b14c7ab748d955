// Package memory is a process-local Store used for development and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"coparent/internal/core"
)

type Store struct {
	mu          sync.RWMutex
	now         func() time.Time
	expenses    []core.Expense
	mirrored    map[string]string
	accounts    map[string]core.Account
	members     map[string][]core.AccountMember
	users       map[string]core.User
	invitations []core.Invitation
	budgets     []core.Budget
	children    []core.Child
}

func New() *Store {
	return &Store{
		now:      time.Now,
		mirrored: map[string]string{},
		accounts: map[string]core.Account{},
		members:  map[string][]core.AccountMember{},
		users:    map[string]core.User{},
	}
}

func newID() string { return uuid.NewString() }

func (s *Store) Ping(context.Context) error { return nil }

// CreateExpense stores the expense and assigns an ID when missing.
func (s *Store) CreateExpense(_ context.Context, e core.Expense) (core.Expense, error) {
	if err := e.Validate(); err != nil {
		return core.Expense{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e.RecurringParentID != "" {
		for _, other := range s.expenses {
			if other.RecurringParentID == e.RecurringParentID && other.Date.Equal(e.Date.Time) {
				return core.Expense{}, fmt.Errorf("instance of %s on %s: %w", e.RecurringParentID, e.Date, core.ErrAlreadyExists)
			}
		}
	}
	if e.ID == "" {
		e.ID = newID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now().UTC()
	}
	if e.Status == "" {
		e.Status = core.StatusPending
	}
	s.expenses = append(s.expenses, e)
	return e, nil
}

func (s *Store) findExpense(id string) int {
	for i, e := range s.expenses {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) GetExpense(_ context.Context, id string) (core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i := s.findExpense(id)
	if i < 0 {
		return core.Expense{}, fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	return s.expenses[i], nil
}

func (s *Store) ListExpenses(_ context.Context, accountID string, f core.ExpenseFilter) ([]core.Expense, error) {
	s.mu.RLock()
	var own []core.Expense
	for _, e := range s.expenses {
		if e.AccountID == accountID {
			own = append(own, e)
		}
	}
	s.mu.RUnlock()
	return f.Apply(own)
}

func (s *Store) UpdatePendingExpense(_ context.Context, e core.Expense) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findExpense(e.ID)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", e.ID, core.ErrNotFound)
	}
	cur := s.expenses[i]
	if cur.Status != core.StatusPending {
		return fmt.Errorf("expense %s is %s: %w", e.ID, cur.Status, core.ErrConflict)
	}
	cur.Date = e.Date
	cur.Description = e.Description
	cur.Amount = e.Amount
	cur.Category = e.Category
	cur.ChildID = e.ChildID
	cur.PaidByID = e.PaidByID
	cur.SplitEqually = e.SplitEqually
	cur.ReceiptURL = e.ReceiptURL
	s.expenses[i] = cur
	return nil
}

func (s *Store) TransitionExpense(_ context.Context, id string, from, to core.ExpenseStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.findExpense(id)
	if i < 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	if s.expenses[i].Status != from {
		return fmt.Errorf("expense %s is %s, expected %s: %w", id, s.expenses[i].Status, from, core.ErrConflict)
	}
	s.expenses[i].Status = to
	return nil
}

func (s *Store) ListRecurringTemplates(context.Context) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.IsTemplate() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *Store) LatestInstanceDate(_ context.Context, templateID string) (core.Date, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest core.Date
	found := false
	for _, e := range s.expenses {
		if e.RecurringParentID != templateID {
			continue
		}
		if !found || e.Date.After(latest.Time) {
			latest = e.Date
			found = true
		}
	}
	return latest, found, nil
}

func (s *Store) ListUnmirrored(_ context.Context, limit int) ([]core.Expense, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Expense
	for _, e := range s.expenses {
		if e.Status != core.StatusApproved && e.Status != core.StatusPaid {
			continue
		}
		if _, ok := s.mirrored[e.ID]; ok {
			continue
		}
		out = append(out, e)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) MarkMirrored(_ context.Context, id, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.findExpense(id) < 0 {
		return fmt.Errorf("expense %s: %w", id, core.ErrNotFound)
	}
	s.mirrored[id] = ref
	return nil
}

func (s *Store) CreateAccount(_ context.Context, a core.Account, owner core.AccountMember) (core.Account, error) {
	if strings.TrimSpace(a.Name) == "" {
		return core.Account{}, core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		a.ID = newID()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = s.now().UTC()
	}
	if owner.JoinedAt.IsZero() {
		owner.JoinedAt = a.CreatedAt
	}
	s.accounts[a.ID] = a
	s.members[a.ID] = []core.AccountMember{owner}
	return a, nil
}

func (s *Store) GetAccount(_ context.Context, id string) (core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return core.Account{}, fmt.Errorf("account %s: %w", id, core.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListAccountsForUser(_ context.Context, userID string) ([]core.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Account
	for id, ms := range s.members {
		if _, ok := core.FindMember(ms, userID); ok {
			out = append(out, s.accounts[id])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) ListMembers(_ context.Context, accountID string) ([]core.AccountMember, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.accounts[accountID]; !ok {
		return nil, fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	ms := s.members[accountID]
	out := make([]core.AccountMember, len(ms))
	copy(out, ms)
	for i := range out {
		if u, ok := s.users[out[i].UserID]; ok && out[i].UserName == "" {
			out[i].UserName = u.Name
		}
	}
	return out, nil
}

func (s *Store) AddMember(_ context.Context, accountID string, m core.AccountMember) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[accountID]; !ok {
		return fmt.Errorf("account %s: %w", accountID, core.ErrNotFound)
	}
	if _, ok := core.FindMember(s.members[accountID], m.UserID); ok {
		return fmt.Errorf("member %s: %w", m.UserID, core.ErrAlreadyExists)
	}
	if m.JoinedAt.IsZero() {
		m.JoinedAt = s.now().UTC()
	}
	s.members[accountID] = append(s.members[accountID], m)
	return nil
}

func (s *Store) RemoveMember(_ context.Context, accountID, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ms := s.members[accountID]
	for i, m := range ms {
		if m.UserID == userID {
			s.members[accountID] = append(ms[:i:i], ms[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("member %s: %w", userID, core.ErrNotFound)
}

func (s *Store) CreateUser(_ context.Context, u core.User) (core.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.users {
		if u.Email != "" && strings.EqualFold(existing.Email, u.Email) {
			return core.User{}, fmt.Errorf("email %s: %w", u.Email, core.ErrAlreadyExists)
		}
		if u.Phone != "" && existing.Phone == u.Phone {
			return core.User{}, fmt.Errorf("phone %s: %w", u.Phone, core.ErrAlreadyExists)
		}
	}
	if u.ID == "" {
		u.ID = newID()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = s.now().UTC()
	}
	s.users[u.ID] = u
	return u, nil
}

func (s *Store) GetUser(_ context.Context, id string) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	if !ok {
		return core.User{}, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

func (s *Store) findUser(match func(core.User) bool) (core.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if match(u) {
			return u, nil
		}
	}
	return core.User{}, fmt.Errorf("user: %w", core.ErrNotFound)
}

func (s *Store) GetUserByEmail(_ context.Context, email string) (core.User, error) {
	return s.findUser(func(u core.User) bool { return email != "" && strings.EqualFold(u.Email, email) })
}

func (s *Store) GetUserByPhone(_ context.Context, phone string) (core.User, error) {
	return s.findUser(func(u core.User) bool { return phone != "" && u.Phone == phone })
}

func (s *Store) CreateInvitation(_ context.Context, inv core.Invitation) (core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inv.ID == "" {
		inv.ID = newID()
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = s.now().UTC()
	}
	s.invitations = append(s.invitations, inv)
	return inv, nil
}

func (s *Store) GetInvitationByToken(_ context.Context, token string) (core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, inv := range s.invitations {
		if inv.Token == token {
			return inv, nil
		}
	}
	return core.Invitation{}, fmt.Errorf("invitation: %w", core.ErrNotFound)
}

func (s *Store) ListInvitations(_ context.Context, accountID string) ([]core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Invitation
	for _, inv := range s.invitations {
		if inv.AccountID == accountID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (s *Store) CloseInvitation(_ context.Context, id string, status core.InvitationStatus, by string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, inv := range s.invitations {
		if inv.ID != id {
			continue
		}
		if inv.Status != core.InvitationPending {
			return fmt.Errorf("invitation %s is %s: %w", id, inv.Status, core.ErrConflict)
		}
		s.invitations[i].Status = status
		s.invitations[i].AcceptedBy = by
		s.invitations[i].AcceptedAt = at
		return nil
	}
	return fmt.Errorf("invitation %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateBudget(_ context.Context, b core.Budget) (core.Budget, error) {
	if err := b.Validate(); err != nil {
		return core.Budget{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if b.ID == "" {
		b.ID = newID()
	}
	s.budgets = append(s.budgets, b)
	return b, nil
}

func (s *Store) ListBudgets(_ context.Context, accountID string) ([]core.Budget, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Budget
	for _, b := range s.budgets {
		if b.AccountID == accountID {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *Store) DeleteBudget(_ context.Context, accountID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, b := range s.budgets {
		if b.ID == id && b.AccountID == accountID {
			s.budgets = append(s.budgets[:i:i], s.budgets[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("budget %s: %w", id, core.ErrNotFound)
}

func (s *Store) CreateChild(_ context.Context, c core.Child) (core.Child, error) {
	if strings.TrimSpace(c.Name) == "" {
		return core.Child{}, core.ErrEmptyName
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c.ID == "" {
		c.ID = newID()
	}
	s.children = append(s.children, c)
	return c, nil
}

func (s *Store) ListChildren(_ context.Context, accountID string) ([]core.Child, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.Child
	for _, c := range s.children {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	return out, nil
}
