package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"coparent/internal/amqp"
	"coparent/internal/core"
	"coparent/internal/memory"
	"coparent/internal/notify"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []*amqp.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env *amqp.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, env)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type countingInvalidator struct {
	mu    sync.Mutex
	calls map[string]int
}

func (c *countingInvalidator) Invalidate(accountID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.calls == nil {
		c.calls = map[string]int{}
	}
	c.calls[accountID]++
}

func (c *countingInvalidator) count(accountID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[accountID]
}

type recordingChannel struct {
	name string
	mu   sync.Mutex
	sent []notify.Message
}

func (c *recordingChannel) Name() string  { return c.name }
func (c *recordingChannel) Enabled() bool { return true }

func (c *recordingChannel) Send(_ context.Context, msg notify.Message) error {
	if c.name == "sms" && msg.To.Phone == "" {
		return notify.ErrNoAddress
	}
	if c.name == "email" && msg.To.Email == "" {
		return notify.ErrNoAddress
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, msg)
	return nil
}

func (c *recordingChannel) messages() []notify.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]notify.Message(nil), c.sent...)
}

// family is a two-member account: Dana (owner, admin) and Yoni (member).
type family struct {
	store     *memory.Store
	account   core.Account
	publisher *recordingPublisher
	invalid   *countingInvalidator
	expenses  *ExpenseService
}

const (
	dana = "u-dana"
	yoni = "u-yoni"
)

func newFamily(t *testing.T) *family {
	t.Helper()
	ctx := context.Background()
	store := memory.New()

	_, err := store.CreateUser(ctx, core.User{ID: dana, Name: "Dana", Email: "dana@example.com"})
	require.NoError(t, err)
	_, err = store.CreateUser(ctx, core.User{ID: yoni, Name: "Yoni", Phone: "+972501234567"})
	require.NoError(t, err)

	account, err := store.CreateAccount(ctx,
		core.Account{Name: "Home", OwnerID: dana, SubscriptionStatus: core.SubscriptionTrial},
		core.AccountMember{UserID: dana, UserName: "Dana", Role: core.RoleAdmin})
	require.NoError(t, err)
	require.NoError(t, store.AddMember(ctx, account.ID, core.AccountMember{UserID: yoni, UserName: "Yoni", Role: core.RoleMember}))

	f := &family{
		store:     store,
		account:   account,
		publisher: &recordingPublisher{},
		invalid:   &countingInvalidator{},
	}
	f.expenses = NewExpenseService(store, f.publisher, f.invalid, nil)
	return f
}

func (f *family) expense(t *testing.T, actor, payer string, agorot int64, d core.Date) core.Expense {
	t.Helper()
	e, err := f.expenses.CreateExpense(context.Background(), actor, f.account.ID, core.Expense{
		Date:         d,
		Description:  "Groceries",
		Amount:       core.Money{Agorot: agorot},
		Category:     "Food",
		PaidByID:     payer,
		SplitEqually: true,
	})
	require.NoError(t, err)
	return e
}

type fixedClock struct{ t time.Time }

func (c *fixedClock) now() time.Time { return c.t }
