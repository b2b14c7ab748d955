package services

import (
	"context"
	"fmt"
	"strings"

	"coparent/internal/amqp"
	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
)

// StatusSetter moves an expense through the approval workflow on behalf of
// one member.
type StatusSetter interface {
	SetExpenseStatus(ctx context.Context, expenseID string, to core.ExpenseStatus) error
}

// ExpenseService orchestrates expense writes: storage first, then cache
// invalidation and event publication. Publication failures never fail the
// request since the expense is already saved.
type ExpenseService struct {
	store       backend.Store
	publisher   Publisher
	invalidator Invalidator
	logger      *log.Logger
}

func NewExpenseService(store backend.Store, publisher Publisher, invalidator Invalidator, logger *log.Logger) *ExpenseService {
	if publisher == nil {
		publisher = nopPublisher{}
	}
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &ExpenseService{
		store:       store,
		publisher:   publisher,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentExpense),
	}
}

// CreateExpense records e in accountID on behalf of actorID. The expense is
// approved straight away when the actor is also the payer.
func (s *ExpenseService) CreateExpense(ctx context.Context, actorID, accountID string, e core.Expense) (core.Expense, error) {
	_, roster, err := requireMember(ctx, s.store, accountID, actorID)
	if err != nil {
		return core.Expense{}, err
	}
	if err := s.checkRefs(ctx, accountID, roster, e); err != nil {
		return core.Expense{}, err
	}

	e.ID = ""
	e.AccountID = accountID
	e.CreatedBy = actorID
	e.RecurringParentID = ""
	e.Category = strings.TrimSpace(e.Category)
	e.Status = core.InitialStatus(e.PaidByID, actorID)
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}
	return s.record(ctx, e)
}

// record stores an already validated expense and runs the follow-ups.
func (s *ExpenseService) record(ctx context.Context, e core.Expense) (core.Expense, error) {
	saved, err := s.store.CreateExpense(ctx, e)
	if err != nil {
		return core.Expense{}, fmt.Errorf("save expense: %w", err)
	}
	s.invalidator.Invalidate(saved.AccountID)

	log.NewStructuredLogger(s.logger).LogExpenseCreated(ctx, saved.AccountID, saved.CreatedBy, saved.ID,
		saved.Amount.Agorot, saved.Category, string(saved.Status))

	s.publish(ctx, amqp.EventExpenseCreated, saved, saved.CreatedBy, "")
	if saved.Status == core.StatusApproved {
		s.checkBudgets(ctx, saved)
	}
	return saved, nil
}

func (s *ExpenseService) checkRefs(ctx context.Context, accountID string, roster []core.AccountMember, e core.Expense) error {
	if e.PaidByID != "" {
		if _, ok := core.FindMember(roster, e.PaidByID); !ok {
			return fmt.Errorf("paid by %s: %w", e.PaidByID, ErrUnknownPayer)
		}
	}
	if e.ChildID == "" {
		return nil
	}
	children, err := s.store.ListChildren(ctx, accountID)
	if err != nil {
		return fmt.Errorf("list children: %w", err)
	}
	for _, c := range children {
		if c.ID == e.ChildID {
			return nil
		}
	}
	return fmt.Errorf("child %s: %w", e.ChildID, ErrUnknownChild)
}

func (s *ExpenseService) ListExpenses(ctx context.Context, actorID, accountID string, f core.ExpenseFilter) ([]core.Expense, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListExpenses(ctx, accountID, f)
}

// GetExpense returns an expense of an account the actor belongs to.
// Expenses of other accounts read as not found.
func (s *ExpenseService) GetExpense(ctx context.Context, actorID, expenseID string) (core.Expense, error) {
	e, err := s.store.GetExpense(ctx, expenseID)
	if err != nil {
		return core.Expense{}, err
	}
	if _, _, err := requireMember(ctx, s.store, e.AccountID, actorID); err != nil {
		return core.Expense{}, fmt.Errorf("expense %s: %w", expenseID, core.ErrNotFound)
	}
	return e, nil
}

// TransitionExpense applies one workflow step. The transition is checked
// against the state machine first and then written conditionally, so a
// concurrent change surfaces as core.ErrConflict.
func (s *ExpenseService) TransitionExpense(ctx context.Context, actorID, expenseID string, to core.ExpenseStatus) (core.Expense, error) {
	e, err := s.GetExpense(ctx, actorID, expenseID)
	if err != nil {
		return core.Expense{}, err
	}
	from := e.Status
	if _, err := from.Transition(to); err != nil {
		return core.Expense{}, err
	}
	if err := s.store.TransitionExpense(ctx, expenseID, from, to); err != nil {
		return core.Expense{}, fmt.Errorf("transition expense: %w", err)
	}
	e.Status = to
	s.invalidator.Invalidate(e.AccountID)

	s.logger.InfoContext(ctx, "Expense status changed",
		log.FieldExpenseID, e.ID, log.FieldAccountID, e.AccountID, log.FieldUserID, actorID,
		"from", string(from), "to", string(to))

	s.publish(ctx, amqp.EventExpenseStatusChanged, e, actorID, from)
	if to == core.StatusApproved {
		s.checkBudgets(ctx, e)
	}
	return e, nil
}

// For returns a StatusSetter acting as actorID.
func (s *ExpenseService) For(actorID string) StatusSetter {
	return actorStatusSetter{svc: s, actorID: actorID}
}

type actorStatusSetter struct {
	svc     *ExpenseService
	actorID string
}

func (a actorStatusSetter) SetExpenseStatus(ctx context.Context, expenseID string, to core.ExpenseStatus) error {
	_, err := a.svc.TransitionExpense(ctx, a.actorID, expenseID, to)
	return err
}

// ExpenseChanges are the editable fields of a pending expense. Nil fields
// are left untouched.
type ExpenseChanges struct {
	Date         *core.Date
	Description  *string
	Amount       *core.Money
	Category     *string
	ChildID      *string
	PaidByID     *string
	SplitEqually *bool
}

// UpdatePendingExpense edits an expense that nobody has approved or
// rejected yet.
func (s *ExpenseService) UpdatePendingExpense(ctx context.Context, actorID, expenseID string, ch ExpenseChanges) (core.Expense, error) {
	e, err := s.GetExpense(ctx, actorID, expenseID)
	if err != nil {
		return core.Expense{}, err
	}
	if e.Status != core.StatusPending {
		return core.Expense{}, fmt.Errorf("expense is %s: %w", e.Status, core.ErrConflict)
	}

	if ch.Date != nil {
		e.Date = *ch.Date
	}
	if ch.Description != nil {
		e.Description = *ch.Description
	}
	if ch.Amount != nil {
		e.Amount = *ch.Amount
	}
	if ch.Category != nil {
		e.Category = strings.TrimSpace(*ch.Category)
	}
	if ch.ChildID != nil {
		e.ChildID = *ch.ChildID
	}
	if ch.PaidByID != nil {
		e.PaidByID = *ch.PaidByID
	}
	if ch.SplitEqually != nil {
		e.SplitEqually = *ch.SplitEqually
	}

	roster, err := s.store.ListMembers(ctx, e.AccountID)
	if err != nil {
		return core.Expense{}, fmt.Errorf("list members: %w", err)
	}
	if err := s.checkRefs(ctx, e.AccountID, roster, e); err != nil {
		return core.Expense{}, err
	}
	if err := e.Validate(); err != nil {
		return core.Expense{}, fmt.Errorf("validate expense: %w", err)
	}
	if err := s.store.UpdatePendingExpense(ctx, e); err != nil {
		return core.Expense{}, fmt.Errorf("update expense: %w", err)
	}
	s.invalidator.Invalidate(e.AccountID)
	return e, nil
}

func (s *ExpenseService) publish(ctx context.Context, eventType string, e core.Expense, actorID string, from core.ExpenseStatus) {
	env, err := amqp.NewEnvelope(eventType, e.AccountID, amqp.ExpenseEvent{
		ExpenseID:    e.ID,
		Description:  e.Description,
		AmountAgorot: e.Amount.Agorot,
		Category:     e.Category,
		PaidByID:     e.PaidByID,
		ActorID:      actorID,
		FromStatus:   string(from),
		ToStatus:     string(e.Status),
	})
	if err == nil {
		err = s.publisher.Publish(ctx, env)
	}
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to publish expense event",
			log.FieldEvent, eventType, log.FieldExpenseID, e.ID, log.FieldError, err)
	}
}

// checkBudgets publishes budget.exceeded for every budget that e pushed over
// its plan for e's month. A budget already over before e is not reported
// again.
func (s *ExpenseService) checkBudgets(ctx context.Context, e core.Expense) {
	budgets, err := s.store.ListBudgets(ctx, e.AccountID)
	if err != nil {
		s.logger.WarnContext(ctx, "Budget check skipped", log.FieldAccountID, e.AccountID, log.FieldError, err)
		return
	}
	var relevant []core.Budget
	for _, b := range budgets {
		if b.HasCategory(e.Category) {
			relevant = append(relevant, b)
		}
	}
	if len(relevant) == 0 {
		return
	}

	month := core.MonthPeriod(e.Date.Year(), e.Date.Month())
	label := fmt.Sprintf("%04d-%02d", e.Date.Year(), e.Date.Month())
	expenses, err := s.store.ListExpenses(ctx, e.AccountID, core.ExpenseFilter{Period: month})
	if err != nil {
		s.logger.WarnContext(ctx, "Budget check skipped", log.FieldAccountID, e.AccountID, log.FieldError, err)
		return
	}

	for _, cmp := range core.CompareBudgets(relevant, expenses, month) {
		before := cmp.Actual.Agorot - e.Amount.Agorot
		if !cmp.Exceeded || before > cmp.Planned.Agorot {
			continue
		}
		env, err := amqp.NewEnvelope(amqp.EventBudgetExceeded, e.AccountID, amqp.BudgetExceededEvent{
			BudgetID:      cmp.Budget.ID,
			Categories:    cmp.Budget.Categories,
			Period:        label,
			PlannedAgorot: cmp.Planned.Agorot,
			ActualAgorot:  cmp.Actual.Agorot,
		})
		if err == nil {
			err = s.publisher.Publish(ctx, env)
		}
		if err != nil {
			s.logger.ErrorContext(ctx, "Failed to publish budget event",
				log.FieldAccountID, e.AccountID, log.FieldError, err)
			continue
		}
		s.logger.InfoContext(ctx, "Budget exceeded",
			log.FieldAccountID, e.AccountID, log.FieldCategory, e.Category, log.FieldPeriod, label)
	}
}
