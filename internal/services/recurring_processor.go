package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
)

// maxCatchUp bounds how many missed occurrences one template may create in a
// single run, so a long outage with a daily template cannot flood an account.
const maxCatchUp = 62

// RecurringProcessor creates expense instances from recurring templates.
// Each instance points back at its template and the store refuses a second
// instance for the same template and date, so overlapping runs are safe.
type RecurringProcessor struct {
	store    backend.ExpenseStore
	expenses *ExpenseService
	logger   *log.Logger
}

func NewRecurringProcessor(store backend.ExpenseStore, expenses *ExpenseService, logger *log.Logger) *RecurringProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	return &RecurringProcessor{
		store:    store,
		expenses: expenses,
		logger:   logger.WithComponent(log.ComponentRecurring),
	}
}

// ProcessDueExpenses creates every occurrence due on or before now and
// returns how many were created. A failing template is logged and skipped.
func (p *RecurringProcessor) ProcessDueExpenses(ctx context.Context, now time.Time) (int, error) {
	if p.store == nil || p.expenses == nil {
		return 0, fmt.Errorf("processor not properly initialized")
	}

	templates, err := p.store.ListRecurringTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list recurring templates: %w", err)
	}

	today := core.DateOf(now)
	p.logger.InfoContext(ctx, "Processing recurring expenses",
		"total_active", len(templates),
		"processing_date", today.String())

	processed := 0
	for _, t := range templates {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		n, err := p.processTemplate(ctx, t, today)
		processed += n
		if err != nil {
			p.logger.ErrorContext(ctx, "Failed to process recurring template",
				log.FieldExpenseID, t.ID, log.FieldAccountID, t.AccountID, log.FieldError, err)
		}
	}

	p.logger.InfoContext(ctx, "Recurring expense processing complete",
		"processed", processed,
		"total_checked", len(templates))
	return processed, nil
}

func (p *RecurringProcessor) processTemplate(ctx context.Context, t core.Expense, today core.Date) (int, error) {
	checker, err := GetDuenessChecker(t.Frequency)
	if err != nil {
		return 0, err
	}

	last, ok, err := p.store.LatestInstanceDate(ctx, t.ID)
	if err != nil {
		return 0, fmt.Errorf("latest instance: %w", err)
	}
	if !ok {
		last = t.Date
	}

	created := 0
	for i := 0; i < maxCatchUp; i++ {
		next := checker.Next(last, t.Date)
		if next.After(today.Time) || (t.HasEndDate && next.After(t.EndDate.Time)) {
			break
		}
		last = next

		_, err := p.expenses.record(ctx, instanceOf(t, next))
		if errors.Is(err, core.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, fmt.Errorf("create instance for %s: %w", next, err)
		}
		created++
		p.logger.InfoContext(ctx, "Created expense from recurring template",
			log.FieldExpenseID, t.ID,
			"date", next.String(),
			log.FieldAmount, t.Amount.Agorot,
			"frequency", string(t.Frequency))
	}
	return created, nil
}

// instanceOf copies the template's bookkeeping fields onto date. Instances
// go through the same approval rule as a manual entry by the template's
// creator.
func instanceOf(t core.Expense, date core.Date) core.Expense {
	return core.Expense{
		AccountID:         t.AccountID,
		Date:              date,
		Description:       t.Description,
		Amount:            t.Amount,
		Category:          t.Category,
		ChildID:           t.ChildID,
		PaidByID:          t.PaidByID,
		SplitEqually:      t.SplitEqually,
		Status:            core.InitialStatus(t.PaidByID, t.CreatedBy),
		CreatedBy:         t.CreatedBy,
		RecurringParentID: t.ID,
	}
}
