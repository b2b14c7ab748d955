package services

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"coparent/internal/backend"
	"coparent/internal/core"
)

type ReportService struct {
	store backend.Store
}

func NewReportService(store backend.Store) *ReportService {
	return &ReportService{store: store}
}

// BuildReport aggregates an account's spend in p by category, by child and
// against its budgets.
func (s *ReportService) BuildReport(ctx context.Context, actorID, accountID string, p core.Period) (core.Report, error) {
	if p.Type == "" {
		p = core.AllTime()
	}
	if err := p.Validate(); err != nil {
		return core.Report{}, err
	}
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return core.Report{}, err
	}

	var (
		expenses []core.Expense
		children []core.Child
		budgets  []core.Budget
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		expenses, err = s.store.ListExpenses(gctx, accountID, core.ExpenseFilter{Period: p})
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		children, err = s.store.ListChildren(gctx, accountID)
		if err != nil {
			return fmt.Errorf("list children: %w", err)
		}
		return nil
	})
	g.Go(func() (err error) {
		budgets, err = s.store.ListBudgets(gctx, accountID)
		if err != nil {
			return fmt.Errorf("list budgets: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return core.Report{}, err
	}

	return core.BuildReport(p, expenses, children, budgets), nil
}
