package services

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"coparent/internal/backend"
	"coparent/internal/cache"
	"coparent/internal/core"
	"coparent/internal/log"
)

const (
	settlementCacheSize = 256
	settlementCacheTTL  = 5 * time.Minute
)

// ledger is what one settlement needs from storage.
type ledger struct {
	expenses []core.Expense
	members  []core.AccountMember
}

// SettlementReport is the balance breakdown of one account, period and view.
type SettlementReport struct {
	AccountID string
	View      core.View
	Period    core.Period
	Members   []core.AccountMember
	Buckets   []core.Settlement
}

// SettlementService computes per-status balances. Expenses and roster are
// fetched in parallel and cached per account and period; writes through
// ExpenseService drop the account's entries.
type SettlementService struct {
	expenses backend.ExpenseLister
	members  backend.MemberLister
	cache    *cache.LRUCache[ledger]
	loader   *cache.Loader[ledger]
	logger   *log.Logger
}

func NewSettlementService(expenses backend.ExpenseLister, members backend.MemberLister, logger *log.Logger) *SettlementService {
	if logger == nil {
		logger = log.Discard()
	}
	c := cache.NewLRUCache[ledger](settlementCacheSize, settlementCacheTTL)
	return &SettlementService{
		expenses: expenses,
		members:  members,
		cache:    c,
		loader:   cache.NewLoader[ledger](c),
		logger:   logger.WithComponent(log.ComponentSettlement),
	}
}

// Cache exposes the ledger cache so it can be registered for sweeping.
func (s *SettlementService) Cache() cache.Cleaner { return s.cache }

func cacheKey(accountID string, p core.Period) string {
	return accountID + "|" + p.Key()
}

// Invalidate drops every cached ledger of accountID.
func (s *SettlementService) Invalidate(accountID string) {
	if n := s.loader.Invalidate(accountID + "|"); n > 0 {
		s.logger.Debug("Settlement cache invalidated", log.FieldAccountID, accountID, "entries", n)
	}
}

// Settle returns independent pending, approved and paid breakdowns for
// accountID restricted to p, read through view.
func (s *SettlementService) Settle(ctx context.Context, actorID, accountID string, view core.View, p core.Period) (SettlementReport, error) {
	if !view.Valid() {
		return SettlementReport{}, fmt.Errorf("%w: %q", core.ErrInvalidView, view)
	}
	if p.Type == "" {
		p = core.AllTime()
	}
	if err := p.Validate(); err != nil {
		return SettlementReport{}, err
	}

	l, err := s.loader.Get(ctx, cacheKey(accountID, p), func(ctx context.Context) (ledger, error) {
		return s.load(ctx, accountID, p)
	})
	if err != nil {
		return SettlementReport{}, err
	}
	if _, ok := core.FindMember(l.members, actorID); !ok {
		return SettlementReport{}, fmt.Errorf("account %s: %w", accountID, ErrNotMember)
	}

	buckets := core.SettleByStatus(view, l.expenses, l.members)
	for _, b := range buckets {
		for _, skip := range b.Balances.Skipped {
			s.logger.WarnContext(ctx, "Skipped malformed expense",
				log.FieldAccountID, accountID, log.FieldExpenseID, skip.ExpenseID, log.FieldError, skip.Reason)
		}
	}

	return SettlementReport{
		AccountID: accountID,
		View:      view,
		Period:    p,
		Members:   l.members,
		Buckets:   buckets,
	}, nil
}

func (s *SettlementService) load(ctx context.Context, accountID string, p core.Period) (ledger, error) {
	var l ledger
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		expenses, err := s.expenses.ListExpenses(ctx, accountID, core.ExpenseFilter{Period: p})
		if err != nil {
			return fmt.Errorf("list expenses: %w", err)
		}
		l.expenses = expenses
		return nil
	})
	g.Go(func() error {
		members, err := s.members.ListMembers(ctx, accountID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		l.members = members
		return nil
	})
	if err := g.Wait(); err != nil {
		return ledger{}, err
	}
	return l, nil
}
