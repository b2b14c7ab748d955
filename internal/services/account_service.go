package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"coparent/internal/backend"
	"coparent/internal/core"
	"coparent/internal/log"
)

var ErrOwnerRemoval = errors.New("the account owner cannot be removed")

// AccountService manages accounts, their roster, children and budgets.
type AccountService struct {
	store       backend.Store
	invalidator Invalidator
	logger      *log.Logger
	now         func() time.Time
}

func NewAccountService(store backend.Store, invalidator Invalidator, logger *log.Logger) *AccountService {
	if invalidator == nil {
		invalidator = nopInvalidator{}
	}
	if logger == nil {
		logger = log.Discard()
	}
	return &AccountService{
		store:       store,
		invalidator: invalidator,
		logger:      logger.WithComponent(log.ComponentAccount),
		now:         time.Now,
	}
}

// CreateAccount opens a trial account owned by ownerID, who joins it as admin.
func (s *AccountService) CreateAccount(ctx context.Context, ownerID, name string) (core.Account, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Account{}, core.ErrEmptyName
	}
	owner, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return core.Account{}, fmt.Errorf("load owner: %w", err)
	}

	now := s.now().UTC()
	a, err := s.store.CreateAccount(ctx, core.Account{
		Name:               name,
		OwnerID:            ownerID,
		SubscriptionStatus: core.SubscriptionTrial,
		TrialEndsAt:        now.Add(core.TrialLength),
		PlanSlug:           "family",
		CreatedAt:          now,
	}, core.AccountMember{UserID: ownerID, UserName: owner.Name, Role: core.RoleAdmin, JoinedAt: now})
	if err != nil {
		return core.Account{}, fmt.Errorf("create account: %w", err)
	}

	s.logger.InfoContext(ctx, "Account created", log.FieldAccountID, a.ID, log.FieldUserID, ownerID)
	return a, nil
}

// ListAccounts returns every account userID belongs to, for the account
// switcher.
func (s *AccountService) ListAccounts(ctx context.Context, userID string) ([]core.Account, error) {
	return s.store.ListAccountsForUser(ctx, userID)
}

func (s *AccountService) GetAccount(ctx context.Context, actorID, accountID string) (core.Account, error) {
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return core.Account{}, err
	}
	return s.store.GetAccount(ctx, accountID)
}

func (s *AccountService) ListMembers(ctx context.Context, actorID, accountID string) ([]core.AccountMember, error) {
	_, roster, err := requireMember(ctx, s.store, accountID, actorID)
	return roster, err
}

// RemoveMember takes userID off the roster. Only admins may do it and the
// owner always stays. Past expenses keep their payer ids.
func (s *AccountService) RemoveMember(ctx context.Context, actorID, accountID, userID string) error {
	if _, err := requireAdmin(ctx, s.store, accountID, actorID); err != nil {
		return err
	}
	a, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if a.OwnerID == userID {
		return fmt.Errorf("%w: %w", ErrForbidden, ErrOwnerRemoval)
	}
	if err := s.store.RemoveMember(ctx, accountID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	s.invalidator.Invalidate(accountID)
	s.logger.InfoContext(ctx, "Member removed", log.FieldAccountID, accountID, log.FieldUserID, userID)
	return nil
}

func (s *AccountService) AddChild(ctx context.Context, actorID, accountID, name string, birth core.Date) (core.Child, error) {
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return core.Child{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return core.Child{}, core.ErrEmptyName
	}
	return s.store.CreateChild(ctx, core.Child{AccountID: accountID, Name: name, BirthDate: birth})
}

func (s *AccountService) ListChildren(ctx context.Context, actorID, accountID string) ([]core.Child, error) {
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListChildren(ctx, accountID)
}

// CreateBudget adds a budget. Admins only.
func (s *AccountService) CreateBudget(ctx context.Context, actorID, accountID string, b core.Budget) (core.Budget, error) {
	if _, err := requireAdmin(ctx, s.store, accountID, actorID); err != nil {
		return core.Budget{}, err
	}
	b.ID = ""
	b.AccountID = accountID
	for i, c := range b.Categories {
		b.Categories[i] = strings.TrimSpace(c)
	}
	if err := b.Validate(); err != nil {
		return core.Budget{}, fmt.Errorf("validate budget: %w", err)
	}
	return s.store.CreateBudget(ctx, b)
}

func (s *AccountService) ListBudgets(ctx context.Context, actorID, accountID string) ([]core.Budget, error) {
	if _, _, err := requireMember(ctx, s.store, accountID, actorID); err != nil {
		return nil, err
	}
	return s.store.ListBudgets(ctx, accountID)
}

func (s *AccountService) DeleteBudget(ctx context.Context, actorID, accountID, budgetID string) error {
	if _, err := requireAdmin(ctx, s.store, accountID, actorID); err != nil {
		return err
	}
	return s.store.DeleteBudget(ctx, accountID, budgetID)
}
