package backend

import (
	"context"
	"time"

	"coparent/internal/core"
)

// Ports for persistence. Lookups that find nothing return core.ErrNotFound;
// conditional updates that lose a race return core.ErrConflict.
type (
	// ExpenseLister returns an account's expenses. Order is not guaranteed.
	ExpenseLister interface {
		ListExpenses(ctx context.Context, accountID string, f core.ExpenseFilter) ([]core.Expense, error)
	}

	ExpenseStore interface {
		ExpenseLister
		// CreateExpense stores e and returns it with ID and CreatedAt assigned.
		CreateExpense(ctx context.Context, e core.Expense) (core.Expense, error)
		GetExpense(ctx context.Context, id string) (core.Expense, error)
		// UpdatePendingExpense rewrites editable fields while the stored row is
		// still pending.
		UpdatePendingExpense(ctx context.Context, e core.Expense) error
		// TransitionExpense sets status to `to` only if the stored status is
		// still `from`, in a single conditional write.
		TransitionExpense(ctx context.Context, id string, from, to core.ExpenseStatus) error
		ListRecurringTemplates(ctx context.Context) ([]core.Expense, error)
		// LatestInstanceDate returns the date of the newest instance spawned
		// from templateID; ok is false when none exists.
		LatestInstanceDate(ctx context.Context, templateID string) (d core.Date, ok bool, err error)
		// ListUnmirrored returns approved or paid expenses not yet mirrored
		// to the spreadsheet, oldest first.
		ListUnmirrored(ctx context.Context, limit int) ([]core.Expense, error)
		MarkMirrored(ctx context.Context, id, ref string) error
	}

	// MemberLister returns an account's roster in join order.
	MemberLister interface {
		ListMembers(ctx context.Context, accountID string) ([]core.AccountMember, error)
	}

	AccountStore interface {
		MemberLister
		// CreateAccount stores a and adds owner as its first member.
		CreateAccount(ctx context.Context, a core.Account, owner core.AccountMember) (core.Account, error)
		GetAccount(ctx context.Context, id string) (core.Account, error)
		ListAccountsForUser(ctx context.Context, userID string) ([]core.Account, error)
		AddMember(ctx context.Context, accountID string, m core.AccountMember) error
		RemoveMember(ctx context.Context, accountID, userID string) error
	}

	UserStore interface {
		CreateUser(ctx context.Context, u core.User) (core.User, error)
		GetUser(ctx context.Context, id string) (core.User, error)
		GetUserByEmail(ctx context.Context, email string) (core.User, error)
		GetUserByPhone(ctx context.Context, phone string) (core.User, error)
	}

	InvitationStore interface {
		CreateInvitation(ctx context.Context, inv core.Invitation) (core.Invitation, error)
		GetInvitationByToken(ctx context.Context, token string) (core.Invitation, error)
		ListInvitations(ctx context.Context, accountID string) ([]core.Invitation, error)
		// CloseInvitation moves a pending invitation to status, conditionally.
		CloseInvitation(ctx context.Context, id string, status core.InvitationStatus, by string, at time.Time) error
	}

	BudgetStore interface {
		CreateBudget(ctx context.Context, b core.Budget) (core.Budget, error)
		ListBudgets(ctx context.Context, accountID string) ([]core.Budget, error)
		DeleteBudget(ctx context.Context, accountID, id string) error
	}

	ChildStore interface {
		CreateChild(ctx context.Context, c core.Child) (core.Child, error)
		ListChildren(ctx context.Context, accountID string) ([]core.Child, error)
	}
)

// Store represents a unified backend that provides all persistence operations
type Store interface {
	ExpenseStore
	AccountStore
	UserStore
	InvitationStore
	BudgetStore
	ChildStore
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the backend instance and optional cleanup function
type BackendResult struct {
	Store   Store
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	// CreateBackend creates a backend instance based on the provided config
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type         BackendType
	SQLiteDBPath string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	MemoryBackend BackendType = "memory"
)

// String implements fmt.Stringer
func (bt BackendType) String() string {
	return string(bt)
}

// IsValid returns true if the backend type is valid
func (bt BackendType) IsValid() bool {
	switch bt {
	case SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}
