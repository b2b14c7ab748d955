package core

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	Monthly Frequency = "monthly"
	Yearly  Frequency = "yearly"
	Weekly  Frequency = "weekly"
	Daily   Frequency = "daily"
)

const (
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
)

const (
	SubscriptionTrial    SubscriptionStatus = "trial"
	SubscriptionActive   SubscriptionStatus = "active"
	SubscriptionExpired  SubscriptionStatus = "expired"
	SubscriptionCanceled SubscriptionStatus = "canceled"
)

const (
	BudgetMonthly   BudgetType = "monthly"
	BudgetRecurring BudgetType = "recurring"
)

const (
	InvitationPending  InvitationStatus = "pending"
	InvitationAccepted InvitationStatus = "accepted"
	InvitationCanceled InvitationStatus = "canceled"
)

// TrialLength is how long a new account stays in trial.
const TrialLength = 14 * 24 * time.Hour

type (
	Frequency          string
	Role               string
	SubscriptionStatus string
	BudgetType         string
	InvitationStatus   string

	Date struct {
		time.Time
	}

	// Money is an amount in agorot (1/100 of a shekel).
	Money struct {
		Agorot int64
	}

	Expense struct {
		ID           string
		AccountID    string
		Date         Date
		Description  string
		Amount       Money
		Category     string
		ChildID      string // optional
		PaidByID     string
		SplitEqually bool
		Status       ExpenseStatus
		CreatedBy    string
		ReceiptURL   string
		CreatedAt    time.Time

		// Recurring template metadata. Instances point back with RecurringParentID.
		IsRecurring       bool
		Frequency         Frequency
		HasEndDate        bool
		EndDate           Date
		RecurringParentID string
	}

	AccountMember struct {
		UserID   string
		UserName string
		Role     Role
		JoinedAt time.Time
	}

	Account struct {
		ID                 string
		Name               string
		OwnerID            string
		SubscriptionStatus SubscriptionStatus
		TrialEndsAt        time.Time
		PlanSlug           string
		CreatedAt          time.Time
	}

	Budget struct {
		ID            string
		AccountID     string
		Categories    []string
		MonthlyAmount Money
		BudgetType    BudgetType
		StartDate     Date // optional
		EndDate       Date // optional
	}

	Child struct {
		ID        string
		AccountID string
		Name      string
		BirthDate Date // optional
	}

	User struct {
		ID           string
		Email        string
		Phone        string
		Name         string
		PasswordHash string
		CreatedAt    time.Time
	}

	Invitation struct {
		ID         string
		AccountID  string
		Email      string
		Phone      string
		Token      string
		InvitedBy  string
		Status     InvitationStatus
		ExpiresAt  time.Time
		CreatedAt  time.Time
		AcceptedBy string
		AcceptedAt time.Time
	}
)

var (
	ErrInvalidDay       = errors.New("invalid day")
	ErrInvalidMonth     = errors.New("invalid month")
	ErrInvalidAmount    = errors.New("invalid amount")
	ErrEmptyDescription = errors.New("empty description")
	ErrEmptyCategory    = errors.New("empty category")
	ErrMissingPayer     = errors.New("missing payer")
	ErrEmptyName        = errors.New("empty name")
	ErrInvalidDate      = errors.New("invalid date")
	ErrTooLong          = errors.New("description too long (max 200 characters)")
	ErrInvalidFrequency = errors.New("invalid repetition type")
	ErrInvalidEndDate   = errors.New("invalid end date")
	ErrInvalidBudget    = errors.New("invalid budget type")
)

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	_, month, day := d.Date()
	if day < 1 || day > 31 {
		return ErrInvalidDay
	}
	if month < 1 || month > 12 {
		return ErrInvalidMonth
	}
	return nil
}

// Day returns the day of the month
func (d Date) Day() int {
	return d.Time.Day()
}

// Month returns the month, 1-12
func (d Date) Month() int {
	return int(d.Time.Month())
}

// Year returns the year
func (d Date) Year() int {
	return d.Time.Year()
}

// String formats the date as YYYY-MM-DD, or "" when unset.
func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateLayout)
}

// DateLayout is the wire and storage format for dates.
const DateLayout = "2006-01-02"

// NewDate creates a new Date from year, month (1-12), day
func NewDate(year, month, day int) Date {
	return Date{Time: time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its calendar day in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), int(t.Month()), t.Day())
}

// ParseDate parses a YYYY-MM-DD string. An empty string yields the zero Date.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{Time: t}, nil
}

// IsEmpty returns true if the date is zero
func (d Date) IsEmpty() bool {
	return d.IsZero()
}

func (m Money) Validate() error {
	if m.Agorot <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (e Expense) Validate() error {
	if err := e.Date.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Description) == "" {
		return ErrEmptyDescription
	}
	if len(e.Description) > 200 {
		return ErrTooLong
	}
	if err := e.Amount.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(e.Category) == "" {
		return ErrEmptyCategory
	}
	if strings.TrimSpace(e.PaidByID) == "" {
		return ErrMissingPayer
	}
	if e.Status != "" && !e.Status.Valid() {
		return ErrInvalidStatus
	}

	if e.IsRecurring {
		switch e.Frequency {
		case Daily, Weekly, Monthly, Yearly:
		default:
			return ErrInvalidFrequency
		}
		if e.HasEndDate {
			if err := e.EndDate.Validate(); err != nil {
				return fmt.Errorf("%w: %v", ErrInvalidEndDate, err)
			}
			if e.EndDate.Before(e.Date.Time) {
				return fmt.Errorf("%w: before start date", ErrInvalidEndDate)
			}
		}
	}
	return nil
}

// IsTemplate reports whether e spawns recurring instances. The template is
// itself the first occurrence and counts like any other expense.
func (e Expense) IsTemplate() bool {
	return e.IsRecurring && e.RecurringParentID == ""
}

func (b Budget) Validate() error {
	if len(b.Categories) == 0 {
		return ErrEmptyCategory
	}
	for _, c := range b.Categories {
		if strings.TrimSpace(c) == "" {
			return ErrEmptyCategory
		}
	}
	if err := b.MonthlyAmount.Validate(); err != nil {
		return err
	}
	switch b.BudgetType {
	case BudgetMonthly, BudgetRecurring:
	default:
		return ErrInvalidBudget
	}
	if !b.StartDate.IsZero() && !b.EndDate.IsZero() && b.EndDate.Before(b.StartDate.Time) {
		return fmt.Errorf("%w: before start date", ErrInvalidEndDate)
	}
	return nil
}

// HasCategory reports whether the budget tracks category c.
func (b Budget) HasCategory(c string) bool {
	for _, bc := range b.Categories {
		if strings.EqualFold(bc, c) {
			return true
		}
	}
	return false
}

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// IsExpired reports whether the invitation can no longer be accepted at now.
func (i Invitation) IsExpired(now time.Time) bool {
	return now.After(i.ExpiresAt)
}

// IsUsable reports whether the invitation is pending and not expired.
func (i Invitation) IsUsable(now time.Time) bool {
	return i.Status == InvitationPending && !i.IsExpired(now)
}

// FindMember returns the roster entry for userID.
func FindMember(members []AccountMember, userID string) (AccountMember, bool) {
	for _, m := range members {
		if m.UserID == userID {
			return m, true
		}
	}
	return AccountMember{}, false
}
