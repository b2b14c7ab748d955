package http

import (
	"time"

	"github.com/shopspring/decimal"

	"coparent/internal/core"
	"coparent/internal/receipts"
	"coparent/internal/services"
)

// moneyJSON carries an exact amount in agorot next to its display form,
// which is rounded to whole shekels.
type moneyJSON struct {
	Agorot    int64  `json:"agorot"`
	Formatted string `json:"formatted"`
}

func moneyOf(m core.Money) moneyJSON {
	return moneyJSON{Agorot: m.Agorot, Formatted: m.Format()}
}

func shekelsOf(d decimal.Decimal) moneyJSON {
	return moneyJSON{Agorot: core.ToAgorot(d), Formatted: core.FormatShekels(d)}
}

type periodJSON struct {
	Type    core.PeriodType `json:"type"`
	Year    int             `json:"year,omitempty"`
	Month   int             `json:"month,omitempty"`
	Quarter int             `json:"quarter,omitempty"`
}

func periodOf(p core.Period) periodJSON {
	out := periodJSON{Type: p.Type}
	switch p.Type {
	case core.PeriodMonth:
		out.Year, out.Month = p.Year, p.Month
	case core.PeriodQuarter:
		out.Year, out.Quarter = p.Year, p.Quarter
	case core.PeriodYear:
		out.Year = p.Year
	}
	return out
}

type userJSON struct {
	ID    string `json:"id"`
	Email string `json:"email,omitempty"`
	Phone string `json:"phone,omitempty"`
	Name  string `json:"name"`
}

func userOf(u core.User) userJSON {
	return userJSON{ID: u.ID, Email: u.Email, Phone: u.Phone, Name: u.Name}
}

type sessionJSON struct {
	User      userJSON  `json:"user"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Created   bool      `json:"created"`
}

func sessionOf(s services.Session) sessionJSON {
	return sessionJSON{User: userOf(s.User), Token: s.Token, ExpiresAt: s.ExpiresAt, Created: s.Created}
}

type accountJSON struct {
	ID                 string                  `json:"id"`
	Name               string                  `json:"name"`
	OwnerID            string                  `json:"owner_id"`
	SubscriptionStatus core.SubscriptionStatus `json:"subscription_status"`
	TrialEndsAt        *time.Time              `json:"trial_ends_at,omitempty"`
	PlanSlug           string                  `json:"plan_slug,omitempty"`
	CreatedAt          time.Time               `json:"created_at"`
}

func accountOf(a core.Account) accountJSON {
	out := accountJSON{
		ID:                 a.ID,
		Name:               a.Name,
		OwnerID:            a.OwnerID,
		SubscriptionStatus: a.SubscriptionStatus,
		PlanSlug:           a.PlanSlug,
		CreatedAt:          a.CreatedAt,
	}
	if !a.TrialEndsAt.IsZero() {
		t := a.TrialEndsAt
		out.TrialEndsAt = &t
	}
	return out
}

type memberJSON struct {
	UserID   string    `json:"user_id"`
	Name     string    `json:"name"`
	Role     core.Role `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

func membersOf(ms []core.AccountMember) []memberJSON {
	out := make([]memberJSON, 0, len(ms))
	for _, m := range ms {
		out = append(out, memberJSON{UserID: m.UserID, Name: m.UserName, Role: m.Role, JoinedAt: m.JoinedAt})
	}
	return out
}

type childJSON struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BirthDate string `json:"birth_date,omitempty"`
}

func childOf(c core.Child) childJSON {
	return childJSON{ID: c.ID, Name: c.Name, BirthDate: c.BirthDate.String()}
}

type budgetJSON struct {
	ID            string          `json:"id"`
	Categories    []string        `json:"categories"`
	MonthlyAmount moneyJSON       `json:"monthly_amount"`
	BudgetType    core.BudgetType `json:"budget_type"`
	StartDate     string          `json:"start_date,omitempty"`
	EndDate       string          `json:"end_date,omitempty"`
}

func budgetOf(b core.Budget) budgetJSON {
	return budgetJSON{
		ID:            b.ID,
		Categories:    b.Categories,
		MonthlyAmount: moneyOf(b.MonthlyAmount),
		BudgetType:    b.BudgetType,
		StartDate:     b.StartDate.String(),
		EndDate:       b.EndDate.String(),
	}
}

type invitationJSON struct {
	ID        string                `json:"id"`
	AccountID string                `json:"account_id"`
	Email     string                `json:"email,omitempty"`
	Phone     string                `json:"phone,omitempty"`
	Status    core.InvitationStatus `json:"status"`
	ExpiresAt time.Time             `json:"expires_at"`
	CreatedAt time.Time             `json:"created_at"`
}

func invitationOf(inv core.Invitation) invitationJSON {
	return invitationJSON{
		ID:        inv.ID,
		AccountID: inv.AccountID,
		Email:     inv.Email,
		Phone:     inv.Phone,
		Status:    inv.Status,
		ExpiresAt: inv.ExpiresAt,
		CreatedAt: inv.CreatedAt,
	}
}

type expenseJSON struct {
	ID                string             `json:"id"`
	AccountID         string             `json:"account_id"`
	Date              string             `json:"date"`
	Description       string             `json:"description"`
	Amount            moneyJSON          `json:"amount"`
	Category          string             `json:"category"`
	ChildID           string             `json:"child_id,omitempty"`
	PaidByID          string             `json:"paid_by_id"`
	SplitEqually      bool               `json:"split_equally"`
	Status            core.ExpenseStatus `json:"status"`
	CreatedBy         string             `json:"created_by"`
	ReceiptURL        string             `json:"receipt_url,omitempty"`
	CreatedAt         time.Time          `json:"created_at"`
	IsRecurring       bool               `json:"is_recurring"`
	Frequency         core.Frequency     `json:"frequency,omitempty"`
	EndDate           string             `json:"end_date,omitempty"`
	RecurringParentID string             `json:"recurring_parent_id,omitempty"`
}

func expenseOf(e core.Expense) expenseJSON {
	out := expenseJSON{
		ID:                e.ID,
		AccountID:         e.AccountID,
		Date:              e.Date.String(),
		Description:       e.Description,
		Amount:            moneyOf(e.Amount),
		Category:          e.Category,
		ChildID:           e.ChildID,
		PaidByID:          e.PaidByID,
		SplitEqually:      e.SplitEqually,
		Status:            e.Status,
		CreatedBy:         e.CreatedBy,
		ReceiptURL:        e.ReceiptURL,
		CreatedAt:         e.CreatedAt,
		IsRecurring:       e.IsRecurring,
		Frequency:         e.Frequency,
		RecurringParentID: e.RecurringParentID,
	}
	if e.HasEndDate {
		out.EndDate = e.EndDate.String()
	}
	return out
}

func expensesOf(es []core.Expense) []expenseJSON {
	out := make([]expenseJSON, 0, len(es))
	for _, e := range es {
		out = append(out, expenseOf(e))
	}
	return out
}

type balanceJSON struct {
	UserID     string    `json:"user_id"`
	Name       string    `json:"name"`
	Amount     moneyJSON `json:"amount"`
	Attributed moneyJSON `json:"attributed"`
}

type transferJSON struct {
	Settled    bool      `json:"settled"`
	FromUserID string    `json:"from_user_id,omitempty"`
	ToUserID   string    `json:"to_user_id,omitempty"`
	Amount     moneyJSON `json:"amount"`
}

type bucketJSON struct {
	Status   core.ExpenseStatus `json:"status"`
	Balances []balanceJSON      `json:"balances"`
	Transfer *transferJSON      `json:"transfer,omitempty"`
	Skipped  []string           `json:"skipped_expense_ids,omitempty"`
}

type settlementJSON struct {
	AccountID string       `json:"account_id"`
	View      core.View    `json:"view"`
	Period    periodJSON   `json:"period"`
	Buckets   []bucketJSON `json:"buckets"`
}

func settlementOf(r services.SettlementReport) settlementJSON {
	out := settlementJSON{
		AccountID: r.AccountID,
		View:      r.View,
		Period:    periodOf(r.Period),
		Buckets:   make([]bucketJSON, 0, len(r.Buckets)),
	}
	for _, b := range r.Buckets {
		bucket := bucketJSON{Status: b.Status, Balances: make([]balanceJSON, 0, len(b.Balances.Members))}
		for _, m := range b.Balances.Members {
			bucket.Balances = append(bucket.Balances, balanceJSON{
				UserID:     m.UserID,
				Name:       m.UserName,
				Amount:     shekelsOf(m.Amount),
				Attributed: shekelsOf(m.Attributed),
			})
		}
		if t := b.Transfer; t != nil {
			bucket.Transfer = &transferJSON{
				Settled:    t.Settled,
				FromUserID: t.FromUserID,
				ToUserID:   t.ToUserID,
				Amount:     shekelsOf(t.Amount),
			}
		}
		for _, sk := range b.Balances.Skipped {
			bucket.Skipped = append(bucket.Skipped, sk.ExpenseID)
		}
		out.Buckets = append(out.Buckets, bucket)
	}
	return out
}

type categoryJSON struct {
	Name   string    `json:"name"`
	Amount moneyJSON `json:"amount"`
}

type childTotalJSON struct {
	ChildID string    `json:"child_id"`
	Name    string    `json:"name"`
	Amount  moneyJSON `json:"amount"`
}

type budgetComparisonJSON struct {
	Budget    budgetJSON `json:"budget"`
	Months    int        `json:"months"`
	Planned   moneyJSON  `json:"planned"`
	Actual    moneyJSON  `json:"actual"`
	Deviation moneyJSON  `json:"deviation"`
	Exceeded  bool       `json:"exceeded"`
}

type reportJSON struct {
	Period     periodJSON             `json:"period"`
	Total      moneyJSON              `json:"total"`
	ByCategory []categoryJSON         `json:"by_category"`
	ByChild    []childTotalJSON       `json:"by_child"`
	Budgets    []budgetComparisonJSON `json:"budgets"`
}

func reportOf(r core.Report) reportJSON {
	out := reportJSON{
		Period:     periodOf(r.Period),
		Total:      moneyOf(r.Total),
		ByCategory: make([]categoryJSON, 0, len(r.ByCategory)),
		ByChild:    make([]childTotalJSON, 0, len(r.ByChild)),
		Budgets:    make([]budgetComparisonJSON, 0, len(r.Budgets)),
	}
	for _, c := range r.ByCategory {
		out.ByCategory = append(out.ByCategory, categoryJSON{Name: c.Name, Amount: moneyOf(c.Amount)})
	}
	for _, c := range r.ByChild {
		out.ByChild = append(out.ByChild, childTotalJSON{ChildID: c.ChildID, Name: c.Name, Amount: moneyOf(c.Amount)})
	}
	for _, b := range r.Budgets {
		out.Budgets = append(out.Budgets, budgetComparisonJSON{
			Budget:    budgetOf(b.Budget),
			Months:    b.Months,
			Planned:   moneyOf(b.Planned),
			Actual:    moneyOf(b.Actual),
			Deviation: moneyOf(b.Deviation),
			Exceeded:  b.Exceeded,
		})
	}
	return out
}

type draftJSON struct {
	Amount      moneyJSON `json:"amount"`
	Date        string    `json:"date,omitempty"`
	Category    string    `json:"category"`
	Description string    `json:"description"`
}

func draftOf(d receipts.Draft) draftJSON {
	return draftJSON{Amount: moneyOf(d.Amount), Date: d.Date.String(), Category: d.Category, Description: d.Description}
}
