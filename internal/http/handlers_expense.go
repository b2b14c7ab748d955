package http

import (
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"

	"coparent/internal/core"
	"coparent/internal/services"
)

type expenseRequest struct {
	Date         string `json:"date"`
	Description  string `json:"description"`
	Amount       string `json:"amount"`
	Category     string `json:"category"`
	ChildID      string `json:"child_id"`
	PaidByID     string `json:"paid_by_id"`
	SplitEqually *bool  `json:"split_equally"`
	IsRecurring  bool   `json:"is_recurring"`
	Frequency    string `json:"frequency"`
	EndDate      string `json:"end_date"`
}

// expense builds a new expense. The date defaults to today, the payer to
// the actor and splitting to on.
func (r expenseRequest) expense(today core.Date, actorID string) (core.Expense, error) {
	date, err := parseDate(r.Date)
	if err != nil {
		return core.Expense{}, err
	}
	if date.IsZero() {
		date = today
	}
	amount, err := parseMoney(r.Amount)
	if err != nil {
		return core.Expense{}, err
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return core.Expense{}, err
	}
	e := core.Expense{
		Date:         date,
		Description:  sanitizeInput(r.Description),
		Amount:       amount,
		Category:     sanitizeInput(r.Category),
		ChildID:      strings.TrimSpace(r.ChildID),
		PaidByID:     strings.TrimSpace(r.PaidByID),
		SplitEqually: r.SplitEqually == nil || *r.SplitEqually,
		IsRecurring:  r.IsRecurring,
		HasEndDate:   !end.IsZero(),
		EndDate:      end,
	}
	if e.PaidByID == "" {
		e.PaidByID = actorID
	}
	if e.IsRecurring {
		e.Frequency = core.Frequency(strings.ToLower(strings.TrimSpace(r.Frequency)))
		if e.Frequency == "" {
			e.Frequency = core.Monthly
		}
	}
	return e, nil
}

func (s *Server) handleCreateExpense(c *gin.Context) {
	var req expenseRequest
	if !s.bindJSON(c, &req) {
		return
	}
	actor := currentUser(c)
	e, err := req.expense(core.DateOf(s.now()), actor)
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err = s.svc.Expenses.CreateExpense(c.Request.Context(), actor, c.Param("id"), e)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, expenseOf(e))
}

func (s *Server) handleListExpenses(c *gin.Context) {
	f, err := ParseExpenseFilter(c.Request.URL.Query(), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	expenses, err := s.svc.Expenses.ListExpenses(c.Request.Context(), currentUser(c), c.Param("id"), f)
	if err != nil {
		s.fail(c, err)
		return
	}
	sort.SliceStable(expenses, func(i, j int) bool {
		if !expenses[i].Date.Equal(expenses[j].Date.Time) {
			return expenses[i].Date.After(expenses[j].Date.Time)
		}
		return expenses[i].CreatedAt.After(expenses[j].CreatedAt)
	})
	c.JSON(http.StatusOK, gin.H{"expenses": expensesOf(expenses), "period": periodOf(f.Period)})
}

func (s *Server) handleGetExpense(c *gin.Context) {
	e, err := s.svc.Expenses.GetExpense(c.Request.Context(), currentUser(c), c.Param("expenseID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, expenseOf(e))
}

type expensePatch struct {
	Date         *string `json:"date"`
	Description  *string `json:"description"`
	Amount       *string `json:"amount"`
	Category     *string `json:"category"`
	ChildID      *string `json:"child_id"`
	PaidByID     *string `json:"paid_by_id"`
	SplitEqually *bool   `json:"split_equally"`
}

func (p expensePatch) changes() (services.ExpenseChanges, error) {
	ch := services.ExpenseChanges{
		ChildID:      p.ChildID,
		PaidByID:     p.PaidByID,
		SplitEqually: p.SplitEqually,
	}
	if p.Date != nil {
		d, err := parseDate(*p.Date)
		if err != nil {
			return ch, err
		}
		ch.Date = &d
	}
	if p.Amount != nil {
		m, err := parseMoney(*p.Amount)
		if err != nil {
			return ch, err
		}
		ch.Amount = &m
	}
	if p.Description != nil {
		d := sanitizeInput(*p.Description)
		ch.Description = &d
	}
	if p.Category != nil {
		cat := sanitizeInput(*p.Category)
		ch.Category = &cat
	}
	return ch, nil
}

func (s *Server) handleUpdateExpense(c *gin.Context) {
	var req expensePatch
	if !s.bindJSON(c, &req) {
		return
	}
	ch, err := req.changes()
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.svc.Expenses.UpdatePendingExpense(c.Request.Context(), currentUser(c), c.Param("expenseID"), ch)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, expenseOf(e))
}

type transitionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (s *Server) handleTransitionExpense(c *gin.Context) {
	var req transitionRequest
	if !s.bindJSON(c, &req) {
		return
	}
	to, err := core.ParseStatus(strings.ToLower(strings.TrimSpace(req.Status)))
	if err != nil {
		s.fail(c, err)
		return
	}
	e, err := s.svc.Expenses.TransitionExpense(c.Request.Context(), currentUser(c), c.Param("expenseID"), to)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, expenseOf(e))
}
