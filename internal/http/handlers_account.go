package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coparent/internal/core"
)

type nameRequest struct {
	Name      string `json:"name" binding:"required"`
	BirthDate string `json:"birth_date"`
}

func (s *Server) handleCreateAccount(c *gin.Context) {
	var req nameRequest
	if !s.bindJSON(c, &req) {
		return
	}
	a, err := s.svc.Accounts.CreateAccount(c.Request.Context(), currentUser(c), sanitizeInput(req.Name))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, accountOf(a))
}

func (s *Server) handleListAccounts(c *gin.Context) {
	accounts, err := s.svc.Accounts.ListAccounts(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]accountJSON, 0, len(accounts))
	for _, a := range accounts {
		out = append(out, accountOf(a))
	}
	c.JSON(http.StatusOK, gin.H{"accounts": out})
}

func (s *Server) handleGetAccount(c *gin.Context) {
	a, err := s.svc.Accounts.GetAccount(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accountOf(a))
}

func (s *Server) handleListMembers(c *gin.Context) {
	members, err := s.svc.Accounts.ListMembers(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"members": membersOf(members)})
}

func (s *Server) handleRemoveMember(c *gin.Context) {
	err := s.svc.Accounts.RemoveMember(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("userID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListChildren(c *gin.Context) {
	children, err := s.svc.Accounts.ListChildren(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]childJSON, 0, len(children))
	for _, ch := range children {
		out = append(out, childOf(ch))
	}
	c.JSON(http.StatusOK, gin.H{"children": out})
}

func (s *Server) handleAddChild(c *gin.Context) {
	var req nameRequest
	if !s.bindJSON(c, &req) {
		return
	}
	birth, err := parseDate(req.BirthDate)
	if err != nil {
		s.fail(c, err)
		return
	}
	child, err := s.svc.Accounts.AddChild(c.Request.Context(), currentUser(c), c.Param("id"), sanitizeInput(req.Name), birth)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, childOf(child))
}

type budgetRequest struct {
	Categories    []string `json:"categories" binding:"required"`
	MonthlyAmount string   `json:"monthly_amount" binding:"required"`
	BudgetType    string   `json:"budget_type"`
	StartDate     string   `json:"start_date"`
	EndDate       string   `json:"end_date"`
}

func (r budgetRequest) budget() (core.Budget, error) {
	amount, err := parseMoney(r.MonthlyAmount)
	if err != nil {
		return core.Budget{}, err
	}
	start, err := parseDate(r.StartDate)
	if err != nil {
		return core.Budget{}, err
	}
	end, err := parseDate(r.EndDate)
	if err != nil {
		return core.Budget{}, err
	}
	kind := core.BudgetType(r.BudgetType)
	if kind == "" {
		kind = core.BudgetMonthly
	}
	categories := make([]string, 0, len(r.Categories))
	for _, cat := range r.Categories {
		categories = append(categories, sanitizeInput(cat))
	}
	return core.Budget{
		Categories:    categories,
		MonthlyAmount: amount,
		BudgetType:    kind,
		StartDate:     start,
		EndDate:       end,
	}, nil
}

func (s *Server) handleCreateBudget(c *gin.Context) {
	var req budgetRequest
	if !s.bindJSON(c, &req) {
		return
	}
	b, err := req.budget()
	if err != nil {
		s.fail(c, err)
		return
	}
	b, err = s.svc.Accounts.CreateBudget(c.Request.Context(), currentUser(c), c.Param("id"), b)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, budgetOf(b))
}

func (s *Server) handleListBudgets(c *gin.Context) {
	budgets, err := s.svc.Accounts.ListBudgets(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]budgetJSON, 0, len(budgets))
	for _, b := range budgets {
		out = append(out, budgetOf(b))
	}
	c.JSON(http.StatusOK, gin.H{"budgets": out})
}

func (s *Server) handleDeleteBudget(c *gin.Context) {
	err := s.svc.Accounts.DeleteBudget(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("budgetID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type inviteRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

func (s *Server) handleInvite(c *gin.Context) {
	var req inviteRequest
	if !s.bindJSON(c, &req) {
		return
	}
	inv, err := s.svc.Invitations.Invite(c.Request.Context(), currentUser(c), c.Param("id"), req.Email, req.Phone)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"invitation": invitationOf(inv),
		"link":       s.svc.Invitations.Link(inv),
	})
}

func (s *Server) handleListInvitations(c *gin.Context) {
	invs, err := s.svc.Invitations.ListInvitations(c.Request.Context(), currentUser(c), c.Param("id"))
	if err != nil {
		s.fail(c, err)
		return
	}
	out := make([]invitationJSON, 0, len(invs))
	for _, inv := range invs {
		out = append(out, invitationOf(inv))
	}
	c.JSON(http.StatusOK, gin.H{"invitations": out})
}

func (s *Server) handleCancelInvitation(c *gin.Context) {
	err := s.svc.Invitations.CancelInvitation(c.Request.Context(), currentUser(c), c.Param("id"), c.Param("invitationID"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handlePreviewInvitation(c *gin.Context) {
	p, err := s.svc.Invitations.Preview(c.Request.Context(), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"account_name": p.AccountName,
		"inviter_name": p.InviterName,
		"expires_at":   p.Invitation.ExpiresAt,
	})
}

func (s *Server) handleAcceptInvitation(c *gin.Context) {
	a, err := s.svc.Invitations.Accept(c.Request.Context(), currentUser(c), c.Param("token"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, accountOf(a))
}
