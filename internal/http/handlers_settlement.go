package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coparent/internal/core"
)

// handleSettlement serves per-status balances for an account. view defaults
// to receivable.
func (s *Server) handleSettlement(c *gin.Context) {
	view := core.View(strings.ToLower(strings.TrimSpace(c.DefaultQuery("view", string(core.ReceivableView)))))
	if !view.Valid() {
		s.fail(c, fmt.Errorf("%w: %q", core.ErrInvalidView, view))
		return
	}
	p, err := ParsePeriod(c.Request.URL.Query(), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	report, err := s.svc.Settlement.Settle(c.Request.Context(), currentUser(c), c.Param("id"), view, p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, settlementOf(report))
}

func (s *Server) handleReport(c *gin.Context) {
	p, err := ParsePeriod(c.Request.URL.Query(), s.now())
	if err != nil {
		s.fail(c, err)
		return
	}
	report, err := s.svc.Reports.BuildReport(c.Request.Context(), currentUser(c), c.Param("id"), p)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, reportOf(report))
}
