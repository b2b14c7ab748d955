package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coparent/internal/log"
)

// handleWebsocket subscribes a member to live events of one account.
func (s *Server) handleWebsocket(c *gin.Context) {
	if s.svc.Hub == nil {
		abortJSON(c, http.StatusNotFound, "not_found", "live updates are disabled")
		return
	}
	accountID := c.Param("id")
	actor := currentUser(c)
	if _, err := s.svc.Accounts.GetAccount(c.Request.Context(), actor, accountID); err != nil {
		s.fail(c, err)
		return
	}
	if err := s.svc.Hub.Serve(c.Writer, c.Request, accountID, actor); err != nil {
		log.FromContext(c.Request.Context()).WarnContext(c.Request.Context(), "Websocket upgrade failed",
			log.FieldAccountID, accountID, log.FieldError, err)
	}
}
