package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type credentialsRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Name     string `json:"name"`
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if !s.bindJSON(c, &req) {
		return
	}
	session, err := s.svc.Auth.Register(c.Request.Context(), req.Email, req.Password, sanitizeInput(req.Name))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, sessionOf(session))
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if !s.bindJSON(c, &req) {
		return
	}
	session, err := s.svc.Auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, sessionOf(session))
}

type otpRequest struct {
	Phone string `json:"phone" binding:"required"`
	Code  string `json:"code"`
	Name  string `json:"name"`
}

func (s *Server) handleRequestOTP(c *gin.Context) {
	var req otpRequest
	if !s.bindJSON(c, &req) {
		return
	}
	if err := s.svc.Auth.RequestOTP(c.Request.Context(), req.Phone); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusAccepted)
}

func (s *Server) handleVerifyOTP(c *gin.Context) {
	var req otpRequest
	if !s.bindJSON(c, &req) {
		return
	}
	session, err := s.svc.Auth.VerifyOTP(c.Request.Context(), req.Phone, req.Code, sanitizeInput(req.Name))
	if err != nil {
		s.fail(c, err)
		return
	}
	status := http.StatusOK
	if session.Created {
		status = http.StatusCreated
	}
	c.JSON(status, sessionOf(session))
}

func (s *Server) handleMe(c *gin.Context) {
	u, err := s.svc.Auth.Me(c.Request.Context(), currentUser(c))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, userOf(u))
}
