// Package http serves the coparent JSON API.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"coparent/internal/log"
	"coparent/internal/notify"
	"coparent/internal/services"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Services are the use cases behind the routes. Receipts and Hub may be nil.
type Services struct {
	Auth        *services.AuthService
	Accounts    *services.AccountService
	Invitations *services.InvitationService
	Expenses    *services.ExpenseService
	Settlement  *services.SettlementService
	Reports     *services.ReportService
	Receipts    *services.ReceiptService
	Hub         *notify.Hub
	Store       Pinger
}

type Options struct {
	AllowedOrigins []string
	// RateLimit is the number of requests per minute allowed per client.
	RateLimit int
	Logger    *log.Logger
}

type Server struct {
	http.Server
	engine  *gin.Engine
	svc     Services
	logger  *log.Logger
	limiter *rateLimiter
	metrics *securityMetrics
	now     func() time.Time

	shutdownOnce sync.Once
}

// NewServer wires middleware and routes, returning a ready-to-run server.
func NewServer(addr string, svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Discard()
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 120
	}

	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      60 * time.Second,
			IdleTimeout:       120 * time.Second,
		},
		engine:  engine,
		svc:     svc,
		logger:  logger.WithComponent(log.ComponentHTTP),
		limiter: newRateLimiter(opts.RateLimit, time.Minute),
		metrics: &securityMetrics{},
		now:     time.Now,
	}

	engine.Use(s.recovery(), s.requestLogger(), s.securityHeaders())
	if len(opts.AllowedOrigins) > 0 {
		engine.Use(cors.New(cors.Config{
			AllowOrigins:     opts.AllowedOrigins,
			AllowMethods:     []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
			ExposeHeaders:    []string{"Content-Length", "X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           24 * time.Hour,
		}))
	}

	s.routes()
	return s
}

func (s *Server) routes() {
	s.engine.GET("/healthz", s.handleHealth)
	s.engine.GET("/readyz", s.handleReady)

	api := s.engine.Group("/api/v1", s.rateLimit())

	api.POST("/auth/register", s.handleRegister)
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/otp/request", s.handleRequestOTP)
	api.POST("/auth/otp/verify", s.handleVerifyOTP)
	api.GET("/invitations/:token", s.handlePreviewInvitation)

	protected := api.Group("/", s.requireAuth())
	protected.GET("/me", s.handleMe)

	protected.GET("/accounts", s.handleListAccounts)
	protected.POST("/accounts", s.handleCreateAccount)
	protected.GET("/accounts/:id", s.handleGetAccount)
	protected.GET("/accounts/:id/members", s.handleListMembers)
	protected.DELETE("/accounts/:id/members/:userID", s.handleRemoveMember)
	protected.GET("/accounts/:id/children", s.handleListChildren)
	protected.POST("/accounts/:id/children", s.handleAddChild)
	protected.GET("/accounts/:id/budgets", s.handleListBudgets)
	protected.POST("/accounts/:id/budgets", s.handleCreateBudget)
	protected.DELETE("/accounts/:id/budgets/:budgetID", s.handleDeleteBudget)

	protected.GET("/accounts/:id/invitations", s.handleListInvitations)
	protected.POST("/accounts/:id/invitations", s.handleInvite)
	protected.DELETE("/accounts/:id/invitations/:invitationID", s.handleCancelInvitation)
	protected.POST("/invitations/:token/accept", s.handleAcceptInvitation)

	protected.GET("/accounts/:id/expenses", s.handleListExpenses)
	protected.POST("/accounts/:id/expenses", s.handleCreateExpense)
	protected.GET("/expenses/:expenseID", s.handleGetExpense)
	protected.PATCH("/expenses/:expenseID", s.handleUpdateExpense)
	protected.POST("/expenses/:expenseID/status", s.handleTransitionExpense)

	protected.GET("/accounts/:id/settlement", s.handleSettlement)
	protected.GET("/accounts/:id/report", s.handleReport)

	protected.POST("/accounts/:id/receipts/scan", s.handleScanReceipt)
	protected.POST("/accounts/:id/receipts/approve", s.handleApproveReceipt)

	protected.GET("/accounts/:id/ws", s.handleWebsocket)
}

// Shutdown stops background routines and drains the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.stop()
		if s.svc.Hub != nil {
			if err := s.svc.Hub.Close(); err != nil {
				s.logger.WarnContext(ctx, "Closing push hub", log.FieldError, err)
			}
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealth(c *gin.Context) {
	c.String(http.StatusOK, "ok")
}

func (s *Server) handleReady(c *gin.Context) {
	if s.svc.Store != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Store.Ping(ctx); err != nil {
			s.logger.WarnContext(ctx, "Readiness check failed", log.FieldError, err)
			c.String(http.StatusServiceUnavailable, "store unavailable")
			return
		}
	}
	c.String(http.StatusOK, "ready")
}
