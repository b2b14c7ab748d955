package http

import (
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"

	"coparent/internal/log"
)

const (
	ctxUserID    = "user_id"
	ctxRequestID = "request_id"
)

// requestLogger tags each request with an ID and a request-scoped logger,
// and logs its completion.
func (s *Server) requestLogger() gin.HandlerFunc {
	structured := log.NewStructuredLogger(s.logger)
	return func(c *gin.Context) {
		start := time.Now()
		requestID := generateRequestID()
		clientIP := extractClientIP(c.Request)

		c.Set(ctxRequestID, requestID)
		c.Header("X-Request-ID", requestID)
		reqLogger := s.logger.With(log.FieldRequestID, requestID)
		c.Request = c.Request.WithContext(log.NewContext(c.Request.Context(), reqLogger))

		if detectSuspiciousRequest(c.Request, s.metrics) {
			reqLogger.WarnContext(c.Request.Context(), "Suspicious request",
				log.FieldComponent, log.ComponentSecurity,
				log.FieldClientIP, clientIP,
				log.FieldMethod, c.Request.Method,
				log.FieldPath, c.Request.URL.Path,
				log.FieldUserAgent, c.Request.UserAgent())
		}

		c.Next()

		structured.LogHTTPEnd(c.Request.Context(), c.Request.Method, c.Request.URL.Path,
			redactQuery(c.Request.URL.Query()), c.Writer.Status(), time.Since(start).Milliseconds(),
			clientIP, requestID)
	}
}

// redactQuery drops the websocket token from logged query strings.
func redactQuery(q url.Values) string {
	if q.Has("token") {
		q.Set("token", "redacted")
	}
	return q.Encode()
}

func (s *Server) securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
		h.Set("Cache-Control", "no-store")
		c.Next()
	}
}

func (s *Server) rateLimit() gin.HandlerFunc {
	return func(c *gin.Context) {
		clientIP := extractClientIP(c.Request)
		ok, retryAfter := s.limiter.allow(clientIP, s.metrics)
		if !ok {
			log.FromContext(c.Request.Context()).WarnContext(c.Request.Context(), "Rate limit exceeded",
				log.FieldComponent, log.ComponentRateLimit,
				log.FieldClientIP, clientIP,
				log.FieldPath, c.Request.URL.Path)
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			abortJSON(c, http.StatusTooManyRequests, "rate_limited", "rate limit exceeded")
			return
		}
		c.Next()
	}
}

// requireAuth accepts a bearer token, or a token query parameter on
// websocket upgrades where browsers cannot set headers.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
			token = c.Query("token")
		}
		userID, err := s.svc.Auth.Authenticate(token)
		if err != nil {
			atomic.AddInt64(&s.metrics.authFailures, 1)
			abortJSON(c, http.StatusUnauthorized, "unauthorized", "missing or invalid token")
			return
		}
		c.Set(ctxUserID, userID)
		ctx := c.Request.Context()
		c.Request = c.Request.WithContext(log.NewContext(ctx, log.FromContext(ctx).With(log.FieldUserID, userID)))
		c.Next()
	}
}

// recovery turns a panic into a logged 500.
func (s *Server) recovery() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		s.logger.ErrorContext(c.Request.Context(), "Panic in handler",
			"panic", recovered, log.FieldPath, c.Request.URL.Path)
		abortJSON(c, http.StatusInternalServerError, "internal", "internal error")
	})
}

func currentUser(c *gin.Context) string {
	return c.GetString(ctxUserID)
}
