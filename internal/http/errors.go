package http

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"coparent/internal/auth"
	"coparent/internal/core"
	"coparent/internal/log"
	"coparent/internal/receipts"
	"coparent/internal/services"
)

type errorBody struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func abortJSON(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, errorBody{Error: msg, Code: code})
}

var invalidInput = []error{
	core.ErrInvalidPeriod, core.ErrInvalidView, core.ErrInvalidStatus,
	core.ErrInvalidAmount, core.ErrInvalidDate, core.ErrInvalidDay, core.ErrInvalidMonth,
	core.ErrEmptyDescription, core.ErrTooLong, core.ErrEmptyCategory, core.ErrMissingPayer,
	core.ErrEmptyName, core.ErrInvalidFrequency, core.ErrInvalidEndDate, core.ErrInvalidBudget,
	services.ErrUnknownPayer, services.ErrUnknownChild, services.ErrNoContact, services.ErrInvalidEmail,
	auth.ErrWeakPassword, auth.ErrInvalidPhone,
	receipts.ErrUnreadable, errBadRequest,
}

// errBadRequest marks a body or query the handler could not decode.
var errBadRequest = errors.New("malformed request")

// statusFor maps domain errors to an HTTP status and a stable error code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, services.ErrNotMember), errors.Is(err, services.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrInvalidToken):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, auth.ErrOTPInvalid), errors.Is(err, auth.ErrOTPExpired), errors.Is(err, auth.ErrOTPNotRequested):
		return http.StatusUnauthorized, "invalid_code"
	case errors.Is(err, auth.ErrOTPCooldown), errors.Is(err, auth.ErrOTPLocked):
		return http.StatusTooManyRequests, "otp_throttled"
	case errors.Is(err, core.ErrInvalidTransition), errors.Is(err, core.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, core.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, services.ErrInvitationUnusable):
		return http.StatusGone, "invitation_unusable"
	case errors.Is(err, receipts.ErrDisabled):
		return http.StatusServiceUnavailable, "receipts_disabled"
	case errors.Is(err, receipts.ErrImageTooLarge):
		return http.StatusRequestEntityTooLarge, "image_too_large"
	case errors.Is(err, receipts.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType, "unsupported_media"
	}
	for _, target := range invalidInput {
		if errors.Is(err, target) {
			return http.StatusUnprocessableEntity, "invalid_request"
		}
	}
	return http.StatusInternalServerError, "internal"
}

// fail writes err as a JSON error. Internal errors are logged and hidden.
func (s *Server) fail(c *gin.Context, err error) {
	status, code := statusFor(err)
	ctx := c.Request.Context()
	logger := log.FromContext(ctx)

	var cooldown *auth.CooldownError
	if errors.As(err, &cooldown) {
		c.Header("Retry-After", strconv.Itoa(int(math.Ceil(cooldown.RetryAfter.Seconds()))))
	}

	if status == http.StatusInternalServerError {
		logger.ErrorContext(ctx, "Request failed",
			log.FieldPath, c.Request.URL.Path, log.FieldError, err)
		abortJSON(c, status, code, "internal error")
		return
	}
	logger.DebugContext(ctx, "Request rejected",
		log.FieldPath, c.Request.URL.Path, log.FieldStatusCode, status, log.FieldError, err)
	abortJSON(c, status, code, err.Error())
}
