package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"referral-chat/internal/service"
)

// statusFor traduce los errores de servicio a codigos HTTP.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrAuthRequired):
		return http.StatusUnauthorized, "authentication required"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, service.ErrInvalidAnswer):
		return http.StatusBadRequest, "answer must be yes or no"
	case errors.Is(err, service.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests, "too many messages"
	case errors.Is(err, service.ErrAssessmentInProgress):
		return http.StatusConflict, "assessment already in progress"
	case errors.Is(err, service.ErrNoActiveAssessment):
		return http.StatusConflict, "no active assessment"
	case errors.Is(err, service.ErrNotAwaitingAnswer):
		return http.StatusConflict, "assessment is not awaiting an answer"
	case errors.Is(err, service.ErrSessionNotOpen):
		return http.StatusConflict, "no conversation open"
	case errors.Is(err, service.ErrMessageServiceNotConfigured),
		errors.Is(err, service.ErrAssessmentNotConfigured),
		errors.Is(err, service.ErrTriageServiceNotConfigured),
		errors.Is(err, service.ErrSessionNotConfigured):
		return http.StatusServiceUnavailable, "service not configured"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, logger *zap.Logger, op string, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		logger.Error(op+" failed", zap.Error(err))
	} else {
		logger.Warn(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": msg})
}
