package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	apperrors "spread-trader/internal/errors"
	"spread-trader/internal/security"
)

// Response is the envelope for every API reply.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *Error      `json:"error,omitempty"`
}

// Error is the error body of a failed reply.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

const (
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeBadRequest       = "BAD_REQUEST"
	ErrCodeUnauthorized     = "UNAUTHORIZED"
	ErrCodeValidationFailed = "VALIDATION_FAILED"
	ErrCodeTradingHalted    = "TRADING_HALTED"
	ErrCodeStaleData        = "STALE_DATA"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeBrokerError      = "BROKER_ERROR"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

func success(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &Error{Code: code, Message: message},
	})
}

// handleError maps the error taxonomy onto HTTP statuses.
func handleError(c *gin.Context, err error) {
	var be *apperrors.BrokerError
	switch {
	case apperrors.Is(err, apperrors.ErrNotFound), apperrors.Is(err, apperrors.ErrOrderNotFound):
		fail(c, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case apperrors.Is(err, apperrors.ErrTradingHalted):
		fail(c, http.StatusConflict, ErrCodeTradingHalted, err.Error())
	case apperrors.Is(err, apperrors.ErrInvalidSpread), apperrors.Is(err, apperrors.ErrRecommendationExpired):
		fail(c, http.StatusUnprocessableEntity, ErrCodeValidationFailed, err.Error())
	case apperrors.Is(err, apperrors.ErrStaleData):
		fail(c, http.StatusServiceUnavailable, ErrCodeStaleData, err.Error())
	case apperrors.As(err, &be):
		fail(c, http.StatusBadGateway, ErrCodeBrokerError, security.Redact(err.Error()))
	default:
		fail(c, http.StatusInternalServerError, ErrCodeInternalError, "An unexpected error occurred")
	}
}
