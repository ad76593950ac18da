package httpapi

import (
	"errors"
	"net/http"

	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/settlement"
	"memory-credits-go/internal/signature"
	"memory-credits-go/internal/store"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

var ErrInvalidRequest = errors.New("invalid_request")

type errorPayload struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

// ErrorHandlingMiddleware renders the last handler error when nothing has
// been written yet.
func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		if status >= http.StatusInternalServerError {
			zap.L().Error("Request failed",
				zap.String("route", c.FullPath()),
				zap.Int("status", status),
				zap.Error(lastErr.Err))
		}
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func mapError(err error) (int, errorPayload) {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, policy.ErrUnknownAction),
		errors.Is(err, store.ErrBalanceOverflow),
		errors.Is(err, settlement.ErrInvalidRequest),
		errors.Is(err, settlement.ErrInvalidPayload):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_request",
			Message: err.Error(),
		}
	case errors.Is(err, signature.ErrInvalidSignature):
		return http.StatusBadRequest, errorPayload{
			Type:    "invalid_signature",
			Message: "signature verification failed",
		}
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrReservationNotFound),
		errors.Is(err, store.ErrOrderNotFound):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: err.Error(),
		}
	case errors.Is(err, store.ErrAccountExists),
		errors.Is(err, store.ErrReservationClosed),
		errors.Is(err, store.ErrOrderExists),
		errors.Is(err, store.ErrPaymentMismatch):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, store.ErrStoreUnavailable),
		errors.Is(err, signature.ErrMissingSecret):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}
