package httpapi

import (
	"fmt"
	"net/http"
	"time"

	"memory-credits-go/internal/entitlement"
	"memory-credits-go/internal/models"

	"github.com/gin-gonic/gin"
)

type authorizeRequest struct {
	Action    string `json:"action"`
	RequestId string `json:"request_id"`
}

type reserveRequest struct {
	Action     string `json:"action"`
	TTLSeconds int64  `json:"ttl_seconds"`
}

// decisionStatus maps a gate outcome to its response code. Denials are
// responses, not errors.
func decisionStatus(result *models.AuthorizationResult) int {
	switch entitlement.Outcome(result.Outcome) {
	case entitlement.OutcomeInsufficientFunds:
		return http.StatusPaymentRequired
	case entitlement.OutcomeCapExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusOK
	}
}

func (s *Server) Authorize(c *gin.Context) {
	var req authorizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	requestId := req.RequestId
	if requestId == "" {
		// Idempotency-Key header is accepted as an alternative
		requestId = c.GetHeader("Idempotency-Key")
	}

	result, err := s.ledger.Authorize(c.Request.Context(), c.Param("id"), req.Action, requestId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(decisionStatus(result), result)
}

func (s *Server) Reserve(c *gin.Context) {
	var req reserveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	if req.TTLSeconds < 0 {
		AbortWithError(c, fmt.Errorf("%w: ttl_seconds cannot be negative", ErrInvalidRequest))
		return
	}

	result, err := s.ledger.Reserve(c.Request.Context(), c.Param("id"), req.Action, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := decisionStatus(result)
	if status == http.StatusOK {
		status = http.StatusCreated
	}
	c.JSON(status, result)
}

func (s *Server) CommitReservation(c *gin.Context) {
	result, err := s.ledger.CommitReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) ReleaseReservation(c *gin.Context) {
	result, err := s.ledger.ReleaseReservation(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
