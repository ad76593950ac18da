package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
)

type createAccountRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

func (s *Server) CreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}
	email := strings.TrimSpace(req.Email)
	if email == "" {
		AbortWithError(c, fmt.Errorf("%w: email is required", ErrInvalidRequest))
		return
	}

	account, err := s.ledger.CreateAccount(c.Request.Context(), strings.TrimSpace(req.Name), email)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	summary, err := s.ledger.GetAccountSummary(c.Request.Context(), account.Id)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, summary)
}

func (s *Server) GetAccount(c *gin.Context) {
	summary, err := s.ledger.GetAccountSummary(c.Request.Context(), c.Param("id"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) GetLedger(c *gin.Context) {
	limit, err := queryInt(c, "limit")
	if err != nil {
		AbortWithError(c, err)
		return
	}
	offset, err := queryInt(c, "offset")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	entries, err := s.ledger.GetLedgerHistory(c.Request.Context(), c.Param("id"), limit, offset)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries})
}

// queryInt returns zero for an absent parameter so the service default applies.
func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", ErrInvalidRequest, key)
	}
	return v, nil
}
