package httpapi

import (
	"fmt"
	"io"
	"net/http"

	"memory-credits-go/internal/settlement"

	"github.com/gin-gonic/gin"
)

const HeaderRazorpaySignature = "X-Razorpay-Signature"

type createOrderRequest struct {
	OrderId string `json:"order_id" binding:"required"`
	PackId  string `json:"pack_id" binding:"required"`
}

// verifyPaymentRequest is the checkout callback body. It carries no grant:
// what the payment buys was fixed when the order was created.
type verifyPaymentRequest struct {
	PaymentId string `json:"razorpay_payment_id"`
	OrderId   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

func (s *Server) CreateOrder(c *gin.Context) {
	var req createOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	order, err := s.ledger.CreateOrder(c.Request.Context(), c.Param("id"), req.PackId, req.OrderId)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusCreated, order)
}

func (s *Server) VerifyPayment(c *gin.Context) {
	var req verifyPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, fmt.Errorf("%w: %v", ErrInvalidRequest, err))
		return
	}

	result, err := s.ledger.SettlePayment(c.Request.Context(), settlement.SettleRequest{
		PaymentId: req.PaymentId,
		OrderId:   req.OrderId,
		Signature: req.Signature,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// PaymentWebhook acknowledges with 200 once the payment is settled or was
// settled before; any non-2xx makes the gateway redeliver.
func (s *Server) PaymentWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		AbortWithError(c, fmt.Errorf("%w: unreadable body", ErrInvalidRequest))
		return
	}

	result, err := s.ledger.SettleWebhook(c.Request.Context(), body, c.GetHeader(HeaderRazorpaySignature))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
