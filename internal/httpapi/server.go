package httpapi

import (
	"context"
	"net/http"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/settlement"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ledger is the slice of api.LedgerService the HTTP surface calls.
type Ledger interface {
	CreateAccount(ctx context.Context, name, email string) (*models.Account, error)
	GetAccountSummary(ctx context.Context, accountId string) (*models.AccountSummary, error)
	GetLedgerHistory(ctx context.Context, accountId string, limit, offset int) ([]models.LedgerEntryRecord, error)
	Authorize(ctx context.Context, accountId, action, requestId string) (*models.AuthorizationResult, error)
	Reserve(ctx context.Context, accountId, action string, ttl time.Duration) (*models.AuthorizationResult, error)
	CommitReservation(ctx context.Context, reservationId string) (*models.ReservationResult, error)
	ReleaseReservation(ctx context.Context, reservationId string) (*models.ReservationResult, error)
	CreateOrder(ctx context.Context, accountId, packId, orderId string) (*models.OrderResult, error)
	SettlePayment(ctx context.Context, req settlement.SettleRequest) (*models.SettlementResult, error)
	SettleWebhook(ctx context.Context, body []byte, signature string) (*models.SettlementResult, error)
	HealthCheck(ctx context.Context) error
}

type Server struct {
	engine *gin.Engine
	ledger Ledger
}

func NewServer(ledger Ledger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), RequestID(), Instrument(), ErrorHandlingMiddleware())

	s := &Server{engine: engine, ledger: ledger}
	s.registerRoutes()
	return s
}

// Handler exposes the router for http.Server and tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) registerRoutes() {
	s.engine.GET("/healthz", s.Health)
	s.engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := s.engine.Group("/v1")

	v1.POST("/accounts", s.CreateAccount)
	v1.GET("/accounts/:id", s.GetAccount)
	v1.GET("/accounts/:id/ledger", s.GetLedger)
	v1.POST("/accounts/:id/authorize", s.Authorize)
	v1.POST("/accounts/:id/reservations", s.Reserve)
	v1.POST("/accounts/:id/orders", s.CreateOrder)

	v1.POST("/reservations/:id/commit", s.CommitReservation)
	v1.POST("/reservations/:id/release", s.ReleaseReservation)

	v1.POST("/payments/razorpay/verify", s.VerifyPayment)
	v1.POST("/payments/razorpay/webhook", s.PaymentWebhook)
}

func (s *Server) Health(c *gin.Context) {
	if err := s.ledger.HealthCheck(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
