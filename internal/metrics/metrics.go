package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthorizationsTotal counts gate decisions by action and outcome.
	AuthorizationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memcredits",
		Name:      "authorizations_total",
		Help:      "Entitlement decisions by action type and outcome.",
	}, []string{"action", "outcome"})

	// SettlementsTotal counts payment settlements by outcome.
	SettlementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memcredits",
		Name:      "settlements_total",
		Help:      "Payment settlements by outcome.",
	}, []string{"outcome"})

	PremiumExpirationsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "memcredits",
		Name:      "premium_expirations_total",
		Help:      "Premium periods transitioned back to freemium.",
	})

	// ReservationsReleasedTotal counts refunded reservations; reason is
	// "released" for explicit releases and "expired" for sweeper refunds.
	ReservationsReleasedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "memcredits",
		Name:      "reservations_released_total",
		Help:      "Reservations refunded, by reason.",
	}, []string{"reason"})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "memcredits",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration by route.",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"route"})
)
