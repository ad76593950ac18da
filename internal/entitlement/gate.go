package entitlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"memory-credits-go/internal/clock"
	"memory-credits-go/internal/metrics"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
	"memory-credits-go/internal/premium"
	"memory-credits-go/internal/store"

	"go.uber.org/zap"
)

// Outcome is the typed result of an authorization. Denials are outcomes,
// not errors.
type Outcome string

const (
	OutcomeAuthorized        Outcome = "authorized"
	OutcomeInsufficientFunds Outcome = "insufficient_funds"
	OutcomeCapExceeded       Outcome = "cap_exceeded"
)

// DefaultReservationTTL bounds how long a held reservation survives before
// the sweeper refunds it.
const DefaultReservationTTL = 5 * time.Minute

// Decision describes what the gate decided for one request.
type Decision struct {
	Outcome Outcome
	Action  policy.ActionType
	Cost    int64
	// Balance is the balance after the debit when authorized, otherwise the
	// balance observed while deciding.
	Balance  int64
	EntryId  string
	Premium  bool
	Replayed bool

	Reservation *models.Reservation
}

func (d *Decision) Authorized() bool {
	return d != nil && d.Outcome == OutcomeAuthorized
}

type AuthorizeRequest struct {
	AccountId   string
	Action      policy.ActionType
	Description string
	// RequestId, when set, makes a repeated authorization return the first
	// decision instead of debiting again.
	RequestId string
}

type ReserveRequest struct {
	AccountId   string
	Action      policy.ActionType
	Description string
	TTL         time.Duration
}

// Store is the slice of the backend the gate drives.
type Store interface {
	GetEntryByIdempotencyKey(ctx context.Context, key string) (*models.LedgerEntry, error)
	store.UsageStore
	store.ReservationStore
}

// Gate is the single authorization point for credit-consuming actions.
type Gate struct {
	store          Store
	premium        *premium.Manager
	catalog        *policy.Catalog
	clock          clock.Clock
	reservationTTL time.Duration
}

func NewGate(s Store, premiumManager *premium.Manager, catalog *policy.Catalog, c clock.Clock, reservationTTL time.Duration) *Gate {
	if reservationTTL <= 0 {
		reservationTTL = DefaultReservationTTL
	}
	return &Gate{
		store:          s,
		premium:        premiumManager,
		catalog:        catalog,
		clock:          c,
		reservationTTL: reservationTTL,
	}
}

// Authorize refreshes premium state, applies freemium caps and debits the
// action's cost. The debit is immediate and final.
func (g *Gate) Authorize(ctx context.Context, req AuthorizeRequest) (*Decision, error) {
	action, err := g.catalog.Lookup(req.Action)
	if err != nil {
		return nil, err
	}

	var idempotencyKey string
	if req.RequestId != "" {
		idempotencyKey = authorizeKey(req.AccountId, req.RequestId)
		entry, err := g.store.GetEntryByIdempotencyKey(ctx, idempotencyKey)
		if err != nil {
			return nil, err
		}
		if entry != nil {
			return g.replayed(action, entry), nil
		}
	}

	account, err := g.premium.Refresh(ctx, req.AccountId)
	if err != nil {
		return nil, err
	}

	// Caps and debit share one transaction, so a replayed request id can
	// neither consume a cap slot nor debit twice.
	now := g.clock.Now()
	var checks []store.CapCheck
	if premium.StateOf(account, now) != premium.StatePremium {
		checks = action.Caps
	}
	entry, err := g.store.MeteredDebit(ctx, store.MeteredDebitParams{
		Debit: store.DebitParams{
			AccountId:      req.AccountId,
			Amount:         action.Cost,
			ActionType:     string(action.Type),
			Description:    describe(req.Description, action),
			IdempotencyKey: idempotencyKey,
			Now:            now,
		},
		MonthKey: clock.MonthKey(now),
		Checks:   checks,
	})
	switch {
	case err == nil:
	case errors.Is(err, store.ErrAlreadyApplied) && entry != nil:
		// A concurrent request with the same id won the debit
		return g.replayed(action, entry), nil
	case errors.Is(err, store.ErrCapExceeded):
		return g.deny(ctx, req.AccountId, action, OutcomeCapExceeded, account), nil
	case errors.Is(err, store.ErrInsufficientFunds):
		return g.deny(ctx, req.AccountId, action, OutcomeInsufficientFunds, account), nil
	default:
		return nil, err
	}

	decision := &Decision{
		Outcome: OutcomeAuthorized,
		Action:  action.Type,
		Cost:    action.Cost,
		Balance: entry.BalanceAfter,
		EntryId: entry.Id,
		Premium: premium.StateOf(account, now) == premium.StatePremium,
	}
	g.record(ctx, req.AccountId, decision)
	return decision, nil
}

// Reserve runs the same admission as Authorize but holds the debit until it
// is committed or released. An unresolved hold is refunded once it expires.
func (g *Gate) Reserve(ctx context.Context, req ReserveRequest) (*Decision, error) {
	action, err := g.catalog.Lookup(req.Action)
	if err != nil {
		return nil, err
	}
	ttl := req.TTL
	if ttl <= 0 {
		ttl = g.reservationTTL
	}

	decision, account, err := g.admit(ctx, req.AccountId, action)
	if err != nil || decision != nil {
		return decision, err
	}

	now := g.clock.Now()
	reservation, entry, err := g.store.CreateReservation(ctx, store.ReserveParams{
		AccountId:   req.AccountId,
		Amount:      action.Cost,
		ActionType:  string(action.Type),
		Description: describe(req.Description, action),
		ExpiresAt:   now.Add(ttl),
		Now:         now,
	})
	if errors.Is(err, store.ErrInsufficientFunds) {
		return g.deny(ctx, req.AccountId, action, OutcomeInsufficientFunds, account), nil
	}
	if err != nil {
		return nil, err
	}

	decision = &Decision{
		Outcome:     OutcomeAuthorized,
		Action:      action.Type,
		Cost:        action.Cost,
		Balance:     entry.BalanceAfter,
		EntryId:     entry.Id,
		Premium:     premium.StateOf(account, now) == premium.StatePremium,
		Reservation: reservation,
	}
	g.record(ctx, req.AccountId, decision)
	return decision, nil
}

// Commit finalizes a held reservation after the gated work succeeded.
func (g *Gate) Commit(ctx context.Context, reservationId string) (*models.Reservation, error) {
	reservation, err := g.store.CommitReservation(ctx, reservationId, g.clock.Now())
	if err != nil {
		return nil, err
	}
	zap.L().Info("Reservation committed",
		zap.String("reservation_id", reservationId),
		zap.String("account_id", reservation.AccountId))
	return reservation, nil
}

// Release refunds a held reservation after the gated work failed.
func (g *Gate) Release(ctx context.Context, reservationId string) (*models.Reservation, *models.LedgerEntry, error) {
	reservation, refund, err := g.store.ReleaseReservation(ctx, reservationId, models.ReservationReleased, g.clock.Now())
	if err != nil {
		return nil, nil, err
	}
	metrics.ReservationsReleasedTotal.WithLabelValues(models.ReservationReleased).Inc()
	return reservation, refund, nil
}

// admit refreshes premium state and, for freemium accounts, consumes the
// action's caps ahead of a reservation. A non-nil decision is a denial.
// Counters are not rolled back if the hold later fails: the cap limits
// attempts.
func (g *Gate) admit(ctx context.Context, accountId string, action policy.Action) (*Decision, *models.Account, error) {
	account, err := g.premium.Refresh(ctx, accountId)
	if err != nil {
		return nil, nil, err
	}

	now := g.clock.Now()
	if premium.StateOf(account, now) == premium.StatePremium {
		return nil, account, nil
	}

	err = g.store.TryIncrement(ctx, accountId, clock.MonthKey(now), now, action.Caps...)
	if errors.Is(err, store.ErrCapExceeded) {
		return g.deny(ctx, accountId, action, OutcomeCapExceeded, account), account, nil
	}
	if err != nil {
		return nil, nil, err
	}
	return nil, account, nil
}

func (g *Gate) deny(ctx context.Context, accountId string, action policy.Action, outcome Outcome, account *models.Account) *Decision {
	decision := &Decision{
		Outcome: outcome,
		Action:  action.Type,
		Cost:    action.Cost,
		Balance: account.Credits,
		Premium: premium.StateOf(account, g.clock.Now()) == premium.StatePremium,
	}
	g.record(ctx, accountId, decision)
	return decision
}

func (g *Gate) replayed(action policy.Action, entry *models.LedgerEntry) *Decision {
	zap.L().Info("Authorization replayed",
		zap.String("account_id", entry.AccountId),
		zap.String("entry_id", entry.Id),
		zap.String("idempotency_key", entry.IdempotencyKey))
	return &Decision{
		Outcome:  OutcomeAuthorized,
		Action:   action.Type,
		Cost:     -entry.CreditsDelta,
		Balance:  entry.BalanceAfter,
		EntryId:  entry.Id,
		Replayed: true,
	}
}

func (g *Gate) record(ctx context.Context, accountId string, decision *Decision) {
	metrics.AuthorizationsTotal.WithLabelValues(string(decision.Action), string(decision.Outcome)).Inc()
	zap.L().Info("Authorization decided",
		zap.String("account_id", accountId),
		zap.String("action", string(decision.Action)),
		zap.String("outcome", string(decision.Outcome)),
		zap.Int64("cost", decision.Cost),
		zap.Int64("balance", decision.Balance),
		zap.Bool("premium", decision.Premium),
		zap.String("request_id", models.RequestIdFromContext(ctx)))
}

func authorizeKey(accountId, requestId string) string {
	return fmt.Sprintf("authorize:%s:%s", accountId, requestId)
}

func describe(description string, action policy.Action) string {
	if description != "" {
		return description
	}
	return fmt.Sprintf("%s (%d credits)", action.Type, action.Cost)
}
