package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"memory-credits-go/internal/models"
	"memory-credits-go/internal/store"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ActionRefund is the ledger action recorded when a held reservation is
// returned to the account.
const ActionRefund = "refund"

// CreateReservation debits the account immediately and records the hold.
// The debit entry and the reservation row commit together.
func (s *Service) CreateReservation(ctx context.Context, params store.ReserveParams) (*models.Reservation, *models.LedgerEntry, error) {
	if params.Amount <= 0 {
		return nil, nil, fmt.Errorf("reservation amount must be positive, got %d", params.Amount)
	}
	if !params.ExpiresAt.After(params.Now) {
		return nil, nil, fmt.Errorf("reservation must expire after it is created")
	}

	reservation := &models.Reservation{
		Id:         uuid.New().String(),
		AccountId:  params.AccountId,
		ActionType: params.ActionType,
		Credits:    params.Amount,
		Status:     models.ReservationHeld,
		ExpiresAt:  params.ExpiresAt.UTC(),
		CreatedAt:  params.Now,
	}

	var entry *models.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		entry, err = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:     params.AccountId,
			ActionType:    params.ActionType,
			Delta:         -params.Amount,
			Description:   params.Description,
			ReservationId: reservation.Id,
			Now:           params.Now,
		})
		if err != nil {
			return err
		}
		reservation.DebitEntryId = entry.Id

		_, err = tx.ExecContext(ctx, queryInsertReservation,
			reservation.Id, reservation.AccountId, reservation.ActionType, reservation.Credits,
			reservation.Status, reservation.DebitEntryId, reservation.ExpiresAt.UnixMilli(),
			reservation.CreatedAt)
		if err != nil {
			return fmt.Errorf("failed to insert reservation: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Debug("Reservation held",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", reservation.AccountId),
		zap.Int64("credits", reservation.Credits),
		zap.Time("expires_at", reservation.ExpiresAt))
	return reservation, entry, nil
}

func (s *Service) GetReservation(ctx context.Context, reservationId string) (*models.Reservation, error) {
	reservation, err := scanReservation(s.db.QueryRowContext(ctx, queryGetReservation, reservationId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrReservationNotFound, reservationId)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("failed to get reservation: %w", err))
	}
	return reservation, nil
}

// CommitReservation finalizes a held debit. No ledger entry is written; the
// debit already happened when the hold was taken.
func (s *Service) CommitReservation(ctx context.Context, reservationId string, now time.Time) (*models.Reservation, error) {
	var reservation *models.Reservation
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		reservation, err = heldReservation(ctx, tx, reservationId)
		if err != nil {
			return err
		}
		// Past its expiry the hold belongs to the sweeper, which refunds it.
		if now.After(reservation.ExpiresAt) {
			return fmt.Errorf("%w: %s expired at %s", store.ErrReservationClosed, reservationId, reservation.ExpiresAt.Format(time.RFC3339))
		}
		if err := closeReservation(ctx, tx, reservation, models.ReservationCommitted, "", now); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	zap.L().Debug("Reservation committed",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", reservation.AccountId))
	return reservation, nil
}

// ReleaseReservation returns the held credits through a refund entry and
// closes the reservation with status (released or expired).
func (s *Service) ReleaseReservation(ctx context.Context, reservationId, status string, now time.Time) (*models.Reservation, *models.LedgerEntry, error) {
	if status != models.ReservationReleased && status != models.ReservationExpired {
		return nil, nil, fmt.Errorf("invalid release status '%s'", status)
	}

	var reservation *models.Reservation
	var refund *models.LedgerEntry
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		reservation, err = heldReservation(ctx, tx, reservationId)
		if err != nil {
			return err
		}

		refund, err = s.subledger.applyEntry(ctx, tx, entryParams{
			AccountId:      reservation.AccountId,
			ActionType:     ActionRefund,
			Delta:          reservation.Credits,
			Description:    fmt.Sprintf("Refund of %s reservation (%s)", reservation.ActionType, status),
			IdempotencyKey: fmt.Sprintf("reservation:%s:refund", reservation.Id),
			ReservationId:  reservation.Id,
			Now:            now,
		})
		if err != nil {
			return err
		}

		return closeReservation(ctx, tx, reservation, status, refund.Id, now)
	})
	if err != nil {
		return nil, nil, err
	}

	zap.L().Info("Reservation released",
		zap.String("reservation_id", reservation.Id),
		zap.String("account_id", reservation.AccountId),
		zap.String("status", status),
		zap.Int64("credits", reservation.Credits))
	return reservation, refund, nil
}

func (s *Service) ListExpiredReservations(ctx context.Context, now time.Time, limit int) ([]models.Reservation, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx, queryListExpiredReservations, now.UnixMilli(), limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to list expired reservations: %w", err))
	}
	defer closeRows(rows)

	var reservations []models.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		reservations = append(reservations, *reservation)
	}
	return reservations, rows.Err()
}

func heldReservation(ctx context.Context, tx *sql.Tx, reservationId string) (*models.Reservation, error) {
	reservation, err := scanReservation(tx.QueryRowContext(ctx, queryGetReservation, reservationId))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", store.ErrReservationNotFound, reservationId)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get reservation: %w", err)
	}
	if reservation.Status != models.ReservationHeld {
		return nil, fmt.Errorf("%w: %s is %s", store.ErrReservationClosed, reservationId, reservation.Status)
	}
	return reservation, nil
}

func closeReservation(ctx context.Context, tx *sql.Tx, reservation *models.Reservation, status, refundEntryId string, now time.Time) error {
	result, err := tx.ExecContext(ctx, queryCloseReservation, status, refundEntryId, now, reservation.Id)
	if err != nil {
		return fmt.Errorf("failed to close reservation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", store.ErrReservationClosed, reservation.Id)
	}

	reservation.Status = status
	reservation.RefundEntryId = refundEntryId
	closedAt := now
	reservation.ClosedAt = &closedAt
	return nil
}

func scanReservation(row rowScanner) (*models.Reservation, error) {
	var reservation models.Reservation
	var expiresAt int64
	var closedAt sql.NullTime
	err := row.Scan(&reservation.Id, &reservation.AccountId, &reservation.ActionType,
		&reservation.Credits, &reservation.Status, &reservation.DebitEntryId, &reservation.RefundEntryId,
		&expiresAt, &reservation.CreatedAt, &closedAt)
	if err != nil {
		return nil, err
	}
	reservation.ExpiresAt = time.UnixMilli(expiresAt).UTC()
	if closedAt.Valid {
		t := closedAt.Time
		reservation.ClosedAt = &t
	}
	return &reservation, nil
}
