/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package api

import (
	"context"
	"fmt"
	"time"

	"memory-credits-go/internal/entitlement"
	"memory-credits-go/internal/models"
	"memory-credits-go/internal/policy"
)

// Authorize checks and debits a credit-consuming action. Denials come back
// as an outcome on the result, not as an error.
func (s *LedgerService) Authorize(ctx context.Context, accountId, action, requestId string) (*models.AuthorizationResult, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	actionType, err := policy.ParseActionType(action)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Authorize(ctx, entitlement.AuthorizeRequest{
		AccountId: accountId,
		Action:    actionType,
		RequestId: requestId,
	})
	if err != nil {
		return nil, fmt.Errorf("authorization failed: %w", err)
	}
	return toAuthorizationResult(decision), nil
}

// Reserve holds the cost of an action until it is committed or released
func (s *LedgerService) Reserve(ctx context.Context, accountId, action string, ttl time.Duration) (*models.AuthorizationResult, error) {
	if accountId == "" {
		return nil, fmt.Errorf("account_id is required")
	}
	actionType, err := policy.ParseActionType(action)
	if err != nil {
		return nil, err
	}

	decision, err := s.gate.Reserve(ctx, entitlement.ReserveRequest{
		AccountId: accountId,
		Action:    actionType,
		TTL:       ttl,
	})
	if err != nil {
		return nil, fmt.Errorf("reservation failed: %w", err)
	}
	return toAuthorizationResult(decision), nil
}

func (s *LedgerService) CommitReservation(ctx context.Context, reservationId string) (*models.ReservationResult, error) {
	reservation, err := s.gate.Commit(ctx, reservationId)
	if err != nil {
		return nil, fmt.Errorf("failed to commit reservation: %w", err)
	}
	return toReservationResult(reservation, ""), nil
}

func (s *LedgerService) ReleaseReservation(ctx context.Context, reservationId string) (*models.ReservationResult, error) {
	reservation, refund, err := s.gate.Release(ctx, reservationId)
	if err != nil {
		return nil, fmt.Errorf("failed to release reservation: %w", err)
	}
	return toReservationResult(reservation, refund.Id), nil
}

func toAuthorizationResult(decision *entitlement.Decision) *models.AuthorizationResult {
	result := &models.AuthorizationResult{
		Outcome:  string(decision.Outcome),
		Action:   string(decision.Action),
		Cost:     decision.Cost,
		Balance:  decision.Balance,
		EntryId:  decision.EntryId,
		Premium:  decision.Premium,
		Replayed: decision.Replayed,
	}
	if decision.Reservation != nil {
		result.ReservationId = decision.Reservation.Id
		expiresAt := decision.Reservation.ExpiresAt
		result.ExpiresAt = &expiresAt
	}
	return result
}

func toReservationResult(reservation *models.Reservation, refundEntryId string) *models.ReservationResult {
	return &models.ReservationResult{
		ReservationId: reservation.Id,
		AccountId:     reservation.AccountId,
		Status:        reservation.Status,
		Credits:       reservation.Credits,
		RefundEntryId: refundEntryId,
		ClosedAt:      reservation.ClosedAt,
	}
}
