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

package database

const (
	// Account queries
	queryInsertAccount = `
		INSERT INTO accounts (id, name, email, credits, is_premium, version, created_at, updated_at)
		VALUES (?, ?, ?, 0, 0, 1, ?, ?)`

	queryGetAccountById = `
		SELECT id, name, email, credits, is_premium, premium_expires_at, version, created_at, updated_at
		FROM accounts
		WHERE id = ?`

	queryGetAccountByEmail = `
		SELECT id, name, email, credits, is_premium, premium_expires_at, version, created_at, updated_at
		FROM accounts
		WHERE email = ?`

	queryListAccounts = `
		SELECT id, name, email, credits, is_premium, premium_expires_at, version, created_at, updated_at
		FROM accounts
		ORDER BY created_at`

	queryGetAccountBalance = `
		SELECT credits, version
		FROM accounts
		WHERE id = ?`

	queryUpdateAccountBalance = `
		UPDATE accounts
		SET credits = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Premium queries
	queryExpirePremium = `
		UPDATE accounts
		SET is_premium = 0, premium_expires_at = NULL, version = version + 1, updated_at = ?
		WHERE id = ? AND is_premium = 1 AND premium_expires_at IS NOT NULL AND premium_expires_at < ?`

	queryGetPremiumState = `
		SELECT is_premium, premium_expires_at, version
		FROM accounts
		WHERE id = ?`

	queryActivatePremium = `
		UPDATE accounts
		SET is_premium = 1, premium_expires_at = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	// Ledger queries
	queryInsertLedgerEntry = `
		INSERT INTO ledger_entries (
			id, account_id, action_type, credits_delta, balance_before, balance_after,
			description, idempotency_key, reservation_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetEntryByIdempotencyKey = `
		SELECT id, account_id, action_type, credits_delta, balance_before, balance_after,
		       description, idempotency_key, reservation_id, created_at
		FROM ledger_entries
		WHERE idempotency_key = ?
		LIMIT 1`

	queryGetLedgerEntries = `
		SELECT id, account_id, action_type, credits_delta, balance_before, balance_after,
		       description, idempotency_key, reservation_id, created_at
		FROM ledger_entries
		WHERE account_id = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?`

	queryReconcileBalance = `
		SELECT COALESCE(SUM(credits_delta), 0) AS calculated_balance
		FROM ledger_entries
		WHERE account_id = ?`

	// Usage queries
	queryEnsureUsageCounter = `
		INSERT OR IGNORE INTO usage_counters (account_id, month_key, created_at, updated_at)
		VALUES (?, ?, ?, ?)`

	queryGetUsageCounter = `
		SELECT account_id, month_key, memory_saves, memory_saves_with_media, ai_searches, created_at, updated_at
		FROM usage_counters
		WHERE account_id = ? AND month_key = ?`

	// Order queries
	queryInsertOrder = `
		INSERT INTO orders (
			order_id, account_id, pack_id, credits, premium_days, amount, currency,
			status, payment_id, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, '', ?)`

	queryGetOrder = `
		SELECT order_id, account_id, pack_id, credits, premium_days, amount, currency,
		       status, payment_id, created_at
		FROM orders
		WHERE order_id = ?`

	queryMarkOrderPaid = `
		UPDATE orders
		SET status = ?, payment_id = ?
		WHERE order_id = ? AND status = ?`

	// Payment queries
	queryInsertPayment = `
		INSERT INTO payment_records (
			payment_id, order_id, account_id, credits_granted, amount, currency,
			premium_days, ledger_entry_id, status, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayment = `
		SELECT payment_id, order_id, account_id, credits_granted, amount, currency,
		       premium_days, ledger_entry_id, status, created_at
		FROM payment_records
		WHERE payment_id = ?`

	// Reservation queries
	queryInsertReservation = `
		INSERT INTO reservations (
			id, account_id, action_type, credits, status, debit_entry_id, refund_entry_id,
			expires_at, created_at, closed_at
		) VALUES (?, ?, ?, ?, ?, ?, '', ?, ?, NULL)`

	queryGetReservation = `
		SELECT id, account_id, action_type, credits, status, debit_entry_id, refund_entry_id,
		       expires_at, created_at, closed_at
		FROM reservations
		WHERE id = ?`

	queryCloseReservation = `
		UPDATE reservations
		SET status = ?, refund_entry_id = ?, closed_at = ?
		WHERE id = ? AND status = 'held'`

	queryListExpiredReservations = `
		SELECT id, account_id, action_type, credits, status, debit_entry_id, refund_entry_id,
		       expires_at, created_at, closed_at
		FROM reservations
		WHERE status = 'held' AND expires_at < ?
		ORDER BY expires_at
		LIMIT ?`
)
