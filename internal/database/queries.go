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

const schema = `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_users_email ON users(email);

	CREATE TABLE IF NOT EXISTS wallets (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		network TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		ledger_account TEXT NOT NULL DEFAULT '',
		balance TEXT NOT NULL DEFAULT '0',
		version INTEGER NOT NULL DEFAULT 1,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, currency)
	);

	CREATE INDEX IF NOT EXISTS idx_wallets_address ON wallets(address);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency TEXT NOT NULL,
		to_address TEXT NOT NULL DEFAULT '',
		to_user_id TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		gas_fee TEXT NOT NULL DEFAULT '0',
		service_fee TEXT NOT NULL DEFAULT '0',
		total_fee TEXT NOT NULL DEFAULT '0',
		fee_currency TEXT NOT NULL DEFAULT '',
		external_tx_ref TEXT NOT NULL DEFAULT '',
		error_message TEXT NOT NULL DEFAULT '',
		linked_payment_id TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_payments_user_currency_created ON payments(user_id, currency, created_at);
	CREATE INDEX IF NOT EXISTS idx_payments_status_created ON payments(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_payments_external_tx_ref ON payments(external_tx_ref);
	CREATE INDEX IF NOT EXISTS idx_payments_linked ON payments(linked_payment_id);

	CREATE TABLE IF NOT EXISTS monitored_transactions (
		tx_ref TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		network TEXT NOT NULL,
		payment_id TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_monitored_network_status_created ON monitored_transactions(network, status, created_at);
	CREATE INDEX IF NOT EXISTS idx_monitored_network_status_updated ON monitored_transactions(network, status, updated_at);

	CREATE TABLE IF NOT EXISTS journal_entries (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL,
		account_type TEXT NOT NULL,
		account_id TEXT NOT NULL,
		currency TEXT NOT NULL,
		debit_amount TEXT NOT NULL,
		credit_amount TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_journal_entries_payment ON journal_entries(payment_id);

	CREATE TABLE IF NOT EXISTS webhook_listeners (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		url TEXT NOT NULL,
		active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL,
		UNIQUE(user_id, url)
	);
`

const (
	// User queries
	queryInsertUser = `
		INSERT INTO users (id, name, email) VALUES (?, ?, ?)
		ON CONFLICT DO NOTHING`

	queryGetUserById = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE id = ? AND active = TRUE`

	queryGetUserByEmail = `
		SELECT id, name, email, created_at, updated_at
		FROM users
		WHERE email = ? AND active = TRUE`

	// Wallet queries
	walletColumns = `id, user_id, currency, network, address, ledger_account, balance, version, updated_at`

	queryInsertWallet = `
		INSERT INTO wallets (id, user_id, currency, network, address, ledger_account, balance, version, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1, ?)
		ON CONFLICT (user_id, currency) DO NOTHING`

	queryGetWallet = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ? AND currency = ?`

	queryGetUserWallets = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE user_id = ?
		ORDER BY currency`

	queryFindWalletByAddress = `
		SELECT ` + walletColumns + `
		FROM wallets
		WHERE LOWER(address) = LOWER(?) AND currency = ?`

	queryUpdateWalletBalance = `
		UPDATE wallets
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`

	querySetWalletBalance = `
		UPDATE wallets
		SET balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND currency = ?`

	// Payment queries
	paymentColumns = `id, user_id, kind, amount, currency, to_address, to_user_id, description, status,
		gas_fee, service_fee, total_fee, fee_currency, external_tx_ref, error_message, linked_payment_id,
		created_at, completed_at`

	queryInsertPayment = `
		INSERT INTO payments (` + paymentColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetPayment = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE id = ?`

	queryGetPaymentHistory = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = ?
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?`

	queryGetLinkedPayments = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE linked_payment_id = ?
		ORDER BY created_at`

	queryRecentPendingPayments = `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE user_id = ? AND currency = ? AND status = 'pending' AND kind != 'deposit' AND created_at >= ?`

	queryOutgoingAmounts = `
		SELECT amount
		FROM payments
		WHERE user_id = ? AND currency = ? AND kind IN ('internal', 'onchain')
		  AND status IN ('pending', 'completed') AND created_at >= ?`

	queryPendingOnchainReservations = `
		SELECT currency, amount, service_fee, fee_currency, gas_fee
		FROM payments
		WHERE user_id = ? AND kind = 'onchain' AND status = 'pending'
		  AND (currency = ? OR fee_currency = ?)`

	querySetPaymentTxRef = `
		UPDATE payments
		SET external_tx_ref = ?
		WHERE id = ? AND status = 'pending'`

	queryCompletePayment = `
		UPDATE payments
		SET status = 'completed', completed_at = ?, external_tx_ref = COALESCE(NULLIF(?, ''), external_tx_ref)
		WHERE id = ? AND status = 'pending'`

	queryFailPayment = `
		UPDATE payments
		SET status = 'failed', completed_at = ?, error_message = ?
		WHERE id = ? AND status = 'pending'`

	// Monitored transaction queries
	monitoredColumns = `tx_ref, user_id, network, payment_id, status, error_message, created_at, updated_at`

	queryInsertMonitored = `
		INSERT INTO monitored_transactions (tx_ref, user_id, network, payment_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, 'pending', ?, ?)
		ON CONFLICT (tx_ref) DO NOTHING`

	queryGetMonitored = `
		SELECT ` + monitoredColumns + `
		FROM monitored_transactions
		WHERE tx_ref = ?`

	queryMarkMonitored = `
		UPDATE monitored_transactions
		SET status = ?, error_message = ?, updated_at = ?
		WHERE tx_ref = ? AND status = 'pending'`

	queryListPendingMonitored = `
		SELECT ` + monitoredColumns + `
		FROM monitored_transactions
		WHERE network = ? AND status = 'pending' AND created_at >= ?
		ORDER BY created_at ASC
		LIMIT ?`

	queryListStaleMonitored = `
		SELECT ` + monitoredColumns + `
		FROM monitored_transactions
		WHERE network = ? AND status = 'pending' AND created_at < ?
		ORDER BY updated_at ASC, created_at ASC
		LIMIT ?`

	queryTouchMonitored = `
		UPDATE monitored_transactions
		SET updated_at = ?
		WHERE tx_ref = ? AND status = 'pending'`

	// Journal queries
	queryInsertJournalEntry = `
		INSERT INTO journal_entries (id, payment_id, account_type, account_id, currency, debit_amount, credit_amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	queryGetJournalEntries = `
		SELECT id, payment_id, account_type, account_id, currency, debit_amount, credit_amount, created_at
		FROM journal_entries
		WHERE payment_id = ?
		ORDER BY created_at, currency, account_type, account_id`

	// Webhook queries
	queryInsertWebhook = `
		INSERT INTO webhook_listeners (id, user_id, url, active, created_at)
		VALUES (?, ?, ?, TRUE, ?)
		ON CONFLICT (user_id, url) DO NOTHING`

	queryGetWebhooks = `
		SELECT id, user_id, url, active, created_at
		FROM webhook_listeners
		WHERE user_id = ? AND active = TRUE
		ORDER BY created_at`

	queryGetWebhookByUrl = `
		SELECT id, user_id, url, active, created_at
		FROM webhook_listeners
		WHERE user_id = ? AND url = ?`
)
