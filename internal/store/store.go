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

package store

import (
	"context"
	"errors"
	"time"

	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
)

// Sentinel errors shared by every store backend.
var (
	ErrNotFound               = errors.New("not found")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrConcurrentModification = errors.New("concurrent modification detected")
	ErrDuplicatePayment       = errors.New("payment id already exists")
)

// DuplicateQuery identifies a logically identical payment.
type DuplicateQuery struct {
	UserId      string
	Amount      decimal.Decimal
	Currency    string
	Destination string
	Since       time.Time
}

// CreateWalletParams contains the parameters for registering a wallet.
type CreateWalletParams struct {
	UserId         string
	Currency       string
	Network        string
	Address        string
	LedgerAccount  string
	OpeningBalance decimal.Decimal
}

// AddMonitoredParams contains the parameters for tracking an on-chain send.
type AddMonitoredParams struct {
	TxRef     string
	UserId    string
	Network   string
	PaymentId string
	CreatedAt time.Time
}

// PaymentTx is the set of statements available inside one store transaction.
// Every method participates in the enclosing transaction; nothing is visible
// to other callers until WithTx commits.
type PaymentTx interface {
	// LockWallet reads the wallet and holds a row lock until the transaction ends.
	LockWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	FindWalletByAddress(ctx context.Context, address, currency string) (*models.Wallet, error)
	AdjustBalance(ctx context.Context, wallet *models.Wallet, delta decimal.Decimal) (decimal.Decimal, error)
	SetBalance(ctx context.Context, userId, currency string, balance decimal.Decimal) error
	EnsureWallet(ctx context.Context, params CreateWalletParams) (*models.Wallet, error)

	FindRecentDuplicate(ctx context.Context, q DuplicateQuery) (*models.PaymentRecord, error)
	SumOutgoing(ctx context.Context, userId, currency string, since time.Time) (decimal.Decimal, error)
	SumReserved(ctx context.Context, userId, currency string) (decimal.Decimal, error)

	InsertPayment(ctx context.Context, record *models.PaymentRecord) error
	SetPaymentTxRef(ctx context.Context, paymentId, txRef string) error
	CompletePayment(ctx context.Context, paymentId, txRef string, completedAt time.Time) error
	FailPayment(ctx context.Context, paymentId, reason string) error
	GetLinkedPayments(ctx context.Context, paymentId string) ([]models.PaymentRecord, error)
	GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error)

	InsertMonitored(ctx context.Context, params AddMonitoredParams) (bool, error)
	MarkMonitored(ctx context.Context, txRef, status, reason string) error

	AddJournalEntries(ctx context.Context, entries []models.JournalEntry) error
}

// PaymentStore defines the contract that every backend (SQLite, Postgres) must satisfy.
type PaymentStore interface {
	// WithTx runs fn inside a transaction. fn returning nil commits; any error
	// (or panic) rolls back.
	WithTx(ctx context.Context, fn func(tx PaymentTx) error) error

	// --- Users & wallets ---
	CreateUser(ctx context.Context, userId, name, email string) (*models.User, error)
	GetUserById(ctx context.Context, userId string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateWallet(ctx context.Context, params CreateWalletParams) (*models.Wallet, error)
	GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error)
	GetUserWallets(ctx context.Context, userId string) ([]models.Wallet, error)

	// --- Payments ---
	GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error)
	GetPaymentHistory(ctx context.Context, userId string, limit, offset int) ([]models.PaymentRecord, error)
	GetJournalEntries(ctx context.Context, paymentId string) ([]models.JournalEntry, error)

	// --- Monitored transactions ---
	AddMonitoredTransaction(ctx context.Context, params AddMonitoredParams) (bool, error)
	GetMonitoredTransaction(ctx context.Context, txRef string) (*models.MonitoredTransaction, error)
	ListPendingMonitored(ctx context.Context, network string, since time.Time, limit int) ([]models.MonitoredTransaction, error)
	ListStaleMonitored(ctx context.Context, network string, before time.Time, limit int) ([]models.MonitoredTransaction, error)
	TouchMonitored(ctx context.Context, txRef string) error

	// --- Webhooks ---
	RegisterWebhook(ctx context.Context, userId, url string) (*models.WebhookListener, error)
	GetWebhookListeners(ctx context.Context, userId string) ([]models.WebhookListener, error)

	// --- Lifecycle ---
	Ping(ctx context.Context) error
	Close()
}
