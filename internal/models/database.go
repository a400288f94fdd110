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

package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payment statuses
const (
	PaymentStatusPending   = "pending"
	PaymentStatusCompleted = "completed"
	PaymentStatusFailed    = "failed"
	PaymentStatusCancelled = "cancelled"
)

// Payment kinds
const (
	PaymentKindInternal = "internal"
	PaymentKindOnchain  = "onchain"
	PaymentKindDeposit  = "deposit"
)

// PlatformUserId owns the wallets that collect service and gas fees.
const PlatformUserId = "platform"

// User represents a user in the system
type User struct {
	Id        string    `db:"id"`
	Name      string    `db:"name"`
	Email     string    `db:"email"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

// Wallet is a user's balance for one currency together with its on-chain identity
type Wallet struct {
	Id            string          `db:"id"`
	UserId        string          `db:"user_id"`
	Currency      string          `db:"currency"`
	Network       string          `db:"network"`
	Address       string          `db:"address"`
	LedgerAccount string          `db:"ledger_account"`
	Balance       decimal.Decimal `db:"balance"`
	Version       int64           `db:"version"`
	UpdatedAt     time.Time       `db:"updated_at"`
}

// PaymentRecord is the durable state of one payment
type PaymentRecord struct {
	Id              string          `db:"id" json:"id"`
	UserId          string          `db:"user_id" json:"user_id"`
	Kind            string          `db:"kind" json:"kind"`
	Amount          decimal.Decimal `db:"amount" json:"amount"`
	Currency        string          `db:"currency" json:"currency"`
	ToAddress       string          `db:"to_address" json:"to_address,omitempty"`
	ToUserId        string          `db:"to_user_id" json:"to_user_id,omitempty"`
	Description     string          `db:"description" json:"description,omitempty"`
	Status          string          `db:"status" json:"status"`
	GasFee          decimal.Decimal `db:"gas_fee" json:"gas_fee"`
	ServiceFee      decimal.Decimal `db:"service_fee" json:"service_fee"`
	TotalFee        decimal.Decimal `db:"total_fee" json:"total_fee"`
	FeeCurrency     string          `db:"fee_currency" json:"fee_currency"`
	ExternalTxRef   string          `db:"external_tx_ref" json:"external_tx_ref,omitempty"`
	ErrorMessage    string          `db:"error_message" json:"error_message,omitempty"`
	LinkedPaymentId string          `db:"linked_payment_id" json:"linked_payment_id,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	CompletedAt     *time.Time      `db:"completed_at" json:"completed_at,omitempty"`
}

// Destination returns the address or user the payment is sent to
func (p *PaymentRecord) Destination() string {
	if p.ToUserId != "" {
		return p.ToUserId
	}
	return p.ToAddress
}

// IsTerminal reports whether the record can no longer change status
func (p *PaymentRecord) IsTerminal() bool {
	return p.Status != PaymentStatusPending
}

// Journal account types
const (
	AccountTypeUser     = "user"
	AccountTypePlatform = "platform"
	AccountTypeExternal = "external"
)

// JournalEntry is one leg of a double-entry posting
type JournalEntry struct {
	Id           string          `db:"id"`
	PaymentId    string          `db:"payment_id"`
	AccountType  string          `db:"account_type"`
	AccountId    string          `db:"account_id"`
	Currency     string          `db:"currency"`
	DebitAmount  decimal.Decimal `db:"debit_amount"`
	CreditAmount decimal.Decimal `db:"credit_amount"`
	CreatedAt    time.Time       `db:"created_at"`
}

// WebhookListener is a user-registered callback URL
type WebhookListener struct {
	Id        string    `db:"id"`
	UserId    string    `db:"user_id"`
	URL       string    `db:"url"`
	Active    bool      `db:"active"`
	CreatedAt time.Time `db:"created_at"`
}
