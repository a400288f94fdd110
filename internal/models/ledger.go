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

// Ledger transaction statuses as seen by the monitor
const (
	LedgerStatusPending   = "pending"
	LedgerStatusConfirmed = "confirmed"
	LedgerStatusFailed    = "failed"
)

// LedgerTransfer is a transfer handed to the ledger client for submission
type LedgerTransfer struct {
	FromAccount    string
	ToAddress      string
	Amount         decimal.Decimal
	Currency       string
	IdempotencyKey string
}

// LedgerTxStatus is the external ledger's view of a submitted transaction
type LedgerTxStatus struct {
	TxRef       string     `json:"tx_ref"`
	Status      string     `json:"status"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Reason      string     `json:"reason,omitempty"`
}

// LedgerTransaction is an entry from a ledger account's recent history
type LedgerTransaction struct {
	TxRef          string
	Type           string
	Status         string
	Currency       string
	Amount         decimal.Decimal
	Network        string
	IdempotencyKey string
	CreatedAt      time.Time
	CompletedAt    time.Time
}
