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

import "time"

// Monitored transaction statuses
const (
	MonitoredStatusPending   = "pending"
	MonitoredStatusConfirmed = "confirmed"
	MonitoredStatusFailed    = "failed"
)

// MonitoredTransaction tracks an on-chain send until the ledger settles it
type MonitoredTransaction struct {
	TxRef        string    `db:"tx_ref"`
	UserId       string    `db:"user_id"`
	Network      string    `db:"network"`
	PaymentId    string    `db:"payment_id"`
	Status       string    `db:"status"`
	ErrorMessage string    `db:"error_message"`
	CreatedAt    time.Time `db:"created_at"`
	UpdatedAt    time.Time `db:"updated_at"`
}
