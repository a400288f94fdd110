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

// PaymentRequest is a caller-supplied payment intent
type PaymentRequest struct {
	PaymentId   string            `json:"payment_id,omitempty" yaml:"payment_id"`
	UserId      string            `json:"user_id" yaml:"user_id"`
	Amount      decimal.Decimal   `json:"amount" yaml:"-"`
	Currency    string            `json:"currency" yaml:"currency"`
	ToAddress   string            `json:"to_address,omitempty" yaml:"to_address"`
	ToUserId    string            `json:"to_user_id,omitempty" yaml:"to_user_id"`
	Description string            `json:"description,omitempty" yaml:"description"`
	Metadata    map[string]string `json:"metadata,omitempty" yaml:"metadata"`
}

// IsOnchain reports whether the request targets an external address
func (r PaymentRequest) IsOnchain() bool {
	return r.ToAddress != ""
}

// Destination returns the address or user the request targets
func (r PaymentRequest) Destination() string {
	if r.ToUserId != "" {
		return r.ToUserId
	}
	return r.ToAddress
}

// PaymentResult is the caller-facing outcome of a payment
type PaymentResult struct {
	Success       bool             `json:"success"`
	TransactionId string           `json:"transaction_id,omitempty"`
	TxRef         string           `json:"tx_ref,omitempty"`
	Status        string           `json:"status,omitempty"`
	Error         string           `json:"error,omitempty"`
	ErrorCode     string           `json:"error_code,omitempty"`
	EstimatedFee  *decimal.Decimal `json:"estimated_fee,omitempty"`
	EstimatedTime time.Duration    `json:"estimated_time,omitempty"`
}
