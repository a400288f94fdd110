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

package payment

import (
	"context"
	"fmt"

	"crypto-payments-go/internal/models"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// GetPaymentStatus returns the stored record. A pending on-chain record is
// reported with the monitor's cached ledger outcome when one is known; the
// store is not updated.
func (p *Processor) GetPaymentStatus(ctx context.Context, paymentId string) (*models.PaymentRecord, error) {
	record, err := p.store.GetPayment(ctx, paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment %s: %w", paymentId, err)
	}

	view := *record
	if view.Status != models.PaymentStatusPending || view.ExternalTxRef == "" || p.statuses == nil {
		return &view, nil
	}

	if status, ok := p.statuses.Get(ctx, view.ExternalTxRef); ok {
		switch status {
		case models.LedgerStatusConfirmed:
			view.Status = models.PaymentStatusCompleted
		case models.LedgerStatusFailed:
			view.Status = models.PaymentStatusFailed
		}
	}
	return &view, nil
}

// GetPaymentHistory returns a user's payments newest first. limit is clamped
// to [1, 100] and defaults to 20.
func (p *Processor) GetPaymentHistory(ctx context.Context, userId string, limit, offset int) ([]models.PaymentRecord, error) {
	switch {
	case limit <= 0:
		limit = defaultHistoryLimit
	case limit > maxHistoryLimit:
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	history, err := p.store.GetPaymentHistory(ctx, userId, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to get payment history: %w", err)
	}
	return history, nil
}
