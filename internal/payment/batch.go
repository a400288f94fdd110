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
	"time"

	"crypto-payments-go/internal/models"

	"go.uber.org/zap"
)

// ProcessBatchPayments runs requests one at a time in input order with a
// fixed delay between them. A failed request never stops the batch; once ctx
// is done the remaining requests fail without being attempted.
func (p *Processor) ProcessBatchPayments(ctx context.Context, requests []models.PaymentRequest) []models.PaymentResult {
	results := make([]models.PaymentResult, len(requests))

	for i, req := range requests {
		if i > 0 && p.batchDelay > 0 {
			timer := time.NewTimer(p.batchDelay)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
		}

		if err := ctx.Err(); err != nil {
			results[i] = models.PaymentResult{
				Status:    models.PaymentStatusFailed,
				Error:     "batch cancelled: " + err.Error(),
				ErrorCode: CodeCancelled,
			}
			continue
		}

		results[i] = p.ProcessPayment(ctx, req)
	}

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
		}
	}
	zap.L().Info("Batch processed",
		zap.Int("total", len(requests)),
		zap.Int("succeeded", succeeded),
		zap.Int("failed", len(requests)-succeeded))
	return results
}
