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

package monitor

import (
	"context"
	"fmt"
	"time"

	"crypto-payments-go/internal/metrics"

	"go.uber.org/zap"
)

// Sweep re-checks pending transactions older than the lookback window,
// which regular passes no longer see. Those older than the maximum pending
// age that the ledger still cannot find are failed as expired. Rows left
// unresolved go to the back of the queue so a full batch cannot starve the
// rest.
func (m *Monitor) Sweep(ctx context.Context) (PassSummary, error) {
	now := m.now()
	stale, err := m.store.ListStaleMonitored(ctx, m.network, now.Add(-m.lookbackWindow), m.batchSize)
	if err != nil {
		return PassSummary{}, fmt.Errorf("failed to list stale transactions: %w", err)
	}

	var summary PassSummary
	for _, tx := range stale {
		expire := now.Sub(tx.CreatedAt) > m.maxPendingAge
		outcome := m.check(ctx, tx, expire)
		summary.add(outcome)
		if outcome != metrics.OutcomePending && outcome != metrics.OutcomeError {
			continue
		}
		if err := m.store.TouchMonitored(ctx, tx.TxRef); err != nil {
			zap.L().Warn("Failed to requeue stale transaction",
				zap.String("tx_ref", tx.TxRef),
				zap.Error(err))
		}
	}
	return summary, nil
}

func (m *Monitor) runSweep(ctx context.Context) {
	start := time.Now()
	summary, err := m.Sweep(ctx)
	if err != nil {
		zap.L().Error("Stale transaction sweep failed", zap.Error(err))
		return
	}
	if summary.Checked > 0 {
		zap.L().Info("Stale transaction sweep completed",
			zap.Int("checked", summary.Checked),
			zap.Int("confirmed", summary.Confirmed),
			zap.Int("failed", summary.Failed),
			zap.Int("pending", summary.Pending),
			zap.Duration("duration", time.Since(start)))
	}
}
