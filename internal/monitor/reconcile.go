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
	"errors"
	"fmt"

	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/journal"
	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/metrics"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PassSummary counts the outcomes of one pass.
type PassSummary struct {
	Checked   int
	Confirmed int
	Failed    int
	Pending   int
	Errors    int
}

func (s *PassSummary) add(outcome string) {
	s.Checked++
	switch outcome {
	case metrics.OutcomeConfirmed:
		s.Confirmed++
	case metrics.OutcomeFailed, metrics.OutcomeExpired:
		s.Failed++
	case metrics.OutcomePending:
		s.Pending++
	default:
		s.Errors++
	}
	metrics.MonitorOutcomesTotal.WithLabelValues(outcome).Inc()
}

// RunOnce checks one batch of pending transactions created within the
// lookback window, oldest first. A failure on one transaction never stops
// the rest of the batch.
func (m *Monitor) RunOnce(ctx context.Context) (PassSummary, error) {
	since := m.now().Add(-m.lookbackWindow)
	pending, err := m.store.ListPendingMonitored(ctx, m.network, since, m.batchSize)
	if err != nil {
		return PassSummary{}, fmt.Errorf("failed to list pending transactions: %w", err)
	}
	metrics.MonitorPending.Set(float64(len(pending)))

	var summary PassSummary
	for _, tx := range pending {
		summary.add(m.check(ctx, tx, false))
	}
	return summary, nil
}

// check queries the ledger for one transaction and applies the result. When
// expireMissing is set, a transaction the ledger cannot find is failed.
func (m *Monitor) check(ctx context.Context, tx models.MonitoredTransaction, expireMissing bool) string {
	if ctx.Err() != nil {
		return metrics.OutcomePending
	}

	status, err := m.ledger.GetTransactionStatus(ctx, tx.TxRef, tx.Network)
	switch {
	case errors.Is(err, ledger.ErrTransactionNotFound):
		if expireMissing {
			return m.fail(ctx, tx, "expired: transaction not found on ledger", metrics.OutcomeExpired)
		}
		zap.L().Debug("Transaction not yet visible on ledger", zap.String("tx_ref", tx.TxRef))
		m.cache.Set(ctx, tx.TxRef, models.LedgerStatusPending)
		return metrics.OutcomePending
	case err != nil && (ledger.IsTransient(err) || ctx.Err() != nil):
		zap.L().Warn("Transient ledger error, will retry",
			zap.String("tx_ref", tx.TxRef),
			zap.Error(err))
		return metrics.OutcomePending
	case err != nil:
		zap.L().Error("Ledger status query failed",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", tx.PaymentId),
			zap.Error(err))
		return m.fail(ctx, tx, err.Error(), metrics.OutcomeFailed)
	}

	switch status.Status {
	case models.LedgerStatusConfirmed:
		return m.confirm(ctx, tx, status)
	case models.LedgerStatusFailed:
		reason := status.Reason
		if reason == "" {
			reason = "transaction failed on ledger"
		}
		return m.fail(ctx, tx, reason, metrics.OutcomeFailed)
	default:
		m.cache.Set(ctx, tx.TxRef, models.LedgerStatusPending)
		return metrics.OutcomePending
	}
}

type walletBalance struct {
	userId   string
	currency string
	balance  decimal.Decimal
}

// confirm overwrites the affected wallet balances with the ledger's and
// completes the payment and its linked records in one store transaction.
func (m *Monitor) confirm(ctx context.Context, tx models.MonitoredTransaction, status *models.LedgerTxStatus) string {
	record, linked, err := m.loadPayment(ctx, tx)
	if err != nil {
		zap.L().Error("Failed to load payment for confirmation",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", tx.PaymentId),
			zap.Error(err))
		return metrics.OutcomeError
	}

	balances, err := m.ledgerBalances(ctx, tx, record, linked)
	if err != nil {
		zap.L().Warn("Failed to read ledger balances, will retry",
			zap.String("tx_ref", tx.TxRef),
			zap.Error(err))
		return metrics.OutcomeError
	}

	completedAt := m.now()
	if status.ConfirmedAt != nil {
		completedAt = status.ConfirmedAt.UTC()
	}

	var completed []*models.PaymentRecord
	err = m.store.WithTx(ctx, func(ptx store.PaymentTx) error {
		completed = completed[:0]
		if err := ptx.MarkMonitored(ctx, tx.TxRef, models.MonitoredStatusConfirmed, ""); err != nil {
			return err
		}
		for _, b := range balances {
			if err := ptx.SetBalance(ctx, b.userId, b.currency, b.balance); err != nil {
				return fmt.Errorf("failed to set %s/%s balance: %w", b.userId, b.currency, err)
			}
		}

		var entries []models.JournalEntry
		for _, r := range append(optional(record), linked...) {
			err := ptx.CompletePayment(ctx, r.Id, tx.TxRef, completedAt)
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			done := r
			done.Status = models.PaymentStatusCompleted
			done.ExternalTxRef = tx.TxRef
			done.CompletedAt = &completedAt
			completed = append(completed, &done)
			entries = append(entries, settlementEntries(&done)...)
		}
		if len(entries) > 0 {
			return ptx.AddJournalEntries(ctx, entries)
		}
		return nil
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		zap.L().Debug("Transaction already settled", zap.String("tx_ref", tx.TxRef))
		return metrics.OutcomeConfirmed
	}
	if err != nil {
		zap.L().Error("Failed to record confirmation",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", tx.PaymentId),
			zap.Error(err))
		return metrics.OutcomeError
	}

	m.cache.Set(ctx, tx.TxRef, models.LedgerStatusConfirmed)
	for _, b := range balances {
		zap.L().Info("Wallet balance synchronized from ledger",
			zap.String("user_id", b.userId),
			zap.String("currency", b.currency),
			zap.String("balance", b.balance.String()))
	}
	for _, r := range completed {
		zap.L().Info("On-chain payment confirmed",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", r.Id),
			zap.String("user_id", r.UserId),
			zap.String("kind", r.Kind),
			zap.String("amount", r.Amount.String()),
			zap.String("currency", r.Currency))
		m.publish(ctx, events.FromRecord(events.TypePaymentCompleted, r))
		journal.Record(ctx, m.journal, r)
	}
	return metrics.OutcomeConfirmed
}

// fail marks the transaction failed and propagates the reason to the
// payment and its linked records.
func (m *Monitor) fail(ctx context.Context, tx models.MonitoredTransaction, reason, outcome string) string {
	var failed []*models.PaymentRecord
	err := m.store.WithTx(ctx, func(ptx store.PaymentTx) error {
		failed = failed[:0]
		if err := ptx.MarkMonitored(ctx, tx.TxRef, models.MonitoredStatusFailed, reason); err != nil {
			return err
		}
		if tx.PaymentId == "" {
			return nil
		}

		record, err := ptx.GetPayment(ctx, tx.PaymentId)
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		linked, err := ptx.GetLinkedPayments(ctx, record.Id)
		if err != nil {
			return err
		}

		for _, r := range append([]models.PaymentRecord{*record}, linked...) {
			err := ptx.FailPayment(ctx, r.Id, reason)
			if errors.Is(err, store.ErrInvalidTransition) {
				continue
			}
			if err != nil {
				return err
			}
			r.Status = models.PaymentStatusFailed
			r.ErrorMessage = reason
			failed = append(failed, &r)
		}
		return nil
	})
	if errors.Is(err, store.ErrInvalidTransition) {
		zap.L().Debug("Transaction already settled", zap.String("tx_ref", tx.TxRef))
		return outcome
	}
	if err != nil {
		zap.L().Error("Failed to record ledger failure",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", tx.PaymentId),
			zap.Error(err))
		return metrics.OutcomeError
	}

	m.cache.Set(ctx, tx.TxRef, models.LedgerStatusFailed)
	for _, r := range failed {
		zap.L().Warn("On-chain payment failed",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", r.Id),
			zap.String("user_id", r.UserId),
			zap.String("reason", reason))
		m.publish(ctx, events.FromRecord(events.TypePaymentFailed, r))
	}
	return outcome
}

func (m *Monitor) loadPayment(ctx context.Context, tx models.MonitoredTransaction) (*models.PaymentRecord, []models.PaymentRecord, error) {
	if tx.PaymentId == "" {
		return nil, nil, nil
	}

	var (
		record *models.PaymentRecord
		linked []models.PaymentRecord
	)
	err := m.store.WithTx(ctx, func(ptx store.PaymentTx) error {
		var err error
		record, err = ptx.GetPayment(ctx, tx.PaymentId)
		if err != nil {
			return err
		}
		linked, err = ptx.GetLinkedPayments(ctx, record.Id)
		return err
	})
	if errors.Is(err, store.ErrNotFound) {
		zap.L().Warn("Monitored transaction has no payment record",
			zap.String("tx_ref", tx.TxRef),
			zap.String("payment_id", tx.PaymentId))
		return nil, nil, nil
	}
	return record, linked, err
}

// ledgerBalances reads the current ledger balance of every local wallet the
// transaction touched: the sender's payment and fee wallets and each linked
// recipient's wallet. Wallets without a ledger account are skipped.
func (m *Monitor) ledgerBalances(ctx context.Context, tx models.MonitoredTransaction, record *models.PaymentRecord, linked []models.PaymentRecord) ([]walletBalance, error) {
	type key struct{ userId, currency string }

	var keys []key
	if record != nil {
		keys = append(keys, key{record.UserId, record.Currency})
		if record.FeeCurrency != "" && record.FeeCurrency != record.Currency {
			keys = append(keys, key{record.UserId, record.FeeCurrency})
		}
		for _, r := range linked {
			keys = append(keys, key{r.UserId, r.Currency})
		}
	}

	balances := make([]walletBalance, 0, len(keys))
	for _, k := range keys {
		wallet, err := m.store.GetWallet(ctx, k.userId, k.currency)
		if errors.Is(err, store.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to get wallet %s/%s: %w", k.userId, k.currency, err)
		}
		if wallet.LedgerAccount == "" {
			continue
		}

		balance, err := m.ledger.GetBalance(ctx, wallet.LedgerAccount, tx.Network)
		if err != nil {
			return nil, fmt.Errorf("failed to get ledger balance for %s/%s: %w", k.userId, k.currency, err)
		}
		balances = append(balances, walletBalance{userId: k.userId, currency: k.currency, balance: balance})
	}
	return balances, nil
}

// settlementEntries books the on-chain leg between a user and the outside world.
func settlementEntries(r *models.PaymentRecord) []models.JournalEntry {
	external := models.JournalEntry{
		PaymentId:   r.Id,
		AccountType: models.AccountTypeExternal,
		AccountId:   r.ToAddress,
		Currency:    r.Currency,
	}
	user := models.JournalEntry{
		PaymentId:   r.Id,
		AccountType: models.AccountTypeUser,
		AccountId:   r.UserId,
		Currency:    r.Currency,
	}

	if r.Kind == models.PaymentKindDeposit {
		external.DebitAmount, external.CreditAmount = r.Amount, decimal.Zero
		user.DebitAmount, user.CreditAmount = decimal.Zero, r.Amount
		return []models.JournalEntry{external, user}
	}
	user.DebitAmount, user.CreditAmount = r.Amount, decimal.Zero
	external.DebitAmount, external.CreditAmount = decimal.Zero, r.Amount
	return []models.JournalEntry{user, external}
}

// publish emits the event and hands webhook delivery to a background worker.
// The pass only waits when every delivery slot is busy. Delivery failures
// are only logged.
func (m *Monitor) publish(ctx context.Context, event events.Event) {
	events.Emit(ctx, m.events, event)
	if m.webhooks == nil {
		return
	}
	if err := m.deliverySlots.Acquire(ctx, 1); err != nil {
		zap.L().Warn("Webhook notification dropped",
			zap.String("event_type", event.Type),
			zap.String("payment_id", event.PaymentId),
			zap.Error(err))
		return
	}

	m.deliveries.Add(1)
	deliveryCtx := context.WithoutCancel(ctx)
	go func() {
		defer m.deliveries.Done()
		defer m.deliverySlots.Release(1)
		if err := m.webhooks.Dispatch(deliveryCtx, event); err != nil {
			zap.L().Warn("Webhook notification failed",
				zap.String("event_type", event.Type),
				zap.String("payment_id", event.PaymentId),
				zap.Error(err))
		}
	}()
}

// WaitDeliveries blocks until every queued webhook delivery has returned.
// Call it before closing the store the notifier reads from.
func (m *Monitor) WaitDeliveries() {
	m.deliveries.Wait()
}

func optional(r *models.PaymentRecord) []models.PaymentRecord {
	if r == nil {
		return nil
	}
	return []models.PaymentRecord{*r}
}
