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

// Package ledgertest provides an in-memory ledger.Client for tests.
package ledgertest

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
)

var _ ledger.Client = (*Fake)(nil)

type fakeTx struct {
	transfer  models.LedgerTransfer
	network   string
	status    string
	reason    string
	createdAt time.Time
	settledAt *time.Time
}

// Fake is a concurrency-safe in-memory ledger. Sends stay pending until
// Confirm or Fail is called.
type Fake struct {
	mu        sync.Mutex
	balances  map[string]decimal.Decimal
	addresses map[string]string
	txs       map[string]*fakeTx
	seq       int

	// SendErr, when set, is returned by the next Send calls.
	SendErr error
	// StatusErr maps a tx reference to the error GetTransactionStatus returns for it.
	StatusErr map[string]error
	// BalanceErr, when set, is returned by GetBalance.
	BalanceErr error

	sendCalls   int
	statusCalls int
}

func NewFake() *Fake {
	return &Fake{
		balances:  make(map[string]decimal.Decimal),
		addresses: make(map[string]string),
		txs:       make(map[string]*fakeTx),
		StatusErr: make(map[string]error),
	}
}

func (f *Fake) SetBalance(account string, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[account] = amount
}

// RegisterAddress makes confirmed sends to address credit account.
func (f *Fake) RegisterAddress(address, account string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addresses[strings.ToLower(address)] = account
}

func (f *Fake) SetStatusErr(txRef string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.StatusErr, txRef)
		return
	}
	f.StatusErr[txRef] = err
}

func (f *Fake) GetBalance(_ context.Context, account, _ string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.BalanceErr != nil {
		return decimal.Zero, f.BalanceErr
	}
	return f.balances[account], nil
}

func (f *Fake) Send(ctx context.Context, transfer models.LedgerTransfer, network string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sendCalls++

	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("%w: %w", ledger.ErrAmbiguous, err)
	}
	if f.SendErr != nil {
		return "", f.SendErr
	}

	f.seq++
	txRef := fmt.Sprintf("0xfake%06d", f.seq)
	f.txs[txRef] = &fakeTx{
		transfer:  transfer,
		network:   network,
		status:    models.LedgerStatusPending,
		createdAt: time.Now().UTC(),
	}
	return txRef, nil
}

func (f *Fake) GetTransactionStatus(_ context.Context, txRef, _ string) (*models.LedgerTxStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusCalls++

	if err, ok := f.StatusErr[txRef]; ok {
		return nil, err
	}
	tx, ok := f.txs[txRef]
	if !ok {
		return nil, ledger.ErrTransactionNotFound
	}
	return &models.LedgerTxStatus{TxRef: txRef, Status: tx.status, ConfirmedAt: tx.settledAt, Reason: tx.reason}, nil
}

func (f *Fake) ListRecentTransactions(_ context.Context, account, network string, limit int) ([]models.LedgerTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	var result []models.LedgerTransaction
	for ref, tx := range f.txs {
		if tx.transfer.FromAccount != account {
			continue
		}
		lt := models.LedgerTransaction{
			TxRef:          ref,
			Type:           "WITHDRAWAL",
			Status:         tx.status,
			Currency:       tx.transfer.Currency,
			Amount:         tx.transfer.Amount,
			Network:        network,
			IdempotencyKey: tx.transfer.IdempotencyKey,
			CreatedAt:      tx.createdAt,
		}
		if tx.settledAt != nil {
			lt.CompletedAt = *tx.settledAt
		}
		result = append(result, lt)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].TxRef > result[j].TxRef })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

// Confirm settles a pending send: the source account is debited and a
// registered destination credited.
func (f *Fake) Confirm(txRef string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, ok := f.txs[txRef]
	if !ok {
		return fmt.Errorf("unknown tx %s", txRef)
	}
	if tx.status != models.LedgerStatusPending {
		return fmt.Errorf("tx %s already %s", txRef, tx.status)
	}

	now := time.Now().UTC()
	tx.status = models.LedgerStatusConfirmed
	tx.settledAt = &now
	f.balances[tx.transfer.FromAccount] = f.balances[tx.transfer.FromAccount].Sub(tx.transfer.Amount)
	if dest, ok := f.addresses[strings.ToLower(tx.transfer.ToAddress)]; ok {
		f.balances[dest] = f.balances[dest].Add(tx.transfer.Amount)
	}
	return nil
}

func (f *Fake) Fail(txRef, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	tx, ok := f.txs[txRef]
	if !ok {
		return fmt.Errorf("unknown tx %s", txRef)
	}
	now := time.Now().UTC()
	tx.status = models.LedgerStatusFailed
	tx.reason = reason
	tx.settledAt = &now
	return nil
}

// Transfer returns what was submitted under txRef.
func (f *Fake) Transfer(txRef string) (models.LedgerTransfer, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[txRef]
	if !ok {
		return models.LedgerTransfer{}, false
	}
	return tx.transfer, true
}

func (f *Fake) SendCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.sendCalls
}

func (f *Fake) StatusCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.statusCalls
}
