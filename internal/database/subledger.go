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

package database

import (
	"context"
	"fmt"

	"crypto-payments-go/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// AddJournalEntries writes a set of postings for one payment. Debits and
// credits must balance per currency.
func (t *paymentTx) AddJournalEntries(ctx context.Context, entries []models.JournalEntry) error {
	net := make(map[string]decimal.Decimal)
	for _, e := range entries {
		if e.Currency == "" {
			return fmt.Errorf("journal entry for %s %s has no currency", e.AccountType, e.AccountId)
		}
		net[e.Currency] = net[e.Currency].Add(e.DebitAmount).Sub(e.CreditAmount)
	}
	for currency, diff := range net {
		if !diff.IsZero() {
			return fmt.Errorf("unbalanced %s journal: debits exceed credits by %s", currency, diff.String())
		}
	}

	createdAt := now()
	for _, e := range entries {
		id := e.Id
		if id == "" {
			id = uuid.New().String()
		}
		_, err := t.q.ExecContext(ctx, t.d.q(queryInsertJournalEntry),
			id, e.PaymentId, e.AccountType, e.AccountId, e.Currency, e.DebitAmount.String(), e.CreditAmount.String(), createdAt)
		if err != nil {
			return fmt.Errorf("failed to create journal entry: %w", err)
		}
	}
	return nil
}

func (s *Service) GetJournalEntries(ctx context.Context, paymentId string) ([]models.JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.q(queryGetJournalEntries), paymentId)
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var entries []models.JournalEntry
	for rows.Next() {
		var (
			e             models.JournalEntry
			debit, credit string
		)
		if err := rows.Scan(&e.Id, &e.PaymentId, &e.AccountType, &e.AccountId, &e.Currency, &debit, &credit, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		if err := parseDecimals(map[*decimal.Decimal]string{&e.DebitAmount: debit, &e.CreditAmount: credit}); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
