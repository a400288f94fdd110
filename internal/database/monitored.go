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
	"database/sql"
	"errors"
	"fmt"
	"time"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"go.uber.org/zap"
)

func scanMonitored(row rowScanner) (*models.MonitoredTransaction, error) {
	var m models.MonitoredTransaction
	if err := row.Scan(&m.TxRef, &m.UserId, &m.Network, &m.PaymentId, &m.Status, &m.ErrorMessage, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()
	return &m, nil
}

// insertMonitored reports whether a new row was created; an existing tx_ref is left untouched.
func (c conn) insertMonitored(ctx context.Context, params store.AddMonitoredParams) (bool, error) {
	if params.TxRef == "" {
		return false, fmt.Errorf("transaction reference cannot be empty")
	}
	createdAt := params.CreatedAt
	if createdAt.IsZero() {
		createdAt = now()
	}
	res, err := c.q.ExecContext(ctx, c.d.q(queryInsertMonitored),
		params.TxRef, params.UserId, params.Network, params.PaymentId, createdAt.UTC(), now())
	if err != nil {
		return false, fmt.Errorf("failed to insert monitored transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return n == 1, nil
}

func (c conn) listMonitored(ctx context.Context, query string, args ...any) ([]models.MonitoredTransaction, error) {
	rows, err := c.q.QueryContext(ctx, c.d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query monitored transactions: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var txs []models.MonitoredTransaction
	for rows.Next() {
		m, err := scanMonitored(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan monitored transaction: %w", err)
		}
		txs = append(txs, *m)
	}
	return txs, rows.Err()
}

func (s *Service) AddMonitoredTransaction(ctx context.Context, params store.AddMonitoredParams) (bool, error) {
	inserted, err := s.conn().insertMonitored(ctx, params)
	if err != nil {
		return false, err
	}
	if !inserted {
		zap.L().Debug("Transaction already monitored", zap.String("tx_ref", params.TxRef))
	}
	return inserted, nil
}

func (s *Service) GetMonitoredTransaction(ctx context.Context, txRef string) (*models.MonitoredTransaction, error) {
	m, err := scanMonitored(s.db.QueryRowContext(ctx, s.dialect.q(queryGetMonitored), txRef))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query monitored transaction: %w", err)
	}
	return m, nil
}

// ListPendingMonitored returns pending rows created at or after since, oldest first.
func (s *Service) ListPendingMonitored(ctx context.Context, network string, since time.Time, limit int) ([]models.MonitoredTransaction, error) {
	return s.conn().listMonitored(ctx, queryListPendingMonitored, network, since.UTC(), limit)
}

// ListStaleMonitored returns pending rows created before the given time,
// least recently checked first.
func (s *Service) ListStaleMonitored(ctx context.Context, network string, before time.Time, limit int) ([]models.MonitoredTransaction, error) {
	return s.conn().listMonitored(ctx, queryListStaleMonitored, network, before.UTC(), limit)
}

// TouchMonitored records that a pending row was just checked, moving it to
// the back of the stale queue. Settled rows are left alone.
func (s *Service) TouchMonitored(ctx context.Context, txRef string) error {
	if _, err := s.db.ExecContext(ctx, s.dialect.q(queryTouchMonitored), now(), txRef); err != nil {
		return fmt.Errorf("failed to touch monitored transaction: %w", err)
	}
	return nil
}

func (t *paymentTx) InsertMonitored(ctx context.Context, params store.AddMonitoredParams) (bool, error) {
	return t.insertMonitored(ctx, params)
}

// MarkMonitored settles a pending row. A row that is no longer pending
// yields store.ErrInvalidTransition.
func (t *paymentTx) MarkMonitored(ctx context.Context, txRef, status, reason string) error {
	switch status {
	case models.MonitoredStatusConfirmed, models.MonitoredStatusFailed:
	default:
		return fmt.Errorf("cannot mark monitored transaction as %q", status)
	}
	res, err := t.q.ExecContext(ctx, t.d.q(queryMarkMonitored), status, reason, now(), txRef)
	if err != nil {
		return fmt.Errorf("failed to update monitored transaction: %w", err)
	}
	return expectOneRow(res, store.ErrInvalidTransition)
}
