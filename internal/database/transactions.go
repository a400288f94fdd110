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
	"strings"
	"time"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func parseDecimals(pairs map[*decimal.Decimal]string) error {
	for dst, raw := range pairs {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			return fmt.Errorf("failed to parse amount %q: %w", raw, err)
		}
		*dst = d
	}
	return nil
}

func scanPayment(row rowScanner) (*models.PaymentRecord, error) {
	var (
		p                                    models.PaymentRecord
		amount, gasFee, serviceFee, totalFee string
		completedAt                          sql.NullTime
	)
	err := row.Scan(
		&p.Id, &p.UserId, &p.Kind, &amount, &p.Currency, &p.ToAddress, &p.ToUserId, &p.Description, &p.Status,
		&gasFee, &serviceFee, &totalFee, &p.FeeCurrency, &p.ExternalTxRef, &p.ErrorMessage, &p.LinkedPaymentId,
		&p.CreatedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := parseDecimals(map[*decimal.Decimal]string{
		&p.Amount:     amount,
		&p.GasFee:     gasFee,
		&p.ServiceFee: serviceFee,
		&p.TotalFee:   totalFee,
	}); err != nil {
		return nil, err
	}

	p.CreatedAt = p.CreatedAt.UTC()
	if completedAt.Valid {
		t := completedAt.Time.UTC()
		p.CompletedAt = &t
	}
	return &p, nil
}

func (c conn) getPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error) {
	p, err := scanPayment(c.q.QueryRowContext(ctx, c.d.q(queryGetPayment), paymentId))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query payment: %w", err)
	}
	return p, nil
}

func (c conn) listPayments(ctx context.Context, query string, args ...any) ([]models.PaymentRecord, error) {
	rows, err := c.q.QueryContext(ctx, c.d.q(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var payments []models.PaymentRecord
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, *p)
	}
	return payments, rows.Err()
}

func (s *Service) GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error) {
	return s.conn().getPayment(ctx, paymentId)
}

// GetPaymentHistory returns a user's payments newest first.
func (s *Service) GetPaymentHistory(ctx context.Context, userId string, limit, offset int) ([]models.PaymentRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.conn().listPayments(ctx, queryGetPaymentHistory, userId, limit, offset)
}

func (t *paymentTx) GetPayment(ctx context.Context, paymentId string) (*models.PaymentRecord, error) {
	return t.getPayment(ctx, paymentId)
}

func (t *paymentTx) GetLinkedPayments(ctx context.Context, paymentId string) ([]models.PaymentRecord, error) {
	return t.listPayments(ctx, queryGetLinkedPayments, paymentId)
}

func (t *paymentTx) InsertPayment(ctx context.Context, p *models.PaymentRecord) error {
	if _, err := t.getPayment(ctx, p.Id); err == nil {
		return store.ErrDuplicatePayment
	} else if !errors.Is(err, store.ErrNotFound) {
		return err
	}

	var completedAt any
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.UTC()
	}

	_, err := t.q.ExecContext(ctx, t.d.q(queryInsertPayment),
		p.Id, p.UserId, p.Kind, p.Amount.String(), p.Currency, p.ToAddress, p.ToUserId, p.Description, p.Status,
		p.GasFee.String(), p.ServiceFee.String(), p.TotalFee.String(), p.FeeCurrency, p.ExternalTxRef, p.ErrorMessage, p.LinkedPaymentId,
		p.CreatedAt.UTC(), completedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

func (t *paymentTx) SetPaymentTxRef(ctx context.Context, paymentId, txRef string) error {
	res, err := t.q.ExecContext(ctx, t.d.q(querySetPaymentTxRef), txRef, paymentId)
	if err != nil {
		return fmt.Errorf("failed to set transaction reference: %w", err)
	}
	return expectOneRow(res, store.ErrInvalidTransition)
}

// CompletePayment moves a pending payment to completed. Any other starting
// status yields store.ErrInvalidTransition.
func (t *paymentTx) CompletePayment(ctx context.Context, paymentId, txRef string, completedAt time.Time) error {
	res, err := t.q.ExecContext(ctx, t.d.q(queryCompletePayment), completedAt.UTC(), txRef, paymentId)
	if err != nil {
		return fmt.Errorf("failed to complete payment: %w", err)
	}
	return expectOneRow(res, store.ErrInvalidTransition)
}

func (t *paymentTx) FailPayment(ctx context.Context, paymentId, reason string) error {
	res, err := t.q.ExecContext(ctx, t.d.q(queryFailPayment), now(), reason, paymentId)
	if err != nil {
		return fmt.Errorf("failed to fail payment: %w", err)
	}
	return expectOneRow(res, store.ErrInvalidTransition)
}

// FindRecentDuplicate returns a pending payment with the same user, amount,
// currency and destination created at or after q.Since.
func (t *paymentTx) FindRecentDuplicate(ctx context.Context, q store.DuplicateQuery) (*models.PaymentRecord, error) {
	candidates, err := t.listPayments(ctx, queryRecentPendingPayments, q.UserId, q.Currency, q.Since.UTC())
	if err != nil {
		return nil, err
	}
	for i := range candidates {
		p := &candidates[i]
		if !p.Amount.Equal(q.Amount) {
			continue
		}
		if p.ToUserId == q.Destination || (p.ToAddress != "" && strings.EqualFold(p.ToAddress, q.Destination)) {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

// SumOutgoing totals pending and completed outgoing amounts since the given time.
func (t *paymentTx) SumOutgoing(ctx context.Context, userId, currency string, since time.Time) (decimal.Decimal, error) {
	rows, err := t.q.QueryContext(ctx, t.d.q(queryOutgoingAmounts), userId, currency, since.UTC())
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query outgoing amounts: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	total := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan amount: %w", err)
		}
		amount, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount %q: %w", raw, err)
		}
		total = total.Add(amount)
	}
	return total, rows.Err()
}

// SumReserved totals what the user's pending on-chain payments will still
// draw from the given currency: amount and service fee where the payment is
// denominated in it, gas where the gas is paid in it.
func (t *paymentTx) SumReserved(ctx context.Context, userId, currency string) (decimal.Decimal, error) {
	rows, err := t.q.QueryContext(ctx, t.d.q(queryPendingOnchainReservations), userId, currency, currency)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	total := decimal.Zero
	for rows.Next() {
		var (
			payCurrency, feeCurrency      string
			amount, serviceFee, gasFee    decimal.Decimal
			rawAmount, rawService, rawGas string
		)
		if err := rows.Scan(&payCurrency, &rawAmount, &rawService, &feeCurrency, &rawGas); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan reservation: %w", err)
		}
		if err := parseDecimals(map[*decimal.Decimal]string{
			&amount:     rawAmount,
			&serviceFee: rawService,
			&gasFee:     rawGas,
		}); err != nil {
			return decimal.Zero, err
		}

		if payCurrency == currency {
			total = total.Add(amount).Add(serviceFee)
		}
		if feeCurrency == currency {
			total = total.Add(gasFee)
		}
	}
	return total, rows.Err()
}
