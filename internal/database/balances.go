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

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type rowScanner interface {
	Scan(dest ...any) error
}

func scanWallet(row rowScanner) (*models.Wallet, error) {
	var (
		w       models.Wallet
		balance string
	)
	if err := row.Scan(&w.Id, &w.UserId, &w.Currency, &w.Network, &w.Address, &w.LedgerAccount, &balance, &w.Version, &w.UpdatedAt); err != nil {
		return nil, err
	}
	b, err := decimal.NewFromString(balance)
	if err != nil {
		return nil, fmt.Errorf("failed to parse balance %q: %w", balance, err)
	}
	w.Balance = b
	return &w, nil
}

func (c conn) getWallet(ctx context.Context, query string, args ...any) (*models.Wallet, error) {
	w, err := scanWallet(c.q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query wallet: %w", err)
	}
	return w, nil
}

func (c conn) insertWallet(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, error) {
	if params.UserId == "" || params.Currency == "" {
		return nil, fmt.Errorf("wallet requires user id and currency")
	}
	_, err := c.q.ExecContext(ctx, c.d.q(queryInsertWallet),
		uuid.New().String(),
		params.UserId,
		params.Currency,
		params.Network,
		params.Address,
		params.LedgerAccount,
		params.OpeningBalance.String(),
		now(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert wallet: %w", err)
	}
	return c.getWallet(ctx, c.d.q(queryGetWallet), params.UserId, params.Currency)
}

// CreateWallet registers a wallet. An existing (user, currency) wallet is returned unchanged.
func (s *Service) CreateWallet(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, error) {
	w, err := s.conn().insertWallet(ctx, params)
	if err != nil {
		return nil, err
	}
	zap.L().Info("Wallet ready",
		zap.String("user_id", w.UserId),
		zap.String("currency", w.Currency),
		zap.String("balance", w.Balance.String()))
	return w, nil
}

func (s *Service) GetWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	c := s.conn()
	return c.getWallet(ctx, c.d.q(queryGetWallet), userId, currency)
}

func (s *Service) GetUserWallets(ctx context.Context, userId string) ([]models.Wallet, error) {
	rows, err := s.db.QueryContext(ctx, s.dialect.q(queryGetUserWallets), userId)
	if err != nil {
		return nil, fmt.Errorf("failed to query wallets: %w", err)
	}
	defer func() {
		if err := rows.Close(); err != nil {
			zap.L().Error("Failed to close rows", zap.Error(err))
		}
	}()

	var wallets []models.Wallet
	for rows.Next() {
		w, err := scanWallet(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan wallet: %w", err)
		}
		wallets = append(wallets, *w)
	}
	return wallets, rows.Err()
}

func (t *paymentTx) LockWallet(ctx context.Context, userId, currency string) (*models.Wallet, error) {
	return t.getWallet(ctx, t.d.forUpdate(queryGetWallet), userId, currency)
}

func (t *paymentTx) EnsureWallet(ctx context.Context, params store.CreateWalletParams) (*models.Wallet, error) {
	if _, err := t.insertWallet(ctx, params); err != nil {
		return nil, err
	}
	return t.LockWallet(ctx, params.UserId, params.Currency)
}

// AdjustBalance applies delta using optimistic locking on the wallet version
// and returns the new balance. The wallet is updated in place.
func (t *paymentTx) AdjustBalance(ctx context.Context, wallet *models.Wallet, delta decimal.Decimal) (decimal.Decimal, error) {
	newBalance := wallet.Balance.Add(delta)
	if newBalance.IsNegative() {
		return decimal.Zero, fmt.Errorf("balance for %s %s would go negative: %s", wallet.UserId, wallet.Currency, newBalance.String())
	}

	res, err := t.q.ExecContext(ctx, t.d.q(queryUpdateWalletBalance), newBalance.String(), now(), wallet.Id, wallet.Version)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to update balance: %w", err)
	}
	if err := expectOneRow(res, store.ErrConcurrentModification); err != nil {
		return decimal.Zero, err
	}

	wallet.Balance = newBalance
	wallet.Version++
	return newBalance, nil
}

// SetBalance overwrites a wallet balance with the authoritative ledger figure.
func (t *paymentTx) SetBalance(ctx context.Context, userId, currency string, balance decimal.Decimal) error {
	res, err := t.q.ExecContext(ctx, t.d.q(querySetWalletBalance), balance.String(), now(), userId, currency)
	if err != nil {
		return fmt.Errorf("failed to set balance: %w", err)
	}
	return expectOneRow(res, store.ErrNotFound)
}
