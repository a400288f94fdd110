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

package ledger

import (
	"context"
	"errors"
	"net"

	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
)

var (
	// ErrTransactionNotFound means the ledger has no record of the reference yet.
	ErrTransactionNotFound = errors.New("transaction not found")
	// ErrAmbiguous means a submission may or may not have reached the ledger.
	ErrAmbiguous = errors.New("ambiguous submission")
	// ErrRateLimited and ErrUnavailable are transient and safe to retry later.
	ErrRateLimited = errors.New("rate limited")
	ErrUnavailable = errors.New("ledger unavailable")
)

// Client is the capability the payment core needs from an external ledger.
type Client interface {
	GetBalance(ctx context.Context, account, network string) (decimal.Decimal, error)
	Send(ctx context.Context, transfer models.LedgerTransfer, network string) (string, error)
	GetTransactionStatus(ctx context.Context, txRef, network string) (*models.LedgerTxStatus, error)
	ListRecentTransactions(ctx context.Context, account, network string, limit int) ([]models.LedgerTransaction, error)
}

// IsTransient reports whether err is a temporary condition (timeout,
// network failure, rate limiting) after which the call may succeed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsAmbiguous reports whether a failed Send may still have been accepted.
func IsAmbiguous(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrAmbiguous) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
