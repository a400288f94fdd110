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
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"crypto-payments-go/internal/models"

	"github.com/coinbase-samples/prime-sdk-go/balances"
	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/model"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/transactions"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

const defaultPortfolioName = "Default Portfolio"

// Prime transaction statuses
const (
	primeStatusDone      = "TRANSACTION_DONE"
	primeStatusFailed    = "TRANSACTION_FAILED"
	primeStatusRejected  = "TRANSACTION_REJECTED"
	primeStatusCancelled = "TRANSACTION_CANCELLED"
	primeStatusExpired   = "TRANSACTION_EXPIRED"
)

// primeStatusWindow bounds how far back a status lookup scans wallet history.
const primeStatusWindow = 7 * 24 * time.Hour

var _ Client = (*PrimeClient)(nil)

// PrimeClient implements Client on Coinbase Prime. Ledger accounts are Prime
// wallet ids; transaction references have the form "<walletId>:<idempotencyKey>".
type PrimeClient struct {
	portfolioId     string
	transactionsSvc transactions.TransactionsService
	balancesSvc     balances.BalancesService
}

func NewPrimeClient(ctx context.Context, creds *credentials.Credentials, portfolioId string) (*PrimeClient, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	if portfolioId == "" {
		portfolioId, err = findDefaultPortfolio(ctx, portfolios.NewPortfoliosService(restClient))
		if err != nil {
			return nil, err
		}
	}
	zap.L().Info("Using Prime portfolio", zap.String("portfolio_id", portfolioId))

	return &PrimeClient{
		portfolioId:     portfolioId,
		transactionsSvc: transactions.NewTransactionsService(restClient),
		balancesSvc:     balances.NewBalancesService(restClient),
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

func findDefaultPortfolio(ctx context.Context, svc portfolios.PortfoliosService) (string, error) {
	response, err := svc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return "", fmt.Errorf("unable to list portfolios: %w", err)
	}
	for _, p := range response.Portfolios {
		if p.Name == defaultPortfolioName {
			return p.Id, nil
		}
	}
	return "", fmt.Errorf("default portfolio not found")
}

func (c *PrimeClient) GetBalance(ctx context.Context, account, network string) (decimal.Decimal, error) {
	response, err := c.balancesSvc.GetWalletBalance(ctx, &balances.GetWalletBalanceRequest{
		PortfolioId: c.portfolioId,
		Id:          account,
	})
	if err != nil {
		return decimal.Zero, fmt.Errorf("unable to get wallet balance: %w", classifyPrimeError(err))
	}
	if response.Balance == nil {
		return decimal.Zero, fmt.Errorf("empty balance for wallet %s", account)
	}

	amount, err := decimal.NewFromString(response.Balance.Amount)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid balance %q for wallet %s: %w", response.Balance.Amount, account, err)
	}
	return amount, nil
}

// Send submits a blockchain withdrawal. network is "<id>-<type>", e.g. ethereum-mainnet.
func (c *PrimeClient) Send(ctx context.Context, transfer models.LedgerTransfer, network string) (string, error) {
	zap.L().Info("Creating withdrawal via Prime API",
		zap.String("wallet_id", transfer.FromAccount),
		zap.String("currency", transfer.Currency),
		zap.String("amount", transfer.Amount.String()),
		zap.String("destination", transfer.ToAddress))

	blockchainAddr := &model.BlockchainAddress{Address: transfer.ToAddress}
	if networkId, networkType, ok := strings.Cut(network, "-"); ok {
		blockchainAddr.Network = &model.NetworkDetails{Id: networkId, Type: networkType}
	}

	response, err := c.transactionsSvc.CreateWalletWithdrawal(ctx, &transactions.CreateWalletWithdrawalRequest{
		PortfolioId:       c.portfolioId,
		SourceWalletId:    transfer.FromAccount,
		Amount:            transfer.Amount.String(),
		IdempotencyKey:    transfer.IdempotencyKey,
		Symbol:            transfer.Currency,
		DestinationType:   "DESTINATION_BLOCKCHAIN",
		BlockchainAddress: blockchainAddr,
	})
	if err != nil {
		err = classifyPrimeError(err)
		if IsAmbiguous(err) || IsTransient(err) {
			err = fmt.Errorf("%w: %w", ErrAmbiguous, err)
		}
		zap.L().Error("Failed to create withdrawal",
			zap.String("wallet_id", transfer.FromAccount),
			zap.String("idempotency_key", transfer.IdempotencyKey),
			zap.Error(err))
		return "", fmt.Errorf("unable to create withdrawal: %w", err)
	}

	txRef := transfer.FromAccount + ":" + transfer.IdempotencyKey
	zap.L().Info("Withdrawal created successfully",
		zap.String("activity_id", response.ActivityId),
		zap.String("tx_ref", txRef))
	return txRef, nil
}

func (c *PrimeClient) GetTransactionStatus(ctx context.Context, txRef, network string) (*models.LedgerTxStatus, error) {
	walletId, idempotencyKey, ok := strings.Cut(txRef, ":")
	if !ok || walletId == "" || idempotencyKey == "" {
		return nil, fmt.Errorf("malformed prime transaction reference %q", txRef)
	}

	response, err := c.listWalletTransactions(ctx, walletId, time.Now().Add(-primeStatusWindow))
	if err != nil {
		return nil, err
	}

	for _, tx := range response.Transactions {
		if tx.IdempotencyKey != idempotencyKey {
			continue
		}
		status := &models.LedgerTxStatus{TxRef: txRef, Status: mapPrimeStatus(tx.Status)}
		switch status.Status {
		case models.LedgerStatusConfirmed:
			confirmedAt := time.Now().UTC()
			status.ConfirmedAt = &confirmedAt
		case models.LedgerStatusFailed:
			status.Reason = strings.ToLower(strings.TrimPrefix(tx.Status, "TRANSACTION_"))
		}
		return status, nil
	}
	return nil, ErrTransactionNotFound
}

func (c *PrimeClient) ListRecentTransactions(ctx context.Context, account, network string, limit int) ([]models.LedgerTransaction, error) {
	response, err := c.listWalletTransactions(ctx, account, time.Now().Add(-primeStatusWindow))
	if err != nil {
		return nil, err
	}

	result := make([]models.LedgerTransaction, 0, len(response.Transactions))
	for _, tx := range response.Transactions {
		amount, err := decimal.NewFromString(tx.Amount)
		if err != nil {
			zap.L().Warn("Skipping transaction with invalid amount", zap.String("id", tx.Id), zap.String("amount", tx.Amount))
			continue
		}
		result = append(result, models.LedgerTransaction{
			TxRef:          account + ":" + tx.IdempotencyKey,
			Type:           tx.Type,
			Status:         mapPrimeStatus(tx.Status),
			Currency:       tx.Symbol,
			Amount:         amount.Abs(),
			Network:        network,
			IdempotencyKey: tx.IdempotencyKey,
			CreatedAt:      tx.Created,
		})
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func (c *PrimeClient) listWalletTransactions(ctx context.Context, walletId string, start time.Time) (*transactions.ListWalletTransactionsResponse, error) {
	response, err := c.transactionsSvc.ListWalletTransactions(ctx, &transactions.ListWalletTransactionsRequest{
		PortfolioId: c.portfolioId,
		WalletId:    walletId,
		Start:       start,
		Types:       []string{"DEPOSIT", "WITHDRAWAL"},
		Pagination: &model.PaginationParams{
			Limit: 500,
		},
	})
	if err != nil {
		zap.L().Error("Failed to list wallet transactions", zap.String("wallet_id", walletId), zap.Error(err))
		return nil, fmt.Errorf("unable to list wallet transactions: %w", classifyPrimeError(err))
	}

	zap.L().Debug("Prime API response received",
		zap.String("wallet_id", walletId),
		zap.Int("count", len(response.Transactions)))
	return response, nil
}

func mapPrimeStatus(status string) string {
	switch status {
	case primeStatusDone:
		return models.LedgerStatusConfirmed
	case primeStatusFailed, primeStatusRejected, primeStatusCancelled, primeStatusExpired:
		return models.LedgerStatusFailed
	default:
		return models.LedgerStatusPending
	}
}

// classifyPrimeError tags HTTP-level throttling and outages so callers can
// treat them as transient.
func classifyPrimeError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case strings.Contains(msg, "502"), strings.Contains(msg, "503"), strings.Contains(msg, "504"):
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return err
	}
}
