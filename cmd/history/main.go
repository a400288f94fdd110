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

package main

import (
	"context"
	"flag"
	"fmt"

	"crypto-payments-go/internal/common"
	"crypto-payments-go/internal/config"
	"crypto-payments-go/internal/database"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/payment"

	"go.uber.org/zap"
)

type historyStats struct {
	completed int
	pending   int
	failed    int
}

func printUserHeader(user *models.User, walletCount int) {
	fmt.Printf("\n┌─ User: %s (%s)\n", user.Name, user.Email)
	fmt.Printf("│  ID: %s\n", user.Id)
	fmt.Printf("│  Wallets: %d\n", walletCount)
	common.PrintBoxSeparator(78)
}

func printWallet(wallet models.Wallet, isLast bool) {
	symbol := common.BoxPrefix(isLast)
	fmt.Printf("%s %-6s: %20s (v%d, updated: %s)\n",
		symbol,
		wallet.Currency,
		wallet.Balance.String(),
		wallet.Version,
		wallet.UpdatedAt.Format("2006-01-02 15:04:05"))

	if wallet.Address != "" {
		fmt.Printf("%s   %s → %s\n", common.BoxDetailPrefix(isLast), wallet.Network, wallet.Address)
	}
}

func printPayments(records []models.PaymentRecord) historyStats {
	stats := historyStats{}
	for i, record := range records {
		common.PrintPayment(record, i == len(records)-1)
		switch record.Status {
		case models.PaymentStatusCompleted:
			stats.completed++
		case models.PaymentStatusPending:
			stats.pending++
		default:
			stats.failed++
		}
	}
	return stats
}

func printPaymentDetail(ctx context.Context, processor *payment.Processor, dbService *database.Service, paymentId string) {
	record, err := processor.GetPaymentStatus(ctx, paymentId)
	if err != nil {
		zap.L().Fatal("Failed to get payment status", zap.String("payment_id", paymentId), zap.Error(err))
	}

	common.PrintHeader("PAYMENT "+record.Id, common.DefaultWidth)
	common.PrintPayment(*record, true)

	entries, err := dbService.GetJournalEntries(ctx, record.Id)
	if err != nil {
		zap.L().Error("Failed to get journal entries", zap.String("payment_id", record.Id), zap.Error(err))
		return
	}
	if len(entries) == 0 {
		return
	}

	fmt.Println("\nJournal:")
	for i, e := range entries {
		fmt.Printf("%s %-8s %-38s %-5s debit=%s credit=%s\n",
			common.BoxPrefix(i == len(entries)-1),
			e.AccountType, e.AccountId, e.Currency,
			e.DebitAmount.String(), e.CreditAmount.String())
	}
}

func main() {
	ctx := context.Background()

	logger, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	userFlag := flag.String("user", "", "User id or email")
	paymentFlag := flag.String("payment", "", "Show the status of one payment instead of a history")
	limitFlag := flag.Int("limit", 0, "Maximum number of payments to list (default 20, max 100)")
	offsetFlag := flag.Int("offset", 0, "Number of payments to skip")
	flag.Parse()

	if *userFlag == "" && *paymentFlag == "" {
		logger.Fatal("Either --user or --payment is required")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// The processor overlays the shared status cache on pending payments
	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		logger.Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	processor, dbService := services.Processor, services.DbService

	if *paymentFlag != "" {
		printPaymentDetail(ctx, processor, dbService, *paymentFlag)
		fmt.Println()
		return
	}

	user, err := common.ResolveUser(ctx, dbService, *userFlag)
	if err != nil {
		logger.Fatal("Failed to resolve user", zap.Error(err))
	}

	wallets, err := dbService.GetUserWallets(ctx, user.Id)
	if err != nil {
		logger.Fatal("Failed to get wallets", zap.Error(err))
	}

	common.PrintHeader("PAYMENT HISTORY", common.DefaultWidth)
	printUserHeader(user, len(wallets))
	for i, w := range wallets {
		printWallet(w, i == len(wallets)-1)
	}

	records, err := processor.GetPaymentHistory(ctx, user.Id, *limitFlag, *offsetFlag)
	if err != nil {
		logger.Fatal("Failed to get payment history", zap.Error(err))
	}

	fmt.Printf("\n┌─ Payments (offset %d)\n", *offsetFlag)
	common.PrintBoxSeparator(78)
	stats := printPayments(records)

	summary := fmt.Sprintf("SUMMARY: %d payments shown (%d completed, %d pending, %d failed or cancelled)",
		len(records), stats.completed, stats.pending, stats.failed)
	common.PrintFooter(summary, common.DefaultWidth)

	logger.Info("History query completed",
		zap.String("user_id", user.Id),
		zap.Int("payments", len(records)))
}
