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
	"regexp"
	"strings"

	"crypto-payments-go/internal/common"
	"crypto-payments-go/internal/config"
	"crypto-payments-go/internal/database"
	"crypto-payments-go/internal/policy"
	"crypto-payments-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}$`)

type walletStats struct {
	successCount     int
	failedCurrencies []string
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("email cannot be empty")
	}
	if !emailRegex.MatchString(email) {
		return fmt.Errorf("invalid email format: %s", email)
	}
	return nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) < 2 {
		return fmt.Errorf("name must be at least 2 characters")
	}
	return nil
}

// parseAssignments parses "ETH=value,USDC=value" flag values keyed by currency.
func parseAssignments(raw string) (map[string]string, error) {
	out := make(map[string]string)
	if strings.TrimSpace(raw) == "" {
		return out, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(pair), "=")
		if !ok || key == "" || value == "" {
			return nil, fmt.Errorf("invalid assignment %q, expected CURRENCY=value", pair)
		}
		out[strings.ToUpper(key)] = value
	}
	return out, nil
}

func parseBalances(raw string) (map[string]decimal.Decimal, error) {
	assignments, err := parseAssignments(raw)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]decimal.Decimal, len(assignments))
	for currency, value := range assignments {
		amount, err := decimal.NewFromString(value)
		if err != nil {
			return nil, fmt.Errorf("invalid balance for %s: %w", currency, err)
		}
		if amount.IsNegative() {
			return nil, fmt.Errorf("balance for %s cannot be negative", currency)
		}
		balances[currency] = amount
	}
	return balances, nil
}

func createWallets(ctx context.Context, dbService *database.Service, table *policy.Table, userId, address string, ledgerAccounts map[string]string, balances map[string]decimal.Decimal) walletStats {
	symbols := table.Symbols()
	fmt.Printf("Creating wallets for %d currencies...\n\n", len(symbols))

	stats := walletStats{failedCurrencies: []string{}}

	for _, symbol := range symbols {
		currency, _ := table.Lookup(symbol)

		wallet, err := dbService.CreateWallet(ctx, store.CreateWalletParams{
			UserId:         userId,
			Currency:       symbol,
			Network:        currency.Network,
			Address:        address,
			LedgerAccount:  ledgerAccounts[symbol],
			OpeningBalance: balances[symbol],
		})
		if err != nil {
			zap.L().Error("Failed to create wallet",
				zap.String("currency", symbol),
				zap.Error(err))
			fmt.Printf("✗ %s-%s: Failed to create wallet\n", symbol, currency.Network)
			stats.failedCurrencies = append(stats.failedCurrencies, symbol)
			continue
		}

		line := fmt.Sprintf("✓ %s-%s: balance %s", symbol, currency.Network, wallet.Balance.String())
		if wallet.Address != "" {
			line += fmt.Sprintf(", address %s", wallet.Address)
		}
		if wallet.LedgerAccount != "" {
			line += fmt.Sprintf(", ledger %s", wallet.LedgerAccount)
		}
		fmt.Println(line)
		stats.successCount++
	}

	return stats
}

func main() {
	ctx := context.Background()

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	// Parse command line flags
	nameFlag := flag.String("name", "", "User's full name (required)")
	emailFlag := flag.String("email", "", "User's email address (required)")
	addressFlag := flag.String("address", "", "On-chain deposit address shared by the user's wallets (optional)")
	ledgerFlag := flag.String("ledger-accounts", "", "Prime wallet ids per currency, e.g. ETH=<id>,USDC=<id> (optional)")
	balanceFlag := flag.String("balances", "", "Opening balances per currency, e.g. ETH=10,USDC=500 (optional)")
	webhookFlag := flag.String("webhook", "", "Webhook URL for payment notifications (optional)")
	flag.Parse()

	if *nameFlag == "" || *emailFlag == "" {
		zap.L().Fatal("Both flags are required: --name and --email")
	}

	if err := validateName(*nameFlag); err != nil {
		zap.L().Fatal("Invalid name", zap.Error(err))
	}

	if err := validateEmail(*emailFlag); err != nil {
		zap.L().Fatal("Invalid email", zap.Error(err))
	}

	ledgerAccounts, err := parseAssignments(*ledgerFlag)
	if err != nil {
		zap.L().Fatal("Invalid --ledger-accounts", zap.Error(err))
	}

	balances, err := parseBalances(*balanceFlag)
	if err != nil {
		zap.L().Fatal("Invalid --balances", zap.Error(err))
	}

	zap.L().Info("Starting user creation process",
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag))

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	table, err := policy.LoadTable(cfg.Payments.CurrenciesFile)
	if err != nil {
		zap.L().Fatal("Failed to load currency policy", zap.Error(err))
	}

	for currency := range balances {
		if _, ok := table.Lookup(currency); !ok {
			zap.L().Fatal("Unsupported currency in --balances", zap.String("currency", currency))
		}
	}

	// Wallet creation needs no ledger access
	dbService, err := common.InitializeDatabaseOnly(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize database", zap.Error(err))
	}
	defer dbService.Close()

	userId := uuid.New().String()

	zap.L().Info("Creating user in database",
		zap.String("id", userId),
		zap.String("name", *nameFlag),
		zap.String("email", *emailFlag))

	user, err := dbService.CreateUser(ctx, userId, *nameFlag, *emailFlag)
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique") {
			zap.L().Fatal("User already exists with this email", zap.String("email", *emailFlag))
		}
		zap.L().Fatal("Failed to create user", zap.Error(err))
	}

	common.PrintHeader("USER CREATED", common.DefaultWidth)
	fmt.Printf("ID:    %s\n", user.Id)
	fmt.Printf("Name:  %s\n", user.Name)
	fmt.Printf("Email: %s\n", user.Email)
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	stats := createWallets(ctx, dbService, table, user.Id, strings.TrimSpace(*addressFlag), ledgerAccounts, balances)

	if *webhookFlag != "" {
		listener, err := dbService.RegisterWebhook(ctx, user.Id, *webhookFlag)
		if err != nil {
			zap.L().Error("Failed to register webhook", zap.String("url", *webhookFlag), zap.Error(err))
		} else {
			fmt.Printf("✓ Webhook: %s\n", listener.URL)
		}
	}

	common.PrintHeader("WALLET SUMMARY", common.DefaultWidth)
	fmt.Printf("Total Currencies:  %d\n", len(table.Symbols()))
	fmt.Printf("Successful:        %d\n", stats.successCount)
	fmt.Printf("Failed:            %d\n", len(stats.failedCurrencies))
	if len(stats.failedCurrencies) > 0 {
		fmt.Printf("Failed Currencies: %s\n", strings.Join(stats.failedCurrencies, ", "))
	}
	common.PrintSeparator("=", common.DefaultWidth)
	fmt.Println()

	zap.L().Info("User created successfully", zap.String("id", user.Id))
}
