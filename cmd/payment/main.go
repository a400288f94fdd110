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
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"crypto-payments-go/internal/common"
	"crypto-payments-go/internal/config"
	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	statusPollInterval = 2 * time.Second
	eventBuffer        = 256
)

type paymentFlags struct {
	user        string
	toUser      string
	toAddress   string
	amount      string
	currency    string
	paymentId   string
	description string
	file        string
	wait        time.Duration
}

func parseFlags() (*paymentFlags, error) {
	f := &paymentFlags{}
	flag.StringVar(&f.user, "user", "", "Sending user id or email")
	flag.StringVar(&f.toUser, "to-user", "", "Recipient user id or email (internal transfer)")
	flag.StringVar(&f.toAddress, "to-address", "", "Destination address (on-chain transfer)")
	flag.StringVar(&f.amount, "amount", "", "Amount to send")
	flag.StringVar(&f.currency, "currency", "", "Currency symbol (e.g., ETH, USDC)")
	flag.StringVar(&f.paymentId, "id", "", "Optional payment id for safe retries")
	flag.StringVar(&f.description, "description", "", "Optional description")
	flag.StringVar(&f.file, "file", "", "YAML file with a batch of payments (replaces the single-payment flags)")
	flag.DurationVar(&f.wait, "wait", 0, "Wait up to this long for pending payments to settle (e.g. 2m)")
	flag.Parse()

	if f.file != "" {
		return f, nil
	}

	if f.user == "" || f.amount == "" || f.currency == "" {
		return nil, fmt.Errorf("flags --user, --amount and --currency are required (or use --file)")
	}
	if (f.toUser == "") == (f.toAddress == "") {
		return nil, fmt.Errorf("exactly one of --to-user or --to-address is required")
	}
	return f, nil
}

func buildRequest(ctx context.Context, services *common.Services, f *paymentFlags) (models.PaymentRequest, error) {
	amount, err := decimal.NewFromString(f.amount)
	if err != nil {
		return models.PaymentRequest{}, fmt.Errorf("invalid amount format: %w", err)
	}

	sender, err := common.ResolveUser(ctx, services.DbService, f.user)
	if err != nil {
		return models.PaymentRequest{}, err
	}

	req := models.PaymentRequest{
		PaymentId:   f.paymentId,
		UserId:      sender.Id,
		Amount:      amount,
		Currency:    strings.ToUpper(f.currency),
		ToAddress:   strings.TrimSpace(f.toAddress),
		Description: f.description,
	}

	if f.toUser != "" {
		recipient, err := common.ResolveUser(ctx, services.DbService, f.toUser)
		if err != nil {
			return models.PaymentRequest{}, fmt.Errorf("recipient: %w", err)
		}
		req.ToUserId = recipient.Id
	}

	return req, nil
}

// resolveParties swaps emails in batch requests for user ids. Unknown users are
// left as given so the processor reports them per request.
func resolveParties(ctx context.Context, services *common.Services, requests []models.PaymentRequest) {
	for i := range requests {
		if u, err := common.ResolveUser(ctx, services.DbService, requests[i].UserId); err == nil {
			requests[i].UserId = u.Id
		}
		if requests[i].ToUserId == "" {
			continue
		}
		if u, err := common.ResolveUser(ctx, services.DbService, requests[i].ToUserId); err == nil {
			requests[i].ToUserId = u.Id
		}
	}
}

func printRequestSummary(req models.PaymentRequest) {
	common.PrintHeader("PAYMENT REQUEST", common.DefaultWidth)
	fmt.Printf("User:        %s\n", req.UserId)
	fmt.Printf("Amount:      %s %s\n", req.Amount.String(), req.Currency)
	if req.IsOnchain() {
		fmt.Printf("Destination: %s (on-chain)\n", req.ToAddress)
	} else {
		fmt.Printf("Recipient:   %s (internal)\n", req.ToUserId)
	}
	if req.PaymentId != "" {
		fmt.Printf("Payment ID:  %s\n", req.PaymentId)
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

// waitForSettlement polls pending results until they leave the pending state or the timeout expires.
func waitForSettlement(ctx context.Context, services *common.Services, results []models.PaymentResult, timeout time.Duration) {
	pending := make(map[string]bool)
	for _, r := range results {
		if r.Success && r.Status == models.PaymentStatusPending {
			pending[r.TransactionId] = true
		}
	}
	if len(pending) == 0 {
		return
	}

	fmt.Printf("\nWaiting up to %s for %d pending payment(s)...\n", timeout, len(pending))
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(statusPollInterval)
	defer ticker.Stop()

	for len(pending) > 0 {
		select {
		case <-waitCtx.Done():
			fmt.Printf("Still pending after %s: %d payment(s)\n", timeout, len(pending))
			return
		case <-ticker.C:
		}

		// Drive one reconciliation pass so the command works without a running monitor
		if _, err := services.Monitor.RunOnce(waitCtx); err != nil {
			zap.L().Warn("Reconciliation pass failed", zap.Error(err))
		}

		for id := range pending {
			record, err := services.Processor.GetPaymentStatus(waitCtx, id)
			if err != nil {
				zap.L().Warn("Failed to poll payment status", zap.String("payment_id", id), zap.Error(err))
				continue
			}
			if record.IsTerminal() {
				fmt.Printf("%s → %s\n", id, strings.ToUpper(record.Status))
				if record.ErrorMessage != "" {
					fmt.Printf("   error: %s\n", record.ErrorMessage)
				}
				delete(pending, id)
			}
		}
	}
}

// collectEvents gathers the events published on the bus until the returned
// function is called, which hands them back in arrival order.
func collectEvents(bus *events.Bus) func() []events.Event {
	ch, unsubscribe := bus.Subscribe(eventBuffer)
	done := make(chan []events.Event, 1)
	go func() {
		var received []events.Event
		for e := range ch {
			received = append(received, e)
		}
		done <- received
	}()
	return func() []events.Event {
		unsubscribe()
		return <-done
	}
}

func printEvents(received []events.Event) {
	if len(received) == 0 {
		return
	}
	common.PrintHeader(fmt.Sprintf("EVENTS (%d)", len(received)), common.DefaultWidth)
	for _, e := range received {
		fmt.Printf("%s  %-18s %s  %s %s\n",
			e.OccurredAt.Format(time.RFC3339), e.Type, e.PaymentId, e.Amount.String(), e.Currency)
		if e.Error != "" {
			fmt.Printf("   error: %s\n", e.Error)
		}
	}
	common.PrintSeparator("=", common.DefaultWidth)
}

func main() {
	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	f, err := parseFlags()
	if err != nil {
		zap.L().Fatal("Invalid arguments", zap.Error(err))
	}

	cfg, err := config.Load()
	if err != nil {
		zap.L().Fatal("Failed to load config", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	stopEvents := collectEvents(services.Bus)

	var results []models.PaymentResult

	if f.file != "" {
		requests, err := common.LoadBatchRequests(f.file)
		if err != nil {
			zap.L().Fatal("Failed to load payment batch", zap.String("file", f.file), zap.Error(err))
		}

		zap.L().Info("Processing payment batch",
			zap.String("file", f.file),
			zap.Int("count", len(requests)))

		resolveParties(ctx, services, requests)
		common.PrintHeader(fmt.Sprintf("PAYMENT BATCH (%d requests)", len(requests)), common.DefaultWidth)
		results = services.Processor.ProcessBatchPayments(ctx, requests)
	} else {
		req, err := buildRequest(ctx, services, f)
		if err != nil {
			zap.L().Fatal("Invalid payment request", zap.Error(err))
		}

		printRequestSummary(req)
		results = []models.PaymentResult{services.Processor.ProcessPayment(ctx, req)}
	}

	common.PrintResults(results)

	if f.wait > 0 {
		waitForSettlement(ctx, services, results, f.wait)
	}
	printEvents(stopEvents())
	fmt.Println()
}
