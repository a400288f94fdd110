package payment

import (
	"context"
	"encoding/hex"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-payments-go/internal/database"
	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/ledger/ledgertest"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/policy"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *eventRecorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]string, len(r.events))
	for i, e := range r.events {
		types[i] = e.Type
	}
	return types
}

type harness struct {
	db        *database.Service
	ledger    *ledgertest.Fake
	events    *eventRecorder
	processor *Processor
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	db, err := database.NewService(context.Background(), models.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "payments.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	})
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(db.Close)

	h := &harness{db: db, ledger: ledgertest.NewFake(), events: &eventRecorder{}}
	h.processor, err = NewProcessor(Params{
		Store:  db,
		Ledger: h.ledger,
		Policy: policy.DefaultTable(),
		Events: h.events,
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}
	return h
}

// wallet registers a wallet whose ledger account is "<user>-<currency>".
func (h *harness) wallet(t *testing.T, userId, currency, address, balance string) {
	t.Helper()
	_, err := h.db.CreateWallet(context.Background(), store.CreateWalletParams{
		UserId:         userId,
		Currency:       currency,
		Network:        "ethereum-mainnet",
		Address:        address,
		LedgerAccount:  userId + "-" + currency,
		OpeningBalance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	h.ledger.SetBalance(userId+"-"+currency, decimal.RequireFromString(balance))
}

func (h *harness) balance(t *testing.T, userId, currency string) decimal.Decimal {
	t.Helper()
	w, err := h.db.GetWallet(context.Background(), userId, currency)
	if err != nil {
		t.Fatalf("Failed to get wallet %s/%s: %v", userId, currency, err)
	}
	return w.Balance
}

func (h *harness) history(t *testing.T, userId string) []models.PaymentRecord {
	t.Helper()
	records, err := h.db.GetPaymentHistory(context.Background(), userId, 100, 0)
	if err != nil {
		t.Fatalf("Failed to get history: %v", err)
	}
	return records
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func internalTransfer(from, to, amount string) models.PaymentRequest {
	return models.PaymentRequest{UserId: from, ToUserId: to, Amount: d(amount), Currency: "ETH"}
}

func withdrawal(from, address, amount string) models.PaymentRequest {
	return models.PaymentRequest{UserId: from, ToAddress: address, Amount: d(amount), Currency: "ETH"}
}

// addr derives a well-formed account address from a short label. An
// all-uppercase label yields uppercase hex so case-insensitive matching can
// be exercised.
func addr(label string) string {
	hexed := hex.EncodeToString([]byte(strings.ToLower(label)))
	hexed = strings.Repeat("0", 40-len(hexed)) + hexed
	if label == strings.ToUpper(label) {
		hexed = strings.ToUpper(hexed)
	}
	return "0x" + hexed
}

func expectBalance(t *testing.T, h *harness, userId, currency, want string) {
	t.Helper()
	if got := h.balance(t, userId, currency); !got.Equal(d(want)) {
		t.Errorf("Expected %s %s balance %s, got %s", userId, currency, want, got.String())
	}
}
