package monitor

import (
	"context"
	"encoding/hex"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"crypto-payments-go/internal/database"
	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/ledger/ledgertest"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/payment"
	"crypto-payments-go/internal/policy"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

const testNetwork = "ethereum-mainnet"

type recorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recorder) Publish(_ context.Context, e events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Dispatch always fails so tests can check that delivery errors are only logged.
func (r *recorder) Dispatch(_ context.Context, e events.Event) error {
	return errors.New("connection refused")
}

func (r *recorder) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Type == eventType {
			n++
		}
	}
	return n
}

type testEnv struct {
	db        *database.Service
	ledger    *ledgertest.Fake
	events    *recorder
	cache     *MemoryCache
	processor *payment.Processor
	monitor   *Monitor
}

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()

	db, err := database.NewService(ctx, models.DatabaseConfig{
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

	env := &testEnv{
		db:     db,
		ledger: ledgertest.NewFake(),
		events: &recorder{},
		cache:  NewMemoryCache(time.Minute),
	}

	env.processor, err = payment.NewProcessor(payment.Params{
		Store:  db,
		Ledger: env.ledger,
		Policy: policy.DefaultTable(),
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	env.monitor, err = NewMonitor(Params{
		Store:           db,
		Ledger:          env.ledger,
		Cache:           env.cache,
		Events:          env.events,
		Webhooks:        env.events,
		Network:         testNetwork,
		PollingInterval: 10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Failed to create monitor: %v", err)
	}
	return env
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

func (e *testEnv) wallet(t *testing.T, userId, currency, address, balance string) {
	t.Helper()
	account := userId + "-" + currency
	_, err := e.db.CreateWallet(context.Background(), store.CreateWalletParams{
		UserId:         userId,
		Currency:       currency,
		Network:        testNetwork,
		Address:        address,
		LedgerAccount:  account,
		OpeningBalance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	e.ledger.SetBalance(account, decimal.RequireFromString(balance))
	e.ledger.RegisterAddress(address, account)
}

func (e *testEnv) withdraw(t *testing.T, userId, address, amount string) models.PaymentResult {
	t.Helper()
	result := e.processor.ProcessPayment(context.Background(), models.PaymentRequest{
		UserId:    userId,
		ToAddress: address,
		Amount:    decimal.RequireFromString(amount),
		Currency:  "ETH",
	})
	if !result.Success {
		t.Fatalf("Withdrawal failed: %s (%s)", result.Error, result.ErrorCode)
	}
	return result
}

func (e *testEnv) expectBalance(t *testing.T, userId, currency, want string) {
	t.Helper()
	w, err := e.db.GetWallet(context.Background(), userId, currency)
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !w.Balance.Equal(decimal.RequireFromString(want)) {
		t.Errorf("Expected %s %s balance %s, got %s", userId, currency, want, w.Balance.String())
	}
}

func (e *testEnv) expectPayment(t *testing.T, paymentId, status string) *models.PaymentRecord {
	t.Helper()
	record, err := e.db.GetPayment(context.Background(), paymentId)
	if err != nil {
		t.Fatalf("GetPayment failed: %v", err)
	}
	if record.Status != status {
		t.Errorf("Expected payment %s to be %s, got %s", paymentId, status, record.Status)
	}
	return record
}

func TestNewMonitor_Validation(t *testing.T) {
	if _, err := NewMonitor(Params{Ledger: ledgertest.NewFake(), Network: testNetwork}); err == nil {
		t.Error("Expected error without store")
	}
	env := setupTestEnv(t)
	if _, err := NewMonitor(Params{Store: env.db, Network: testNetwork}); err == nil {
		t.Error("Expected error without ledger")
	}
	if _, err := NewMonitor(Params{Store: env.db, Ledger: env.ledger}); err == nil {
		t.Error("Expected error without network")
	}
}

func TestRunOnce_ConfirmationOverwritesBalance(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10.0")

	result := env.withdraw(t, "alice", addr("External"), "2.0")
	if err := env.ledger.Confirm(result.TxRef); err != nil {
		t.Fatalf("Confirm failed: %v", err)
	}

	summary, err := env.monitor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Checked != 1 || summary.Confirmed != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	env.expectBalance(t, "alice", "ETH", "8.0")
	record := env.expectPayment(t, result.TransactionId, models.PaymentStatusCompleted)
	if record.CompletedAt == nil {
		t.Error("Expected completion time")
	}

	monitored, _ := env.db.GetMonitoredTransaction(ctx, result.TxRef)
	if monitored.Status != models.MonitoredStatusConfirmed {
		t.Errorf("Expected monitored row confirmed, got %s", monitored.Status)
	}
	if status, ok := env.cache.Get(ctx, result.TxRef); !ok || status != models.LedgerStatusConfirmed {
		t.Errorf("Expected cached confirmed status, got %q %v", status, ok)
	}

	entries, _ := env.db.GetJournalEntries(ctx, result.TransactionId)
	if len(entries) != 2 {
		t.Errorf("Expected 2 journal entries, got %d", len(entries))
	}
	if env.events.count(events.TypePaymentCompleted) != 1 {
		t.Errorf("Expected one payment.completed event")
	}

	// A second pass sees nothing and changes nothing.
	summary, _ = env.monitor.RunOnce(ctx)
	if summary.Checked != 0 {
		t.Errorf("Expected settled transaction to be skipped, got %+v", summary)
	}
	env.expectBalance(t, "alice", "ETH", "8.0")
}

func TestCheck_Idempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10")

	result := env.withdraw(t, "alice", addr("External"), "1")
	_ = env.ledger.Confirm(result.TxRef)

	row, err := env.db.GetMonitoredTransaction(ctx, result.TxRef)
	if err != nil {
		t.Fatalf("GetMonitoredTransaction failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		env.monitor.check(ctx, *row, false)
	}

	env.expectBalance(t, "alice", "ETH", "9")
	if n := env.events.count(events.TypePaymentCompleted); n != 1 {
		t.Errorf("Expected exactly one completion event, got %d", n)
	}
	entries, _ := env.db.GetJournalEntries(ctx, result.TransactionId)
	if len(entries) != 2 {
		t.Errorf("Expected journal entries to be written once, got %d", len(entries))
	}
}

func TestRunOnce_ConfirmsLinkedDeposit(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10")
	env.wallet(t, "bob", "ETH", addr("B0B"), "1")

	result := env.withdraw(t, "alice", addr("b0b"), "2")
	_ = env.ledger.Confirm(result.TxRef)

	if _, err := env.monitor.RunOnce(ctx); err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}

	env.expectBalance(t, "alice", "ETH", "8")
	env.expectBalance(t, "bob", "ETH", "3")

	history, _ := env.db.GetPaymentHistory(ctx, "bob", 10, 0)
	if len(history) != 1 || history[0].Status != models.PaymentStatusCompleted {
		t.Fatalf("Expected completed deposit for bob, got %+v", history)
	}
	if n := env.events.count(events.TypePaymentCompleted); n != 2 {
		t.Errorf("Expected completion events for payment and deposit, got %d", n)
	}
}

func TestRunOnce_FailurePropagates(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10")
	env.wallet(t, "bob", "ETH", addr("B0B"), "0")

	result := env.withdraw(t, "alice", addr("B0B"), "2")
	_ = env.ledger.Fail(result.TxRef, "insufficient gas")

	summary, err := env.monitor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Failed != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	record := env.expectPayment(t, result.TransactionId, models.PaymentStatusFailed)
	if record.ErrorMessage != "insufficient gas" {
		t.Errorf("Expected ledger reason, got %q", record.ErrorMessage)
	}
	history, _ := env.db.GetPaymentHistory(ctx, "bob", 10, 0)
	if len(history) != 1 || history[0].Status != models.PaymentStatusFailed {
		t.Errorf("Expected linked deposit to fail, got %+v", history)
	}

	env.expectBalance(t, "alice", "ETH", "10")
	if n := env.events.count(events.TypePaymentFailed); n != 2 {
		t.Errorf("Expected two payment.failed events, got %d", n)
	}
}

func TestRunOnce_ErrorIsolation(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10")

	confirmed := env.withdraw(t, "alice", addr("One"), "1")
	rateLimited := env.withdraw(t, "alice", addr("Two"), "1")
	broken := env.withdraw(t, "alice", addr("Three"), "1")
	if err := env.monitor.AddTransaction(ctx, "0xunknown", "alice", "", ""); err != nil {
		t.Fatalf("AddTransaction failed: %v", err)
	}

	_ = env.ledger.Confirm(confirmed.TxRef)
	env.ledger.SetStatusErr(rateLimited.TxRef, ledger.ErrRateLimited)
	env.ledger.SetStatusErr(broken.TxRef, errors.New("malformed transaction reference"))

	summary, err := env.monitor.RunOnce(ctx)
	if err != nil {
		t.Fatalf("RunOnce failed: %v", err)
	}
	if summary.Checked != 4 || summary.Confirmed != 1 || summary.Failed != 1 || summary.Pending != 2 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	env.expectPayment(t, confirmed.TransactionId, models.PaymentStatusCompleted)
	env.expectPayment(t, rateLimited.TransactionId, models.PaymentStatusPending)
	failed := env.expectPayment(t, broken.TransactionId, models.PaymentStatusFailed)
	if failed.ErrorMessage != "malformed transaction reference" {
		t.Errorf("Expected error text on failed record, got %q", failed.ErrorMessage)
	}

	unknown, _ := env.db.GetMonitoredTransaction(ctx, "0xunknown")
	if unknown.Status != models.MonitoredStatusPending || unknown.Network != testNetwork {
		t.Errorf("Unknown transaction should stay pending on the default network, got %+v", unknown)
	}
}

func TestAddTransaction_Idempotent(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := env.monitor.AddTransaction(ctx, "0xabc", "alice", testNetwork, "pay-1"); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	pending, err := env.db.ListPendingMonitored(ctx, testNetwork, time.Now().Add(-time.Hour), 10)
	if err != nil {
		t.Fatalf("ListPendingMonitored failed: %v", err)
	}
	if len(pending) != 1 {
		t.Errorf("Expected one monitored row, got %d", len(pending))
	}
}

func TestSweep_ExpiresOldMissingTransactions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	add := func(txRef string, age time.Duration) {
		env.monitor.now = func() time.Time { return now.Add(-age) }
		if err := env.monitor.AddTransaction(ctx, txRef, "alice", testNetwork, ""); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	add("0xancient", 30*time.Hour)
	add("0xstale", 2*time.Hour)
	add("0xfresh", time.Minute)
	env.monitor.now = func() time.Time { return now }

	summary, err := env.monitor.Sweep(ctx)
	if err != nil {
		t.Fatalf("Sweep failed: %v", err)
	}
	if summary.Checked != 2 || summary.Failed != 1 || summary.Pending != 1 {
		t.Errorf("Unexpected summary: %+v", summary)
	}

	ancient, _ := env.db.GetMonitoredTransaction(ctx, "0xancient")
	if ancient.Status != models.MonitoredStatusFailed || ancient.ErrorMessage == "" {
		t.Errorf("Expected ancient transaction to expire, got %+v", ancient)
	}
	for _, txRef := range []string{"0xstale", "0xfresh"} {
		tx, _ := env.db.GetMonitoredTransaction(ctx, txRef)
		if tx.Status != models.MonitoredStatusPending {
			t.Errorf("Expected %s to stay pending, got %s", txRef, tx.Status)
		}
	}
}

func TestSweep_RotatesUnresolvedTransactions(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	env.monitor.batchSize = 1

	for _, tx := range []struct {
		txRef string
		age   time.Duration
	}{
		{"0xstale1", 3 * time.Hour},
		{"0xstale2", 2 * time.Hour},
	} {
		env.monitor.now = func() time.Time { return now.Add(-tx.age) }
		if err := env.monitor.AddTransaction(ctx, tx.txRef, "alice", testNetwork, ""); err != nil {
			t.Fatalf("AddTransaction failed: %v", err)
		}
	}
	env.monitor.now = func() time.Time { return now }

	for i, want := range []int{1, 2} {
		time.Sleep(2 * time.Millisecond)
		summary, err := env.monitor.Sweep(ctx)
		if err != nil {
			t.Fatalf("Sweep failed: %v", err)
		}
		if summary.Checked != 1 || summary.Pending != 1 {
			t.Fatalf("Sweep %d: unexpected summary %+v", i+1, summary)
		}
		seen := 0
		for _, txRef := range []string{"0xstale1", "0xstale2"} {
			if _, ok := env.cache.Get(ctx, txRef); ok {
				seen++
			}
		}
		if seen != want {
			t.Errorf("After sweep %d expected %d distinct rows checked, got %d", i+1, want, seen)
		}
	}
}

func TestMonitor_Lifecycle(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10")

	if err := env.monitor.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := env.monitor.Start(ctx); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("Expected ErrAlreadyRunning, got %v", err)
	}

	result := env.withdraw(t, "alice", addr("External"), "1")
	_ = env.ledger.Confirm(result.TxRef)

	deadline := time.Now().Add(5 * time.Second)
	for {
		record, _ := env.db.GetPayment(ctx, result.TransactionId)
		if record.Status == models.PaymentStatusCompleted {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("Monitor did not confirm the payment in time")
		}
		time.Sleep(10 * time.Millisecond)
	}

	env.monitor.Stop()
	env.monitor.Stop()
	if env.monitor.Running() {
		t.Error("Expected monitor to be stopped")
	}

	calls := env.ledger.StatusCalls()
	time.Sleep(50 * time.Millisecond)
	if env.ledger.StatusCalls() != calls {
		t.Error("No pass may run after Stop")
	}

	if err := env.monitor.Start(ctx); err != nil {
		t.Fatalf("Restart failed: %v", err)
	}
	env.monitor.Stop()
}

func TestMonitor_InvalidSweepSchedule(t *testing.T) {
	env := setupTestEnv(t)
	env.monitor.sweepSchedule = "every tuesday"

	if err := env.monitor.Start(context.Background()); err == nil {
		env.monitor.Stop()
		t.Fatal("Expected invalid schedule to fail")
	}
	if env.monitor.Running() {
		t.Error("Monitor must not be running after a failed start")
	}
}

// blockingNotifier holds every delivery until release is closed.
type blockingNotifier struct {
	release   chan struct{}
	mu        sync.Mutex
	delivered []string
}

func (n *blockingNotifier) Dispatch(_ context.Context, e events.Event) error {
	<-n.release
	n.mu.Lock()
	defer n.mu.Unlock()
	n.delivered = append(n.delivered, e.PaymentId)
	return nil
}

func (n *blockingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.delivered)
}

func TestRunOnce_WebhookDeliveryDoesNotStallPass(t *testing.T) {
	env := setupTestEnv(t)
	ctx := context.Background()
	env.wallet(t, "alice", "ETH", addr("A"), "10.0")

	notifier := &blockingNotifier{release: make(chan struct{})}
	m, err := NewMonitor(Params{
		Store:    env.db,
		Ledger:   env.ledger,
		Events:   env.events,
		Webhooks: notifier,
		Network:  testNetwork,
	})
	if err != nil {
		t.Fatalf("Failed to create monitor: %v", err)
	}

	for _, amount := range []string{"1.0", "2.0"} {
		result := env.withdraw(t, "alice", addr("External"), amount)
		if err := env.ledger.Confirm(result.TxRef); err != nil {
			t.Fatalf("Confirm failed: %v", err)
		}
	}

	type outcome struct {
		summary PassSummary
		err     error
	}
	done := make(chan outcome, 1)
	go func() {
		summary, err := m.RunOnce(ctx)
		done <- outcome{summary, err}
	}()

	select {
	case out := <-done:
		if out.err != nil {
			t.Fatalf("RunOnce failed: %v", out.err)
		}
		if out.summary.Confirmed != 2 {
			t.Errorf("Expected 2 confirmed, got %+v", out.summary)
		}
	case <-time.After(5 * time.Second):
		close(notifier.release)
		t.Fatal("Reconciliation pass waited on webhook delivery")
	}

	if env.events.count(events.TypePaymentCompleted) != 2 {
		t.Errorf("Expected 2 completion events published during the pass, got %d",
			env.events.count(events.TypePaymentCompleted))
	}
	if got := notifier.count(); got != 0 {
		t.Errorf("Expected no webhook delivered before release, got %d", got)
	}

	close(notifier.release)
	m.WaitDeliveries()
	if got := notifier.count(); got != 2 {
		t.Errorf("Expected 2 webhook deliveries after release, got %d", got)
	}
}
