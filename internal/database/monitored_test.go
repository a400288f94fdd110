package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"
)

func TestAddMonitoredTransaction_Idempotent(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	params := store.AddMonitoredParams{TxRef: "tx-1", UserId: "user1", Network: "ethereum-mainnet", PaymentId: "p1"}

	inserted, err := service.AddMonitoredTransaction(ctx, params)
	if err != nil || !inserted {
		t.Fatalf("Expected first insert to succeed, got inserted=%v err=%v", inserted, err)
	}
	inserted, err = service.AddMonitoredTransaction(ctx, params)
	if err != nil || inserted {
		t.Fatalf("Expected second insert to be a no-op, got inserted=%v err=%v", inserted, err)
	}

	m, err := service.GetMonitoredTransaction(ctx, "tx-1")
	if err != nil {
		t.Fatalf("GetMonitoredTransaction failed: %v", err)
	}
	if m.Status != models.MonitoredStatusPending || m.PaymentId != "p1" {
		t.Errorf("Unexpected row: %+v", m)
	}

	if _, err := service.AddMonitoredTransaction(ctx, store.AddMonitoredParams{UserId: "user1"}); err == nil {
		t.Error("Expected error for empty tx_ref")
	}
}

func TestListMonitored_Windows(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()

	rows := []store.AddMonitoredParams{
		{TxRef: "new-2", UserId: "u", Network: "ethereum-mainnet", CreatedAt: now.Add(-time.Minute)},
		{TxRef: "new-1", UserId: "u", Network: "ethereum-mainnet", CreatedAt: now.Add(-10 * time.Minute)},
		{TxRef: "old", UserId: "u", Network: "ethereum-mainnet", CreatedAt: now.Add(-2 * time.Hour)},
		{TxRef: "other-net", UserId: "u", Network: "base-mainnet", CreatedAt: now.Add(-time.Minute)},
	}
	for _, r := range rows {
		if _, err := service.AddMonitoredTransaction(ctx, r); err != nil {
			t.Fatalf("AddMonitoredTransaction failed: %v", err)
		}
	}

	pending, err := service.ListPendingMonitored(ctx, "ethereum-mainnet", now.Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("ListPendingMonitored failed: %v", err)
	}
	if len(pending) != 2 || pending[0].TxRef != "new-1" || pending[1].TxRef != "new-2" {
		t.Errorf("Expected [new-1 new-2] oldest first, got %+v", pending)
	}

	limited, err := service.ListPendingMonitored(ctx, "ethereum-mainnet", now.Add(-time.Hour), 1)
	if err != nil {
		t.Fatalf("ListPendingMonitored failed: %v", err)
	}
	if len(limited) != 1 {
		t.Errorf("Expected batch size to cap results, got %d", len(limited))
	}

	stale, err := service.ListStaleMonitored(ctx, "ethereum-mainnet", now.Add(-time.Hour), 50)
	if err != nil {
		t.Fatalf("ListStaleMonitored failed: %v", err)
	}
	if len(stale) != 1 || stale[0].TxRef != "old" {
		t.Errorf("Expected [old], got %+v", stale)
	}
}

func TestMarkMonitored(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	if _, err := service.AddMonitoredTransaction(ctx, store.AddMonitoredParams{TxRef: "tx-1", UserId: "u", Network: "n"}); err != nil {
		t.Fatalf("AddMonitoredTransaction failed: %v", err)
	}

	mark := func(status string) error {
		return service.WithTx(ctx, func(tx store.PaymentTx) error {
			return tx.MarkMonitored(ctx, "tx-1", status, "")
		})
	}

	if err := mark(models.MonitoredStatusPending); err == nil {
		t.Error("Expected error marking back to pending")
	}
	if err := mark(models.MonitoredStatusConfirmed); err != nil {
		t.Fatalf("MarkMonitored failed: %v", err)
	}
	if err := mark(models.MonitoredStatusFailed); !errors.Is(err, store.ErrInvalidTransition) {
		t.Errorf("Expected ErrInvalidTransition, got %v", err)
	}

	pending, _ := service.ListPendingMonitored(ctx, "n", time.Now().UTC().Add(-time.Hour), 50)
	if len(pending) != 0 {
		t.Errorf("Confirmed row should no longer be pending")
	}
}

func TestTouchMonitored_RotatesStaleQueue(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	now := time.Now().UTC()
	for _, r := range []store.AddMonitoredParams{
		{TxRef: "oldest", UserId: "u", Network: "ethereum-mainnet", CreatedAt: now.Add(-3 * time.Hour)},
		{TxRef: "older", UserId: "u", Network: "ethereum-mainnet", CreatedAt: now.Add(-2 * time.Hour)},
	} {
		if _, err := service.AddMonitoredTransaction(ctx, r); err != nil {
			t.Fatalf("AddMonitoredTransaction failed: %v", err)
		}
	}

	next := func() string {
		t.Helper()
		stale, err := service.ListStaleMonitored(ctx, "ethereum-mainnet", now.Add(-time.Hour), 1)
		if err != nil {
			t.Fatalf("ListStaleMonitored failed: %v", err)
		}
		if len(stale) != 1 {
			t.Fatalf("Expected one stale row, got %d", len(stale))
		}
		return stale[0].TxRef
	}

	tests := []struct {
		want  string
		touch string
	}{
		{want: "oldest", touch: "oldest"},
		{want: "older", touch: "older"},
		{want: "oldest"},
	}
	for i, tt := range tests {
		if got := next(); got != tt.want {
			t.Fatalf("Round %d: expected %s at the head of the queue, got %s", i, tt.want, got)
		}
		if tt.touch == "" {
			continue
		}
		time.Sleep(2 * time.Millisecond)
		if err := service.TouchMonitored(ctx, tt.touch); err != nil {
			t.Fatalf("TouchMonitored failed: %v", err)
		}
	}

	if err := service.WithTx(ctx, func(tx store.PaymentTx) error {
		return tx.MarkMonitored(ctx, "oldest", models.MonitoredStatusConfirmed, "")
	}); err != nil {
		t.Fatalf("MarkMonitored failed: %v", err)
	}
	if err := service.TouchMonitored(ctx, "oldest"); err != nil {
		t.Fatalf("Touching a settled row should be a no-op, got %v", err)
	}
	m, _ := service.GetMonitoredTransaction(ctx, "oldest")
	if m.Status != models.MonitoredStatusConfirmed {
		t.Errorf("Touch must not change a settled row, got %s", m.Status)
	}
}
