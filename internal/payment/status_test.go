package payment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"
)

type staticStatuses map[string]string

func (s staticStatuses) Get(_ context.Context, txRef string) (string, bool) {
	status, ok := s[txRef]
	return status, ok
}

func TestGetPaymentStatus_OverlaysCachedLedgerStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.wallet(t, "alice", "ETH", addr("A"), "10")

	result := h.processor.ProcessPayment(ctx, withdrawal("alice", addr("External"), "1"))
	if !result.Success {
		t.Fatalf("Withdrawal failed: %s", result.Error)
	}

	view, err := h.processor.GetPaymentStatus(ctx, result.TransactionId)
	if err != nil {
		t.Fatalf("GetPaymentStatus failed: %v", err)
	}
	if view.Status != models.PaymentStatusPending {
		t.Errorf("Expected pending without a cached status, got %s", view.Status)
	}

	tests := []struct {
		ledgerStatus string
		want         string
	}{
		{models.LedgerStatusConfirmed, models.PaymentStatusCompleted},
		{models.LedgerStatusFailed, models.PaymentStatusFailed},
		{models.LedgerStatusPending, models.PaymentStatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.ledgerStatus, func(t *testing.T) {
			h.processor.statuses = staticStatuses{result.TxRef: tt.ledgerStatus}
			view, err := h.processor.GetPaymentStatus(ctx, result.TransactionId)
			if err != nil {
				t.Fatalf("GetPaymentStatus failed: %v", err)
			}
			if view.Status != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, view.Status)
			}
		})
	}

	stored, _ := h.db.GetPayment(ctx, result.TransactionId)
	if stored.Status != models.PaymentStatusPending {
		t.Errorf("Status lookup must not modify the store, got %s", stored.Status)
	}
}

func TestGetPaymentStatus_NotFound(t *testing.T) {
	h := newHarness(t)
	_, err := h.processor.GetPaymentStatus(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestGetPaymentHistory_ClampsLimit(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.wallet(t, "alice", "ETH", addr("A"), "1000")

	for i := 0; i < 25; i++ {
		req := withdrawal("alice", addr(fmt.Sprintf("Dest%02d", i)), "0.1")
		if r := h.processor.ProcessPayment(ctx, req); !r.Success {
			t.Fatalf("Withdrawal %d failed: %s", i, r.Error)
		}
	}

	tests := []struct {
		limit, offset, want int
	}{
		{0, 0, 20},
		{-5, 0, 20},
		{10, 0, 10},
		{500, 0, 25},
		{10, 20, 5},
		{10, -3, 10},
	}
	for _, tt := range tests {
		history, err := h.processor.GetPaymentHistory(ctx, "alice", tt.limit, tt.offset)
		if err != nil {
			t.Fatalf("GetPaymentHistory failed: %v", err)
		}
		if len(history) != tt.want {
			t.Errorf("limit=%d offset=%d: expected %d records, got %d", tt.limit, tt.offset, tt.want, len(history))
		}
	}
}
