package ledger

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"crypto-payments-go/internal/models"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"rate limited", fmt.Errorf("wrap: %w", ErrRateLimited), true},
		{"unavailable", ErrUnavailable, true},
		{"deadline", context.DeadlineExceeded, true},
		{"net timeout", fmt.Errorf("dial: %w", timeoutErr{}), true},
		{"not found", ErrTransactionNotFound, false},
		{"other", errors.New("invalid address"), false},
	}

	for _, tt := range tests {
		if got := IsTransient(tt.err); got != tt.want {
			t.Errorf("%s: IsTransient = %v, want %v", tt.name, got, tt.want)
		}
	}
}

func TestIsAmbiguous(t *testing.T) {
	if !IsAmbiguous(fmt.Errorf("send: %w", ErrAmbiguous)) {
		t.Error("Wrapped ErrAmbiguous should be ambiguous")
	}
	if !IsAmbiguous(context.Canceled) {
		t.Error("Cancelled context should be ambiguous")
	}
	if IsAmbiguous(errors.New("insufficient funds on ledger")) {
		t.Error("Deterministic rejection should not be ambiguous")
	}
}

func TestMapPrimeStatus(t *testing.T) {
	tests := map[string]string{
		"TRANSACTION_DONE":      models.LedgerStatusConfirmed,
		"TRANSACTION_FAILED":    models.LedgerStatusFailed,
		"TRANSACTION_REJECTED":  models.LedgerStatusFailed,
		"TRANSACTION_CANCELLED": models.LedgerStatusFailed,
		"TRANSACTION_EXPIRED":   models.LedgerStatusFailed,
		"TRANSACTION_CREATED":   models.LedgerStatusPending,
		"TRANSACTION_BROADCAST": models.LedgerStatusPending,
	}
	for in, want := range tests {
		if got := mapPrimeStatus(in); got != want {
			t.Errorf("mapPrimeStatus(%s) = %s, want %s", in, got, want)
		}
	}
}

func TestClassifyPrimeError(t *testing.T) {
	if err := classifyPrimeError(errors.New("expected status 200, got 429")); !errors.Is(err, ErrRateLimited) {
		t.Errorf("Expected ErrRateLimited, got %v", err)
	}
	if err := classifyPrimeError(errors.New("status 503 service unavailable")); !errors.Is(err, ErrUnavailable) {
		t.Errorf("Expected ErrUnavailable, got %v", err)
	}
	if err := classifyPrimeError(errors.New("status 400 bad request")); IsTransient(err) {
		t.Errorf("400 should not be transient")
	}
}
