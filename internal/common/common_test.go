package common

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

type fakeUsers map[string]*models.User

func (f fakeUsers) GetUserById(_ context.Context, userId string) (*models.User, error) {
	if u, ok := f[userId]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (f fakeUsers) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	for _, u := range f {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, store.ErrNotFound
}

func TestResolveUser(t *testing.T) {
	users := fakeUsers{"u-1": {Id: "u-1", Name: "Alice", Email: "alice@example.com"}}
	ctx := context.Background()

	for _, arg := range []string{"u-1", " u-1 ", "alice@example.com"} {
		u, err := ResolveUser(ctx, users, arg)
		if err != nil {
			t.Fatalf("ResolveUser(%q) error: %v", arg, err)
		}
		if u.Id != "u-1" {
			t.Errorf("ResolveUser(%q) = %s, want u-1", arg, u.Id)
		}
	}

	for _, arg := range []string{"", "u-2", "bob@example.com"} {
		if _, err := ResolveUser(ctx, users, arg); err == nil {
			t.Errorf("ResolveUser(%q) expected error", arg)
		}
	}

	_, err := ResolveUser(ctx, users, "nobody@example.com")
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected wrapped ErrNotFound, got %v", err)
	}
}

func TestLoadBatchRequests(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch.yaml")
	data := `payments:
  - user_id: alice
    to_user_id: bob
    amount: "1.5"
    currency: ETH
    description: rent
  - payment_id: fixed-id
    user_id: alice
    to_address: "0xabc"
    amount: "250"
    currency: USDC
    metadata:
      invoice: "42"
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	reqs, err := LoadBatchRequests(path)
	if err != nil {
		t.Fatalf("LoadBatchRequests: %v", err)
	}
	if len(reqs) != 2 {
		t.Fatalf("expected 2 requests, got %d", len(reqs))
	}
	if !reqs[0].Amount.Equal(decimal.RequireFromString("1.5")) || reqs[0].ToUserId != "bob" || reqs[0].IsOnchain() {
		t.Errorf("unexpected first request: %+v", reqs[0])
	}
	if reqs[1].PaymentId != "fixed-id" || !reqs[1].IsOnchain() || reqs[1].Metadata["invoice"] != "42" {
		t.Errorf("unexpected second request: %+v", reqs[1])
	}
}

func TestParseBatchRequestsErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"missing user", "payments:\n  - amount: \"1\"\n    currency: ETH\n", "missing user_id"},
		{"missing currency", "payments:\n  - user_id: a\n    amount: \"1\"\n", "missing currency"},
		{"bad amount", "payments:\n  - user_id: a\n    amount: lots\n    currency: ETH\n", "invalid amount"},
		{"bad yaml", "payments: [", "unable to parse"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseBatchRequests([]byte(tt.data))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestFormatResult(t *testing.T) {
	fee := decimal.RequireFromString("0.015")
	ok := FormatResult(0, models.PaymentResult{
		Success:       true,
		TransactionId: "p-1",
		Status:        models.PaymentStatusPending,
		TxRef:         "w:k",
		EstimatedFee:  &fee,
	})
	for _, want := range []string{"#1", "PENDING", "p-1", "fee=0.015", "ref=w:k"} {
		if !strings.Contains(ok, want) {
			t.Errorf("FormatResult() = %q, missing %q", ok, want)
		}
	}

	failed := FormatResult(2, models.PaymentResult{ErrorCode: "insufficient_funds", Error: "insufficient funds"})
	if !strings.Contains(failed, "#3 FAILED") || !strings.Contains(failed, "insufficient_funds") {
		t.Errorf("unexpected failure line: %q", failed)
	}
}
