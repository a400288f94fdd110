package journal

import (
	"context"
	"strings"
	"testing"

	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
)

// ---------- Unit tests for pure helpers (no Formance stack needed) ----------

func TestFormanceAsset(t *testing.T) {
	tests := []struct {
		symbol string
		want   string
	}{
		{"USDC", "USDC/6"},
		{"BTC", "BTC/8"},
		{"ETH", "ETH/18"},
		{"UNKNOWN", "UNKNOWN/6"},
	}
	for _, tt := range tests {
		if got := formanceAsset(tt.symbol); got != tt.want {
			t.Errorf("formanceAsset(%q) = %q, want %q", tt.symbol, got, tt.want)
		}
	}
}

func TestSmallestUnit(t *testing.T) {
	tests := []struct {
		amount string
		symbol string
		want   string
	}{
		{"1.5", "USDC", "1500000"},
		{"0.01", "ETH", "10000000000000000"},
		{"0", "BTC", "0"},
	}
	for _, tt := range tests {
		if got := smallestUnit(decimal.RequireFromString(tt.amount), tt.symbol); got != tt.want {
			t.Errorf("smallestUnit(%s, %s) = %s, want %s", tt.amount, tt.symbol, got, tt.want)
		}
	}
}

func TestBuildScript_OnchainStableToken(t *testing.T) {
	record := &models.PaymentRecord{
		Id:          "pay-1",
		UserId:      "alice",
		Kind:        models.PaymentKindOnchain,
		Amount:      decimal.RequireFromString("50"),
		Currency:    "USDC",
		ToAddress:   " 0xABCdef ",
		ServiceFee:  decimal.RequireFromString("0.25"),
		GasFee:      decimal.RequireFromString("0.005"),
		FeeCurrency: "ETH",
		Status:      models.PaymentStatusCompleted,
	}

	script, vars, err := buildScript(record)
	if err != nil {
		t.Fatalf("buildScript failed: %v", err)
	}
	if !strings.Contains(script, "@external:$counterparty") {
		t.Error("expected withdrawal posting to the external account")
	}
	if !strings.Contains(script, "@platform:fees") || !strings.Contains(script, "@platform:gas") {
		t.Error("expected both fee postings")
	}
	if vars["counterparty"] != "0xabcdef" {
		t.Errorf("unexpected counterparty %q", vars["counterparty"])
	}
	if vars["asset"] != "USDC/6" || vars["fee_asset"] != "ETH/18" {
		t.Errorf("unexpected assets %q / %q", vars["asset"], vars["fee_asset"])
	}
	if vars["gas_fee"] != "5000000000000000" {
		t.Errorf("gas fee should use the fee currency precision, got %s", vars["gas_fee"])
	}
}

func TestBuildScript_DepositOmitsFees(t *testing.T) {
	record := &models.PaymentRecord{
		Id:              "dep-1",
		UserId:          "bob",
		Kind:            models.PaymentKindDeposit,
		Amount:          decimal.RequireFromString("2"),
		Currency:        "ETH",
		LinkedPaymentId: "pay-1",
	}

	script, vars, err := buildScript(record)
	if err != nil {
		t.Fatalf("buildScript failed: %v", err)
	}
	if strings.Contains(script, "@platform:") {
		t.Error("deposit without fees must not post fee legs")
	}
	if vars["counterparty"] != "pay-1" {
		t.Errorf("unexpected counterparty %q", vars["counterparty"])
	}
}

func TestBuildScript_Errors(t *testing.T) {
	if _, _, err := buildScript(&models.PaymentRecord{Id: "x", Kind: "refund"}); err == nil {
		t.Error("expected unknown kind to fail")
	}
	if _, _, err := buildScript(&models.PaymentRecord{Id: "x", Kind: models.PaymentKindInternal}); err == nil {
		t.Error("expected missing counterparty to fail")
	}
}

func TestIsConflictError(t *testing.T) {
	if isConflictError(nil) {
		t.Error("nil should not be a conflict error")
	}
}

type failingMirror struct{ calls int }

func (f *failingMirror) RecordPayment(context.Context, *models.PaymentRecord) error {
	f.calls++
	return context.DeadlineExceeded
}

func TestRecord_SwallowsErrors(t *testing.T) {
	m := &failingMirror{}
	Record(context.Background(), m, &models.PaymentRecord{Id: "pay-1"})
	Record(context.Background(), nil, &models.PaymentRecord{Id: "pay-2"})
	if m.calls != 1 {
		t.Errorf("expected one call, got %d", m.calls)
	}
	if err := (Nop{}).RecordPayment(context.Background(), nil); err != nil {
		t.Errorf("Nop returned %v", err)
	}
}
