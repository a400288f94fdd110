package journal

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crypto-payments-go/internal/models"

	v3 "github.com/formancehq/formance-sdk-go/v3"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/operations"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/sdkerrors"
	"github.com/formancehq/formance-sdk-go/v3/pkg/models/shared"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const defaultLedgerName = "crypto-payments"

// Compile-time check: *FormanceMirror must satisfy Mirror.
var _ Mirror = (*FormanceMirror)(nil)

// assetPrecision maps currency symbols to their decimal precision.
var assetPrecision = map[string]int{
	"USDC": 6,
	"USDT": 6,
	"BTC":  8,
	"ETH":  18,
	"SOL":  9,
}

// ---------------------------------------------------------------------------
// Numscript fragments. A payment is one Formance transaction whose postings
// are assembled from these sends; zero-amount legs are left out.
// ---------------------------------------------------------------------------

const numscriptVars = `vars {
  asset $asset
  asset $fee_asset
  number $amount
  number $service_fee
  number $gas_fee
  account $user_id
  account $counterparty
  string $payment_id
  string $payment_kind
  string $external_tx_ref
}
`

const numscriptInternalSend = `
send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @users:$counterparty
)
`

const numscriptWithdrawalSend = `
send [$asset $amount] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @external:$counterparty
)
`

const numscriptDepositSend = `
send [$asset $amount] (
  source = @external:$counterparty allowing unbounded overdraft
  destination = @users:$user_id
)
`

const numscriptServiceFee = `
send [$asset $service_fee] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @platform:fees
)
`

const numscriptGasFee = `
send [$fee_asset $gas_fee] (
  source = @users:$user_id allowing unbounded overdraft
  destination = @platform:gas
)
`

const numscriptMeta = `
set_tx_meta("payment_id", $payment_id)
set_tx_meta("payment_kind", $payment_kind)
set_tx_meta("external_tx_ref", $external_tx_ref)
`

// FormanceMirror records completed payments in a Formance Stack ledger.
type FormanceMirror struct {
	client *v3.Formance
	ledger string
}

// NewFormanceMirror connects to the stack and creates the ledger if it doesn't already exist.
func NewFormanceMirror(ctx context.Context, cfg models.FormanceConfig) (*FormanceMirror, error) {
	if cfg.StackURL == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("formance config requires StackURL, ClientID, and ClientSecret")
	}
	if cfg.LedgerName == "" {
		cfg.LedgerName = defaultLedgerName
	}

	zap.L().Info("Connecting to Formance Stack",
		zap.String("stack_url", cfg.StackURL),
		zap.String("ledger", cfg.LedgerName))

	client := v3.New(
		v3.WithServerURL(cfg.StackURL),
		v3.WithSecurity(shared.Security{
			ClientID:     v3.Pointer(cfg.ClientID),
			ClientSecret: v3.Pointer(cfg.ClientSecret),
		}),
	)

	m := &FormanceMirror{client: client, ledger: cfg.LedgerName}
	if err := m.ensureLedger(ctx); err != nil {
		return nil, fmt.Errorf("failed to ensure ledger exists: %w", err)
	}

	zap.L().Info("Formance mirror initialized", zap.String("ledger", cfg.LedgerName))
	return m, nil
}

func (m *FormanceMirror) ensureLedger(ctx context.Context) error {
	_, err := m.client.Ledger.V2.CreateLedger(ctx, operations.V2CreateLedgerRequest{
		Ledger: m.ledger,
		V2CreateLedgerRequest: shared.V2CreateLedgerRequest{
			Metadata: map[string]string{
				"application": defaultLedgerName,
			},
		},
	})
	if err != nil {
		var apiErr *sdkerrors.V2ErrorResponse
		if errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumLedgerAlreadyExists {
			zap.L().Info("Ledger already exists", zap.String("ledger", m.ledger))
			return nil
		}
		return err
	}
	zap.L().Info("Ledger created", zap.String("ledger", m.ledger))
	return nil
}

// RecordPayment posts a completed payment under its payment id as reference.
// Payments that are not completed are skipped; a replay is a no-op.
func (m *FormanceMirror) RecordPayment(ctx context.Context, record *models.PaymentRecord) error {
	if record.Status != models.PaymentStatusCompleted {
		return nil
	}

	script, vars, err := buildScript(record)
	if err != nil {
		return err
	}

	_, err = m.client.Ledger.V2.CreateTransaction(ctx, operations.V2CreateTransactionRequest{
		Ledger: m.ledger,
		V2PostTransaction: shared.V2PostTransaction{
			Reference: strPtr(record.Id),
			Script: &shared.V2PostTransactionScript{
				Plain: script,
				Vars:  vars,
			},
		},
	})
	if err != nil {
		if isConflictError(err) {
			zap.L().Debug("Payment already mirrored", zap.String("payment_id", record.Id))
			return nil
		}
		return fmt.Errorf("error mirroring payment %s: %w", record.Id, err)
	}

	zap.L().Info("Payment mirrored to Formance",
		zap.String("payment_id", record.Id),
		zap.String("kind", record.Kind),
		zap.String("amount", record.Amount.String()),
		zap.String("currency", record.Currency))
	return nil
}

// buildScript assembles the Numscript program and its variables for a payment.
func buildScript(record *models.PaymentRecord) (string, map[string]string, error) {
	var (
		b            strings.Builder
		counterparty string
	)
	b.WriteString(numscriptVars)

	switch record.Kind {
	case models.PaymentKindInternal:
		b.WriteString(numscriptInternalSend)
		counterparty = record.ToUserId
	case models.PaymentKindOnchain:
		b.WriteString(numscriptWithdrawalSend)
		counterparty = accountSegment(record.ToAddress)
	case models.PaymentKindDeposit:
		b.WriteString(numscriptDepositSend)
		counterparty = record.LinkedPaymentId
	default:
		return "", nil, fmt.Errorf("unknown payment kind %q", record.Kind)
	}
	if counterparty == "" {
		return "", nil, fmt.Errorf("payment %s has no counterparty", record.Id)
	}

	if record.ServiceFee.IsPositive() {
		b.WriteString(numscriptServiceFee)
	}
	if record.GasFee.IsPositive() {
		b.WriteString(numscriptGasFee)
	}
	b.WriteString(numscriptMeta)

	feeCurrency := record.FeeCurrency
	if feeCurrency == "" {
		feeCurrency = record.Currency
	}

	vars := map[string]string{
		"asset":           formanceAsset(record.Currency),
		"fee_asset":       formanceAsset(feeCurrency),
		"amount":          smallestUnit(record.Amount, record.Currency),
		"service_fee":     smallestUnit(record.ServiceFee, record.Currency),
		"gas_fee":         smallestUnit(record.GasFee, feeCurrency),
		"user_id":         record.UserId,
		"counterparty":    counterparty,
		"payment_id":      record.Id,
		"payment_kind":    record.Kind,
		"external_tx_ref": record.ExternalTxRef,
	}
	return b.String(), vars, nil
}

// ---------- helpers ----------

// formanceAsset returns the Formance UMN notation, e.g. "USDC/6".
func formanceAsset(symbol string) string {
	return fmt.Sprintf("%s/%d", symbol, precisionFor(symbol))
}

func precisionFor(symbol string) int {
	if p, ok := assetPrecision[symbol]; ok {
		return p
	}
	return 6
}

func smallestUnit(amount decimal.Decimal, symbol string) string {
	return amount.Shift(int32(precisionFor(symbol))).BigInt().String()
}

// accountSegment makes an address usable inside a Formance account path.
func accountSegment(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// isConflictError checks whether a Formance SDK error is a CONFLICT (duplicate reference).
func isConflictError(err error) bool {
	var apiErr *sdkerrors.V2ErrorResponse
	return errors.As(err, &apiErr) && apiErr.ErrorCode == shared.V2ErrorsEnumConflict
}

func strPtr(s string) *string { return &s }
