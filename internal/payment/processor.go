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

package payment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/journal"
	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/metrics"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/policy"
	"crypto-payments-go/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultDuplicateWindow = 5 * time.Minute
	DefaultBatchDelay      = 100 * time.Millisecond

	ambiguousRecordTimeout = 10 * time.Second
)

// StatusLookup exposes the monitor's latest view of a ledger transaction.
type StatusLookup interface {
	Get(ctx context.Context, txRef string) (string, bool)
}

// Params wires a Processor. Store, Ledger and Policy are required.
type Params struct {
	Store           store.PaymentStore
	Ledger          ledger.Client
	Policy          *policy.Table
	Events          events.Publisher
	Journal         journal.Mirror
	StatusCache     StatusLookup
	DuplicateWindow time.Duration
	BatchDelay      time.Duration
}

// Processor validates payment intents, records them and dispatches them to
// an internal transfer or the external ledger.
type Processor struct {
	store           store.PaymentStore
	ledger          ledger.Client
	policy          *policy.Table
	events          events.Publisher
	journal         journal.Mirror
	statuses        StatusLookup
	duplicateWindow time.Duration
	batchDelay      time.Duration
	inflight        singleflight.Group
	now             func() time.Time
}

func NewProcessor(params Params) (*Processor, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("payment store is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if params.Policy == nil {
		return nil, fmt.Errorf("currency policy is required")
	}

	p := &Processor{
		store:           params.Store,
		ledger:          params.Ledger,
		policy:          params.Policy,
		events:          params.Events,
		journal:         params.Journal,
		statuses:        params.StatusCache,
		duplicateWindow: params.DuplicateWindow,
		batchDelay:      params.BatchDelay,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if p.events == nil {
		p.events = events.Nop{}
	}
	if p.journal == nil {
		p.journal = journal.Nop{}
	}
	if p.duplicateWindow <= 0 {
		p.duplicateWindow = DefaultDuplicateWindow
	}
	if p.batchDelay < 0 {
		p.batchDelay = DefaultBatchDelay
	}
	return p, nil
}

// ProcessPayment runs one payment end to end and reports the outcome.
func (p *Processor) ProcessPayment(ctx context.Context, req models.PaymentRequest) models.PaymentResult {
	start := time.Now()
	kind := requestKind(req)
	defer func() {
		metrics.PaymentDuration.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	}()

	currencyLabel := req.Currency
	if _, ok := p.policy.Lookup(req.Currency); !ok {
		currencyLabel = "unknown"
	}

	record, err := p.Submit(ctx, req)
	if err != nil {
		perr := asPaymentError(err)
		outcome := metrics.OutcomeRejected
		if perr.Code == CodeInternal || perr.Code == CodeAmbiguousSubmission {
			outcome = metrics.OutcomeFailed
		}
		metrics.PaymentsTotal.WithLabelValues(kind, currencyLabel, outcome).Inc()

		result := models.PaymentResult{
			Status:    models.PaymentStatusFailed,
			Error:     perr.Message,
			ErrorCode: perr.Code,
		}
		if record != nil {
			result.TransactionId = record.Id
		}
		return result
	}

	result := p.resultFor(record)
	outcome := metrics.OutcomeCompleted
	switch {
	case !result.Success:
		outcome = metrics.OutcomeFailed
	case record.Status == models.PaymentStatusPending:
		outcome = metrics.OutcomeSubmitted
	}
	metrics.PaymentsTotal.WithLabelValues(kind, currencyLabel, outcome).Inc()
	return result
}

// Submit is ProcessPayment with Go error semantics. Every returned error is
// a *Error. The record is non-nil whenever one was persisted.
func (p *Processor) Submit(ctx context.Context, req models.PaymentRequest) (*models.PaymentRecord, error) {
	req.ToAddress = strings.TrimSpace(req.ToAddress)
	if err := p.validate(req); err != nil {
		return nil, err
	}

	paymentId := req.PaymentId
	if paymentId == "" {
		paymentId = uuid.New().String()
	}

	v, err, shared := p.inflight.Do(req.UserId+"/"+paymentId, func() (any, error) {
		return p.submitOnce(ctx, req, paymentId)
	})
	if shared {
		zap.L().Debug("Joined in-flight payment", zap.String("payment_id", paymentId))
	}

	record, _ := v.(*models.PaymentRecord)
	if err != nil {
		return record, asPaymentError(err)
	}
	return record, nil
}

func (p *Processor) submitOnce(ctx context.Context, req models.PaymentRequest, paymentId string) (*models.PaymentRecord, error) {
	if req.PaymentId != "" {
		existing, err := p.store.GetPayment(ctx, paymentId)
		switch {
		case err == nil:
			if existing.UserId != req.UserId {
				return nil, newError(CodeValidation, "payment id already in use", nil)
			}
			zap.L().Info("Returning existing payment",
				zap.String("payment_id", existing.Id),
				zap.String("status", existing.Status))
			return existing, nil
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	return p.execute(ctx, req, paymentId)
}

func (p *Processor) validate(req models.PaymentRequest) error {
	switch {
	case req.UserId == "":
		return newError(CodeValidation, "user id is required", nil)
	case !req.Amount.IsPositive():
		return newError(CodeValidation, "amount must be positive", nil)
	case req.ToAddress == "" && req.ToUserId == "":
		return newError(CodeValidation, "a destination address or user is required", nil)
	case req.ToAddress != "" && req.ToUserId != "":
		return newError(CodeValidation, "only one of destination address and user may be set", nil)
	case req.ToUserId == req.UserId:
		return newError(CodeValidation, "cannot transfer to yourself", nil)
	}
	currency, ok := p.policy.Lookup(req.Currency)
	if !ok {
		return newError(CodeValidation, fmt.Sprintf("unsupported currency %q", req.Currency), nil)
	}
	if req.IsOnchain() && !currency.ValidAddress(req.ToAddress) {
		return newError(CodeValidation, fmt.Sprintf("invalid %s address %q", currency.Network, req.ToAddress), nil)
	}
	return nil
}

type walletKey struct {
	userId   string
	currency string
}

// errAmbiguousSend aborts the store transaction when the ledger may have
// accepted the transfer.
type errAmbiguousSend struct {
	cause error
}

func (e *errAmbiguousSend) Error() string {
	return "ambiguous submission: " + e.cause.Error()
}

func (p *Processor) execute(ctx context.Context, req models.PaymentRequest, paymentId string) (*models.PaymentRecord, error) {
	currency, _ := p.policy.Lookup(req.Currency)
	fees, err := p.policy.ComputeFees(req.Amount, req.Currency)
	if err != nil {
		return nil, newError(CodeValidation, err.Error(), nil)
	}

	now := p.now()
	record := &models.PaymentRecord{
		Id:          paymentId,
		UserId:      req.UserId,
		Kind:        requestKind(req),
		Amount:      req.Amount,
		Currency:    req.Currency,
		ToAddress:   req.ToAddress,
		ToUserId:    req.ToUserId,
		Description: req.Description,
		Status:      models.PaymentStatusPending,
		GasFee:      fees.Gas,
		ServiceFee:  fees.Service,
		TotalFee:    fees.Total,
		FeeCurrency: fees.FeeCurrency,
		CreatedAt:   now,
	}
	debits := fees.Debits(req.Amount, req.Currency)

	var counterpart *models.PaymentRecord
	err = p.store.WithTx(ctx, func(tx store.PaymentTx) error {
		keys := make([]walletKey, 0, 5)
		for _, cur := range sortedCurrencies(debits) {
			keys = append(keys, walletKey{req.UserId, cur})
		}
		if !req.IsOnchain() {
			keys = append(keys,
				walletKey{req.ToUserId, req.Currency},
				walletKey{models.PlatformUserId, req.Currency},
				walletKey{models.PlatformUserId, fees.FeeCurrency})
		}
		wallets, err := p.lockWallets(ctx, tx, req, keys)
		if err != nil {
			return err
		}

		// Checked under the source wallet lock so a concurrent identical
		// request sees this one once it commits.
		dup, err := tx.FindRecentDuplicate(ctx, store.DuplicateQuery{
			UserId:      req.UserId,
			Amount:      req.Amount,
			Currency:    req.Currency,
			Destination: req.Destination(),
			Since:       now.Add(-p.duplicateWindow),
		})
		if err == nil {
			return newError(CodeDuplicateRequest, fmt.Sprintf("an identical payment (%s) is already pending", dup.Id), nil)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		if err := p.checkAvailable(ctx, tx, req.UserId, debits, wallets); err != nil {
			return err
		}
		if err := p.checkLimits(ctx, tx, req, now); err != nil {
			return err
		}

		if err := tx.InsertPayment(ctx, record); err != nil {
			if errors.Is(err, store.ErrDuplicatePayment) {
				return newError(CodeDuplicateRequest, "payment id already exists", err)
			}
			return err
		}

		if !req.IsOnchain() {
			return p.settleInternal(ctx, tx, record, fees, debits, wallets)
		}
		counterpart, err = p.dispatchOnchain(ctx, tx, record, currency, wallets[walletKey{req.UserId, req.Currency}])
		return err
	})

	var ambiguous *errAmbiguousSend
	if errors.As(err, &ambiguous) {
		return p.recordAmbiguous(ctx, record, ambiguous.cause)
	}

	emitCtx := context.WithoutCancel(ctx)
	if err != nil {
		perr := asPaymentError(err)
		if perr.Code == CodeInternal {
			zap.L().Error("Payment transaction failed",
				zap.String("payment_id", record.Id),
				zap.String("user_id", record.UserId),
				zap.Error(err))
		} else {
			zap.L().Info("Payment rejected",
				zap.String("payment_id", record.Id),
				zap.String("user_id", record.UserId),
				zap.String("code", perr.Code),
				zap.String("reason", perr.Message))
		}
		if perr.Code != CodeDuplicateRequest {
			failed := *record
			failed.Status = models.PaymentStatusFailed
			failed.ErrorMessage = perr.Message
			events.Emit(emitCtx, p.events, events.FromRecord(events.TypePaymentFailed, &failed))
		}
		return nil, perr
	}

	if record.Status == models.PaymentStatusCompleted {
		zap.L().Info("Internal transfer completed",
			zap.String("payment_id", record.Id),
			zap.String("from_user_id", record.UserId),
			zap.String("to_user_id", record.ToUserId),
			zap.String("amount", record.Amount.String()),
			zap.String("currency", record.Currency),
			zap.String("total_fee", record.TotalFee.String()))
		events.Emit(emitCtx, p.events, events.FromRecord(events.TypePaymentCompleted, record))
		journal.Record(emitCtx, p.journal, record)
		return record, nil
	}

	zap.L().Info("On-chain payment submitted",
		zap.String("payment_id", record.Id),
		zap.String("user_id", record.UserId),
		zap.String("tx_ref", record.ExternalTxRef),
		zap.String("amount", record.Amount.String()),
		zap.String("currency", record.Currency))
	events.Emit(emitCtx, p.events, events.FromRecord(events.TypePaymentSubmitted, record))
	if counterpart != nil {
		events.Emit(emitCtx, p.events, events.FromRecord(events.TypePaymentSubmitted, counterpart))
	}
	return record, nil
}

// lockWallets locks wallets in (user, currency) order. Platform fee wallets
// are created on first use.
func (p *Processor) lockWallets(ctx context.Context, tx store.PaymentTx, req models.PaymentRequest, keys []walletKey) (map[walletKey]*models.Wallet, error) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].userId != keys[j].userId {
			return keys[i].userId < keys[j].userId
		}
		return keys[i].currency < keys[j].currency
	})

	wallets := make(map[walletKey]*models.Wallet, len(keys))
	for _, k := range keys {
		if _, done := wallets[k]; done {
			continue
		}

		var (
			w   *models.Wallet
			err error
		)
		if k.userId == models.PlatformUserId {
			c, _ := p.policy.Lookup(k.currency)
			w, err = tx.EnsureWallet(ctx, store.CreateWalletParams{UserId: k.userId, Currency: k.currency, Network: c.Network})
		} else {
			w, err = tx.LockWallet(ctx, k.userId, k.currency)
		}

		if errors.Is(err, store.ErrNotFound) {
			if k.userId == req.UserId {
				return nil, newError(CodeWalletNotFound, fmt.Sprintf("no %s wallet for user %s", k.currency, k.userId), err)
			}
			return nil, newError(CodeWalletNotFound, fmt.Sprintf("recipient %s has no %s wallet", k.userId, k.currency), err)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to lock wallet %s/%s: %w", k.userId, k.currency, err)
		}
		wallets[k] = w
	}
	return wallets, nil
}

// checkAvailable requires every debited wallet to cover its share after
// subtracting what pending on-chain payments have reserved.
func (p *Processor) checkAvailable(ctx context.Context, tx store.PaymentTx, userId string, debits map[string]decimal.Decimal, wallets map[walletKey]*models.Wallet) error {
	for _, cur := range sortedCurrencies(debits) {
		reserved, err := tx.SumReserved(ctx, userId, cur)
		if err != nil {
			return err
		}
		available := wallets[walletKey{userId, cur}].Balance.Sub(reserved)
		if available.LessThan(debits[cur]) {
			return newError(CodeInsufficientFunds,
				fmt.Sprintf("insufficient %s balance: available %s, required %s", cur, available.String(), debits[cur].String()), nil)
		}
	}
	return nil
}

func (p *Processor) checkLimits(ctx context.Context, tx store.PaymentTx, req models.PaymentRequest, now time.Time) error {
	hourly, err := tx.SumOutgoing(ctx, req.UserId, req.Currency, now.Add(-time.Hour))
	if err != nil {
		return err
	}
	daily, err := tx.SumOutgoing(ctx, req.UserId, req.Currency, now.Add(-24*time.Hour))
	if err != nil {
		return err
	}

	check := p.policy.CheckSpendingLimits(policy.SpendingWindow{Hourly: hourly, Daily: daily}, req.Amount, req.Currency)
	if !check.Allowed {
		return newError(CodeLimitExceeded, check.Reason, nil)
	}
	return nil
}

// settleInternal moves funds between two local wallets and books the fees
// to the platform account.
func (p *Processor) settleInternal(ctx context.Context, tx store.PaymentTx, record *models.PaymentRecord, fees policy.Fees, debits map[string]decimal.Decimal, wallets map[walletKey]*models.Wallet) error {
	feeCredits := map[string]decimal.Decimal{record.Currency: fees.Service}
	feeCredits[fees.FeeCurrency] = feeCredits[fees.FeeCurrency].Add(fees.Gas)

	var entries []models.JournalEntry
	for _, cur := range sortedCurrencies(debits) {
		if _, err := tx.AdjustBalance(ctx, wallets[walletKey{record.UserId, cur}], debits[cur].Neg()); err != nil {
			return err
		}
		entries = append(entries, models.JournalEntry{
			PaymentId:    record.Id,
			AccountType:  models.AccountTypeUser,
			AccountId:    record.UserId,
			Currency:     cur,
			DebitAmount:  debits[cur],
			CreditAmount: decimal.Zero,
		})
	}

	if _, err := tx.AdjustBalance(ctx, wallets[walletKey{record.ToUserId, record.Currency}], record.Amount); err != nil {
		return err
	}
	entries = append(entries, models.JournalEntry{
		PaymentId:    record.Id,
		AccountType:  models.AccountTypeUser,
		AccountId:    record.ToUserId,
		Currency:     record.Currency,
		DebitAmount:  decimal.Zero,
		CreditAmount: record.Amount,
	})

	for _, cur := range sortedCurrencies(feeCredits) {
		credit := feeCredits[cur]
		if !credit.IsPositive() {
			continue
		}
		if _, err := tx.AdjustBalance(ctx, wallets[walletKey{models.PlatformUserId, cur}], credit); err != nil {
			return err
		}
		entries = append(entries, models.JournalEntry{
			PaymentId:    record.Id,
			AccountType:  models.AccountTypePlatform,
			AccountId:    models.PlatformUserId,
			Currency:     cur,
			DebitAmount:  decimal.Zero,
			CreditAmount: credit,
		})
	}

	if err := tx.AddJournalEntries(ctx, entries); err != nil {
		return err
	}

	completedAt := p.now()
	if err := tx.CompletePayment(ctx, record.Id, "", completedAt); err != nil {
		return err
	}
	record.Status = models.PaymentStatusCompleted
	record.CompletedAt = &completedAt
	return nil
}

// dispatchOnchain submits the transfer to the ledger and registers it with
// the monitor. A send to another platform user's address also records a
// linked pending deposit for that user.
func (p *Processor) dispatchOnchain(ctx context.Context, tx store.PaymentTx, record *models.PaymentRecord, currency policy.Currency, source *models.Wallet) (*models.PaymentRecord, error) {
	if source.LedgerAccount == "" {
		return nil, newError(CodeWalletNotFound, fmt.Sprintf("%s wallet has no ledger account", record.Currency), nil)
	}

	receiving, err := tx.FindWalletByAddress(ctx, record.ToAddress, record.Currency)
	switch {
	case err == nil && receiving.UserId == record.UserId:
		return nil, newError(CodeValidation, "cannot send to your own address", nil)
	case err != nil && !errors.Is(err, store.ErrNotFound):
		return nil, err
	case err != nil:
		receiving = nil
	}

	txRef, err := p.ledger.Send(ctx, models.LedgerTransfer{
		FromAccount:    source.LedgerAccount,
		ToAddress:      record.ToAddress,
		Amount:         record.Amount,
		Currency:       record.Currency,
		IdempotencyKey: record.Id,
	}, currency.Network)
	if err != nil {
		if ledger.IsAmbiguous(err) {
			return nil, &errAmbiguousSend{cause: err}
		}
		return nil, newError(CodeDispatch, "ledger rejected the transfer", fmt.Errorf("%w: %w", ErrDispatch, err))
	}

	if err := tx.SetPaymentTxRef(ctx, record.Id, txRef); err != nil {
		return nil, err
	}
	record.ExternalTxRef = txRef

	if _, err := tx.InsertMonitored(ctx, store.AddMonitoredParams{
		TxRef:     txRef,
		UserId:    record.UserId,
		Network:   currency.Network,
		PaymentId: record.Id,
		CreatedAt: record.CreatedAt,
	}); err != nil {
		return nil, err
	}

	if receiving == nil {
		return nil, nil
	}

	deposit := &models.PaymentRecord{
		Id:              uuid.New().String(),
		UserId:          receiving.UserId,
		Kind:            models.PaymentKindDeposit,
		Amount:          record.Amount,
		Currency:        record.Currency,
		ToAddress:       record.ToAddress,
		ToUserId:        receiving.UserId,
		Description:     "deposit from " + record.UserId,
		Status:          models.PaymentStatusPending,
		GasFee:          decimal.Zero,
		ServiceFee:      decimal.Zero,
		TotalFee:        decimal.Zero,
		FeeCurrency:     record.FeeCurrency,
		ExternalTxRef:   txRef,
		LinkedPaymentId: record.Id,
		CreatedAt:       record.CreatedAt,
	}
	if err := tx.InsertPayment(ctx, deposit); err != nil {
		return nil, err
	}
	zap.L().Info("Linked deposit recorded",
		zap.String("payment_id", record.Id),
		zap.String("deposit_id", deposit.Id),
		zap.String("to_user_id", receiving.UserId))
	return deposit, nil
}

// recordAmbiguous persists a payment whose submission outcome is unknown as
// failed. It is never retried automatically.
func (p *Processor) recordAmbiguous(ctx context.Context, record *models.PaymentRecord, cause error) (*models.PaymentRecord, error) {
	failedAt := p.now()
	record.Status = models.PaymentStatusFailed
	record.ErrorMessage = "ambiguous submission: ledger outcome unknown, operator reconciliation required"
	record.CompletedAt = &failedAt

	zap.L().Error("Ambiguous on-chain submission",
		zap.String("payment_id", record.Id),
		zap.String("user_id", record.UserId),
		zap.String("amount", record.Amount.String()),
		zap.String("currency", record.Currency),
		zap.Error(cause))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ambiguousRecordTimeout)
	defer cancel()

	err := p.store.WithTx(writeCtx, func(tx store.PaymentTx) error {
		return tx.InsertPayment(writeCtx, record)
	})
	if err != nil {
		zap.L().Error("Failed to record ambiguous payment", zap.String("payment_id", record.Id), zap.Error(err))
		return nil, newError(CodeInternal, "internal error", err)
	}

	events.Emit(writeCtx, p.events, events.FromRecord(events.TypePaymentFailed, record))
	return record, newError(CodeAmbiguousSubmission, record.ErrorMessage, fmt.Errorf("%w: %w", ErrAmbiguousSubmission, cause))
}

func (p *Processor) resultFor(record *models.PaymentRecord) models.PaymentResult {
	fee := record.TotalFee
	result := models.PaymentResult{
		Success:       record.Status == models.PaymentStatusPending || record.Status == models.PaymentStatusCompleted,
		TransactionId: record.Id,
		TxRef:         record.ExternalTxRef,
		Status:        record.Status,
		Error:         record.ErrorMessage,
		EstimatedFee:  &fee,
	}
	if record.Kind == models.PaymentKindOnchain {
		if c, ok := p.policy.Lookup(record.Currency); ok {
			result.EstimatedTime = c.EstimatedConfirmation
		}
	}
	return result
}

func requestKind(req models.PaymentRequest) string {
	if req.IsOnchain() {
		return models.PaymentKindOnchain
	}
	return models.PaymentKindInternal
}

func sortedCurrencies(m map[string]decimal.Decimal) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
