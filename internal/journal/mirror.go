package journal

import (
	"context"

	"crypto-payments-go/internal/models"

	"go.uber.org/zap"
)

// Mirror copies terminal payments into an external double-entry journal.
type Mirror interface {
	RecordPayment(ctx context.Context, record *models.PaymentRecord) error
}

// Nop discards every payment.
type Nop struct{}

func (Nop) RecordPayment(context.Context, *models.PaymentRecord) error { return nil }

// Record mirrors a payment and logs failures. The local store remains the
// source of truth, so a mirror error never fails the caller.
func Record(ctx context.Context, m Mirror, record *models.PaymentRecord) {
	if m == nil {
		return
	}
	if err := m.RecordPayment(ctx, record); err != nil {
		zap.L().Warn("Failed to mirror payment to journal",
			zap.String("payment_id", record.Id),
			zap.String("kind", record.Kind),
			zap.Error(err))
	}
}
