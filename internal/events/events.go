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

package events

import (
	"context"
	"errors"
	"time"

	"crypto-payments-go/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Event types
const (
	TypePaymentSubmitted = "payment.submitted"
	TypePaymentCompleted = "payment.completed"
	TypePaymentFailed    = "payment.failed"
)

// Event is the payload published for every payment state change.
type Event struct {
	Type       string          `json:"type"`
	PaymentId  string          `json:"payment_id"`
	UserId     string          `json:"user_id"`
	Kind       string          `json:"kind,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	TxRef      string          `json:"tx_ref,omitempty"`
	Status     string          `json:"status"`
	Error      string          `json:"error,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// FromRecord builds an event of the given type from a payment record.
func FromRecord(eventType string, p *models.PaymentRecord) Event {
	return Event{
		Type:       eventType,
		PaymentId:  p.Id,
		UserId:     p.UserId,
		Kind:       p.Kind,
		Amount:     p.Amount,
		Currency:   p.Currency,
		TxRef:      p.ExternalTxRef,
		Status:     p.Status,
		Error:      p.ErrorMessage,
		OccurredAt: time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Emit publishes and logs failures. Event delivery never fails the caller.
func Emit(ctx context.Context, p Publisher, event Event) {
	if p == nil {
		return
	}
	if err := p.Publish(ctx, event); err != nil {
		zap.L().Warn("Failed to publish event",
			zap.String("type", event.Type),
			zap.String("payment_id", event.PaymentId),
			zap.Error(err))
	}
}
