package main

import (
	"context"
	"testing"

	"crypto-payments-go/internal/events"
)

func TestCollectEvents(t *testing.T) {
	bus := events.NewBus()
	defer bus.Close()
	ctx := context.Background()

	stop := collectEvents(bus)
	published := []events.Event{
		{Type: events.TypePaymentSubmitted, PaymentId: "p1"},
		{Type: events.TypePaymentCompleted, PaymentId: "p2"},
		{Type: events.TypePaymentFailed, PaymentId: "p3", Error: "insufficient funds"},
	}
	for _, e := range published {
		if err := bus.Publish(ctx, e); err != nil {
			t.Fatalf("Publish failed: %v", err)
		}
	}

	received := stop()
	if len(received) != len(published) {
		t.Fatalf("Expected %d events, got %d", len(published), len(received))
	}
	for i, e := range received {
		if e.Type != published[i].Type || e.PaymentId != published[i].PaymentId {
			t.Errorf("Event %d: expected %s %s, got %s %s",
				i, published[i].Type, published[i].PaymentId, e.Type, e.PaymentId)
		}
	}

	if err := bus.Publish(ctx, events.Event{Type: events.TypePaymentCompleted, PaymentId: "late"}); err != nil {
		t.Fatalf("Publish after unsubscribe failed: %v", err)
	}
}
