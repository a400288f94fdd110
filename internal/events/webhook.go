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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"crypto-payments-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body.
const SignatureHeader = "X-Signature"

// ListenerSource returns the active webhook listeners of a user.
type ListenerSource interface {
	GetWebhookListeners(ctx context.Context, userId string) ([]models.WebhookListener, error)
}

// WebhookDispatcher POSTs signed events to the listeners registered by the
// event's owner.
type WebhookDispatcher struct {
	listeners ListenerSource
	secret    []byte
	client    *http.Client
}

func NewWebhookDispatcher(listeners ListenerSource, secret string, timeout time.Duration) (*WebhookDispatcher, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   5 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 5 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure webhook transport: %w", err)
	}

	return &WebhookDispatcher{
		listeners: listeners,
		secret:    []byte(secret),
		client:    &http.Client{Transport: tr, Timeout: timeout},
	}, nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret, body []byte) string {
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(secret, body []byte, signature string) bool {
	expected, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(body)
	return hmac.Equal(mac.Sum(nil), expected)
}

// Dispatch delivers event to every listener of its user. Each delivery is
// attempted; the joined delivery errors are returned.
func (d *WebhookDispatcher) Dispatch(ctx context.Context, event Event) error {
	listeners, err := d.listeners.GetWebhookListeners(ctx, event.UserId)
	if err != nil {
		return fmt.Errorf("failed to load webhook listeners: %w", err)
	}
	if len(listeners) == 0 {
		return nil
	}

	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	signature := Sign(d.secret, body)

	var errs []error
	for _, l := range listeners {
		if err := d.post(ctx, l.URL, body, signature); err != nil {
			zap.L().Warn("Webhook delivery failed",
				zap.String("webhook_id", l.Id),
				zap.String("payment_id", event.PaymentId),
				zap.Error(err))
			errs = append(errs, err)
			continue
		}
		zap.L().Debug("Webhook delivered",
			zap.String("webhook_id", l.Id),
			zap.String("type", event.Type),
			zap.String("payment_id", event.PaymentId))
	}
	return errors.Join(errs...)
}

func (d *WebhookDispatcher) post(ctx context.Context, url string, body []byte, signature string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(SignatureHeader, signature)

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post to %s failed: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
