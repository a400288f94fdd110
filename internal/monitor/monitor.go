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

package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/journal"
	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/metrics"
	"crypto-payments-go/internal/store"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPollingInterval = 30 * time.Second
	DefaultLookbackWindow  = time.Hour
	DefaultBatchSize       = 50
	DefaultSweepSchedule   = "@every 15m"
	DefaultMaxPendingAge   = 24 * time.Hour

	// DefaultWebhookConcurrency bounds webhook deliveries in flight.
	DefaultWebhookConcurrency = 4
)

var ErrAlreadyRunning = errors.New("monitor already running")

// Notifier delivers an event to the owning user's webhooks.
type Notifier interface {
	Dispatch(ctx context.Context, event events.Event) error
}

// Params wires a Monitor. Store, Ledger and Network are required.
type Params struct {
	Store    store.PaymentStore
	Ledger   ledger.Client
	Cache    StatusCache
	Events   events.Publisher
	Webhooks Notifier
	Journal  journal.Mirror

	Network         string
	PollingInterval time.Duration
	LookbackWindow  time.Duration
	BatchSize       int
	SweepSchedule   string
	MaxPendingAge   time.Duration

	WebhookConcurrency int
}

// Monitor reconciles submitted on-chain payments against the ledger.
type Monitor struct {
	store    store.PaymentStore
	ledger   ledger.Client
	cache    StatusCache
	events   events.Publisher
	webhooks Notifier
	journal  journal.Mirror

	network         string
	pollingInterval time.Duration
	lookbackWindow  time.Duration
	batchSize       int
	sweepSchedule   string
	maxPendingAge   time.Duration

	// Webhook delivery runs off the pass, at most deliverySlots at a time.
	deliverySlots *semaphore.Weighted
	deliveries    sync.WaitGroup

	// Lifecycle state
	mutex    sync.Mutex
	running  bool
	cancel   context.CancelFunc
	sweeper  *cron.Cron
	stopChan chan struct{}
	doneChan chan struct{}

	now func() time.Time
}

func NewMonitor(params Params) (*Monitor, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("payment store is required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger client is required")
	}
	if params.Network == "" {
		return nil, fmt.Errorf("network is required")
	}

	m := &Monitor{
		store:           params.Store,
		ledger:          params.Ledger,
		cache:           params.Cache,
		events:          params.Events,
		webhooks:        params.Webhooks,
		journal:         params.Journal,
		network:         params.Network,
		pollingInterval: params.PollingInterval,
		lookbackWindow:  params.LookbackWindow,
		batchSize:       params.BatchSize,
		sweepSchedule:   params.SweepSchedule,
		maxPendingAge:   params.MaxPendingAge,
		now:             func() time.Time { return time.Now().UTC() },
	}
	if m.cache == nil {
		m.cache = NewMemoryCache(DefaultCacheTTL)
	}
	if m.events == nil {
		m.events = events.Nop{}
	}
	if m.journal == nil {
		m.journal = journal.Nop{}
	}
	if m.pollingInterval <= 0 {
		m.pollingInterval = DefaultPollingInterval
	}
	if m.lookbackWindow <= 0 {
		m.lookbackWindow = DefaultLookbackWindow
	}
	if m.batchSize <= 0 {
		m.batchSize = DefaultBatchSize
	}
	if m.sweepSchedule == "" {
		m.sweepSchedule = DefaultSweepSchedule
	}
	if m.maxPendingAge <= 0 {
		m.maxPendingAge = DefaultMaxPendingAge
	}
	concurrency := params.WebhookConcurrency
	if concurrency <= 0 {
		concurrency = DefaultWebhookConcurrency
	}
	m.deliverySlots = semaphore.NewWeighted(int64(concurrency))
	return m, nil
}

// Cache exposes the status cache so the processor can read what the monitor writes.
func (m *Monitor) Cache() StatusCache {
	return m.cache
}

// Start runs a reconciliation pass immediately and then every polling
// interval, and schedules the stale sweep.
func (m *Monitor) Start(ctx context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	runCtx, cancel := context.WithCancel(ctx)

	cronLogger := cron.PrintfLogger(zap.NewStdLog(zap.L()))
	sweeper := cron.New(cron.WithChain(cron.Recover(cronLogger)))
	if _, err := sweeper.AddFunc(m.sweepSchedule, func() { m.runSweep(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("invalid sweep schedule %q: %w", m.sweepSchedule, err)
	}

	m.cancel = cancel
	m.sweeper = sweeper
	m.stopChan = make(chan struct{})
	m.doneChan = make(chan struct{})
	m.running = true

	go m.pollLoop(runCtx, m.stopChan, m.doneChan)
	sweeper.Start()

	zap.L().Info("Transaction monitor started",
		zap.String("network", m.network),
		zap.Duration("polling_interval", m.pollingInterval),
		zap.Duration("lookback_window", m.lookbackWindow),
		zap.Int("batch_size", m.batchSize),
		zap.String("sweep_schedule", m.sweepSchedule))
	return nil
}

// Stop waits for an in-flight pass or sweep and any queued webhook
// deliveries to finish. Stopping a stopped
// monitor is a no-op.
func (m *Monitor) Stop() {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if !m.running {
		return
	}

	zap.L().Info("Stopping transaction monitor")
	close(m.stopChan)
	<-m.doneChan
	<-m.sweeper.Stop().Done()
	m.cancel()
	m.deliveries.Wait()
	m.running = false
	zap.L().Info("Transaction monitor stopped")
}

// Running reports whether the monitor has been started and not stopped.
func (m *Monitor) Running() bool {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return m.running
}

// pollLoop re-arms its timer only after a pass completes, so passes never overlap.
func (m *Monitor) pollLoop(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	m.runPass(ctx)

	timer := time.NewTimer(m.pollingInterval)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			select {
			case <-stop:
				return
			default:
			}
			m.runPass(ctx)
			timer.Reset(m.pollingInterval)
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (m *Monitor) runPass(ctx context.Context) {
	start := time.Now()
	summary, err := m.RunOnce(ctx)
	metrics.MonitorPassesTotal.Inc()
	metrics.MonitorPassDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		zap.L().Error("Reconciliation pass failed", zap.Error(err))
		return
	}
	if summary.Checked > 0 {
		zap.L().Info("Reconciliation pass completed",
			zap.Int("checked", summary.Checked),
			zap.Int("confirmed", summary.Confirmed),
			zap.Int("failed", summary.Failed),
			zap.Int("pending", summary.Pending),
			zap.Int("errors", summary.Errors),
			zap.Duration("duration", time.Since(start)))
	}
}

// AddTransaction starts tracking a submitted transaction. Re-adding a known
// txRef is a no-op.
func (m *Monitor) AddTransaction(ctx context.Context, txRef, userId, network, paymentId string) error {
	if network == "" {
		network = m.network
	}
	inserted, err := m.store.AddMonitoredTransaction(ctx, store.AddMonitoredParams{
		TxRef:     txRef,
		UserId:    userId,
		Network:   network,
		PaymentId: paymentId,
		CreatedAt: m.now(),
	})
	if err != nil {
		return fmt.Errorf("failed to add monitored transaction: %w", err)
	}
	if inserted {
		zap.L().Info("Monitoring transaction",
			zap.String("tx_ref", txRef),
			zap.String("user_id", userId),
			zap.String("payment_id", paymentId))
	}
	return nil
}
