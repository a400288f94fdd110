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

// Package metrics holds the Prometheus collectors shared by the processor and monitor.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "payments_processed_total",
		Help: "Payments processed, labeled by kind, currency and outcome",
	}, []string{"kind", "currency", "outcome"})

	PaymentDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "payments_process_duration_seconds",
		Help:    "Latency distribution of ProcessPayment",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"kind"})

	MonitorPassesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "monitor_passes_total",
		Help: "Reconciliation passes run by the transaction monitor",
	})

	MonitorPassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "monitor_pass_duration_seconds",
		Help:    "Latency distribution of reconciliation passes",
		Buckets: prometheus.DefBuckets,
	})

	MonitorOutcomesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "monitor_transactions_total",
		Help: "Monitored transactions checked, labeled by outcome",
	}, []string{"outcome"})

	MonitorPending = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "monitor_pending_transactions",
		Help: "Pending transactions seen by the last reconciliation pass",
	})
)

// Outcome labels
const (
	OutcomeCompleted = "completed"
	OutcomeSubmitted = "submitted"
	OutcomeRejected  = "rejected"
	OutcomeFailed    = "failed"
	OutcomeConfirmed = "confirmed"
	OutcomePending   = "pending"
	OutcomeError     = "error"
	OutcomeExpired   = "expired"
)
