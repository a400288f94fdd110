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

package models

import "time"

// Config represents the application configuration
type Config struct {
	Database DatabaseConfig
	Prime    PrimeConfig
	Monitor  MonitorConfig
	Payments PaymentsConfig
	Webhook  WebhookConfig
	Redis    RedisConfig
	RabbitMQ RabbitMQConfig
	Formance FormanceConfig
	Metrics  MetricsConfig
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Driver           string // "sqlite" or "postgres"
	Path             string
	URL              string
	MaxOpenConns     int
	MaxIdleConns     int
	ConnMaxLifetime  time.Duration
	ConnMaxIdleTime  time.Duration
	PingTimeout      time.Duration
	CreateDummyUsers bool
}

// PrimeConfig selects the Coinbase Prime portfolio used as the external ledger.
// Credentials are read separately from PRIME_ACCESS_KEY, PRIME_PASSPHRASE and
// PRIME_SIGNING_KEY.
type PrimeConfig struct {
	PortfolioId string
}

// MonitorConfig holds transaction monitor settings
type MonitorConfig struct {
	Network         string
	PollingInterval time.Duration
	LookbackWindow  time.Duration
	BatchSize       int
	SweepSchedule   string
	MaxPendingAge   time.Duration
	StatusCacheTTL  time.Duration

	WebhookConcurrency int
}

// PaymentsConfig holds payment processor settings
type PaymentsConfig struct {
	DuplicateWindow time.Duration
	BatchDelay      time.Duration
	CurrenciesFile  string
}

// WebhookConfig holds outbound webhook settings
type WebhookConfig struct {
	Secret  string
	Timeout time.Duration
}

// RedisConfig holds the optional shared status cache settings
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// RabbitMQConfig holds the optional event publisher settings
type RabbitMQConfig struct {
	URL      string
	Exchange string
}

// FormanceConfig holds the optional journal mirror settings
type FormanceConfig struct {
	StackURL     string
	ClientID     string
	ClientSecret string
	LedgerName   string
}

// MetricsConfig holds the Prometheus endpoint settings
type MetricsConfig struct {
	Addr string
}
