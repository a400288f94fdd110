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

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"crypto-payments-go/internal/models"
)

func Load() (*models.Config, error) {
	cfg := &models.Config{
		Database: models.DatabaseConfig{
			Driver:           getEnvString("DATABASE_DRIVER", "sqlite"),
			Path:             getEnvString("DATABASE_PATH", "payments.db"),
			URL:              getEnvString("DATABASE_URL", ""),
			MaxOpenConns:     getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:     getEnvInt("DB_MAX_IDLE_CONNS", 5),
			CreateDummyUsers: getEnvBool("CREATE_DUMMY_USERS", false),
		},
		Prime: models.PrimeConfig{
			PortfolioId: getEnvString("PRIME_PORTFOLIO_ID", ""),
		},
		Monitor: models.MonitorConfig{
			Network:            getEnvString("MONITOR_NETWORK", "ethereum-mainnet"),
			BatchSize:          getEnvInt("MONITOR_BATCH_SIZE", 50),
			SweepSchedule:      getEnvString("MONITOR_SWEEP_SCHEDULE", "@every 15m"),
			WebhookConcurrency: getEnvInt("MONITOR_WEBHOOK_CONCURRENCY", 4),
		},
		Payments: models.PaymentsConfig{
			CurrenciesFile: getEnvString("CURRENCIES_FILE", ""),
		},
		Webhook: models.WebhookConfig{
			Secret: getEnvString("WEBHOOK_SECRET", ""),
		},
		Redis: models.RedisConfig{
			Addr:     getEnvString("REDIS_ADDR", ""),
			Password: getEnvString("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		RabbitMQ: models.RabbitMQConfig{
			URL:      getEnvString("RABBITMQ_URL", ""),
			Exchange: getEnvString("RABBITMQ_EXCHANGE", "payment_events"),
		},
		Formance: models.FormanceConfig{
			StackURL:     getEnvString("FORMANCE_STACK_URL", ""),
			ClientID:     getEnvString("FORMANCE_CLIENT_ID", ""),
			ClientSecret: getEnvString("FORMANCE_CLIENT_SECRET", ""),
			LedgerName:   getEnvString("FORMANCE_LEDGER", "crypto-payments"),
		},
		Metrics: models.MetricsConfig{
			Addr: getEnvString("METRICS_ADDR", ":9090"),
		},
	}

	var err error
	if cfg.Database.ConnMaxLifetime, err = getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Database.ConnMaxIdleTime, err = getEnvDuration("DB_CONN_MAX_IDLE_TIME", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Database.PingTimeout, err = getEnvDuration("DB_PING_TIMEOUT", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.Monitor.PollingInterval, err = getEnvDuration("MONITOR_POLLING_INTERVAL", 30*time.Second); err != nil {
		return nil, err
	}
	if cfg.Monitor.LookbackWindow, err = getEnvDuration("MONITOR_LOOKBACK_WINDOW", time.Hour); err != nil {
		return nil, err
	}
	if cfg.Monitor.MaxPendingAge, err = getEnvDuration("MONITOR_MAX_PENDING_AGE", 24*time.Hour); err != nil {
		return nil, err
	}
	if cfg.Monitor.StatusCacheTTL, err = getEnvDuration("STATUS_CACHE_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Payments.DuplicateWindow, err = getEnvDuration("PAYMENT_DUPLICATE_WINDOW", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.Payments.BatchDelay, err = getEnvDuration("PAYMENT_BATCH_DELAY", 100*time.Millisecond); err != nil {
		return nil, err
	}
	if cfg.Webhook.Timeout, err = getEnvDuration("WEBHOOK_TIMEOUT", 10*time.Second); err != nil {
		return nil, err
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *models.Config) error {
	switch cfg.Database.Driver {
	case "sqlite":
	case "postgres":
		if cfg.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q (want sqlite or postgres)", cfg.Database.Driver)
	}
	if cfg.Monitor.BatchSize <= 0 {
		return fmt.Errorf("MONITOR_BATCH_SIZE must be positive, got %d", cfg.Monitor.BatchSize)
	}
	if cfg.Monitor.WebhookConcurrency <= 0 {
		return fmt.Errorf("MONITOR_WEBHOOK_CONCURRENCY must be positive, got %d", cfg.Monitor.WebhookConcurrency)
	}
	if cfg.Monitor.PollingInterval <= 0 {
		return fmt.Errorf("MONITOR_POLLING_INTERVAL must be positive, got %v", cfg.Monitor.PollingInterval)
	}
	if cfg.Payments.BatchDelay < 0 {
		return fmt.Errorf("PAYMENT_BATCH_DELAY cannot be negative, got %v", cfg.Payments.BatchDelay)
	}
	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	if value := os.Getenv(key); value != "" {
		duration, err := time.ParseDuration(value)
		if err != nil {
			return 0, fmt.Errorf("invalid duration for %s: %q (%w)", key, value, err)
		}
		return duration, nil
	}
	return defaultValue, nil
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
