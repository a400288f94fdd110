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

package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-payments-go/internal/common"
	"crypto-payments-go/internal/config"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

func newMetricsServer(addr string, healthy func() bool) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if !healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"stopped"}`))
			return
		}
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}).Methods(http.MethodGet)

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func main() {
	once := flag.Bool("once", false, "Run a single reconciliation pass and exit")
	sweep := flag.Bool("sweep", false, "With --once, also run the stale-transaction sweep")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		_, _ = zap.NewProduction()
		zap.L().Fatal("Failed to load configuration", zap.Error(err))
	}

	_, loggerCleanup := common.InitializeLogger()
	defer loggerCleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zap.L().Info("Starting transaction monitor",
		zap.String("network", cfg.Monitor.Network),
		zap.Duration("polling_interval", cfg.Monitor.PollingInterval),
		zap.Duration("lookback_window", cfg.Monitor.LookbackWindow))

	services, err := common.InitializeServices(ctx, cfg)
	if err != nil {
		zap.L().Fatal("Failed to initialize services", zap.Error(err))
	}
	defer services.Close()

	if *once {
		summary, err := services.Monitor.RunOnce(ctx)
		if err != nil {
			zap.L().Fatal("Reconciliation pass failed", zap.Error(err))
		}
		zap.L().Info("Reconciliation pass complete",
			zap.Int("checked", summary.Checked),
			zap.Int("confirmed", summary.Confirmed),
			zap.Int("failed", summary.Failed),
			zap.Int("pending", summary.Pending))

		if *sweep {
			swept, err := services.Monitor.Sweep(ctx)
			if err != nil {
				zap.L().Fatal("Sweep failed", zap.Error(err))
			}
			zap.L().Info("Sweep complete",
				zap.Int("checked", swept.Checked),
				zap.Int("failed", swept.Failed))
		}
		return
	}

	if err := services.Monitor.Start(ctx); err != nil {
		zap.L().Fatal("Failed to start monitor", zap.Error(err))
	}

	var server *http.Server
	if cfg.Metrics.Addr != "" {
		server = newMetricsServer(cfg.Metrics.Addr, services.Monitor.Running)
		go func() {
			zap.L().Info("Metrics endpoint listening", zap.String("addr", cfg.Metrics.Addr))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				zap.L().Error("Metrics server failed", zap.Error(err))
			}
		}()
	}

	zap.L().Info("Monitor running")
	zap.L().Info("Press Ctrl+C to stop")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	zap.L().Info("Shutdown signal received, stopping monitor...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	done := make(chan struct{})
	go func() {
		services.Monitor.Stop()
		if server != nil {
			if err := server.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("Metrics server shutdown failed", zap.Error(err))
			}
		}
		close(done)
	}()

	select {
	case <-done:
		zap.L().Info("Monitor stopped gracefully")
	case <-shutdownCtx.Done():
		zap.L().Warn("Forced shutdown after timeout")
	}
}
