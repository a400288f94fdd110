package common

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"crypto-payments-go/internal/database"
	"crypto-payments-go/internal/events"
	"crypto-payments-go/internal/journal"
	"crypto-payments-go/internal/ledger"
	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/monitor"
	"crypto-payments-go/internal/payment"
	"crypto-payments-go/internal/policy"

	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisPingTimeout = 5 * time.Second

// init loads environment variables from .env file if it exists
func init() {
	// Environment variables can also be set via other means (shell export, docker, etc.)
	if err := godotenv.Load(); err != nil {
		log.Printf("Note: No .env file found or unable to load it: %v\n", err)
		log.Println("Make sure to set environment variables via export or other means")
	} else {
		log.Println("✓ Loaded environment variables from .env file")
	}
}

// Services holds everything a command needs to process and monitor payments.
type Services struct {
	DbService   *database.Service
	Ledger      ledger.Client
	Policy      *policy.Table
	Bus         *events.Bus
	StatusCache monitor.StatusCache
	Processor   *payment.Processor
	Monitor     *monitor.Monitor

	closers []func()
}

func InitializeLogger() (*zap.Logger, func()) {
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	zap.ReplaceGlobals(logger)

	cleanup := func() {
		if err := logger.Sync(); err != nil {
			if !isIgnorableSyncError(err) {
				log.Printf("Failed to sync logger: %v\n", err)
			}
		}
	}

	return logger, cleanup
}

// InitializeServices connects the store, the Prime ledger and the optional
// integrations (RabbitMQ, Redis, Formance, webhooks) and wires the processor
// and monitor on top of them. Optional integrations are skipped when their
// settings are empty.
func InitializeServices(ctx context.Context, cfg *models.Config) (*Services, error) {
	svc := &Services{}

	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	svc.DbService = dbService
	svc.closers = append(svc.closers, dbService.Close)

	zap.L().Info("Loading Prime API credentials")
	creds, err := loadPrimeCredentials()
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Ledger, err = ledger.NewPrimeClient(ctx, creds, cfg.Prime.PortfolioId)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Policy, err = policy.LoadTable(cfg.Payments.CurrenciesFile)
	if err != nil {
		svc.Close()
		return nil, err
	}
	zap.L().Info("Currency policy loaded", zap.Strings("currencies", svc.Policy.Symbols()))

	publisher, err := svc.initializeEvents(cfg.RabbitMQ)
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.StatusCache = svc.initializeStatusCache(ctx, cfg.Redis, cfg.Monitor.StatusCacheTTL)

	var mirror journal.Mirror = journal.Nop{}
	if cfg.Formance.StackURL != "" {
		formance, err := journal.NewFormanceMirror(ctx, cfg.Formance)
		if err != nil {
			svc.Close()
			return nil, err
		}
		mirror = formance
	}

	var notifier monitor.Notifier
	if cfg.Webhook.Secret != "" {
		dispatcher, err := events.NewWebhookDispatcher(dbService, cfg.Webhook.Secret, cfg.Webhook.Timeout)
		if err != nil {
			svc.Close()
			return nil, err
		}
		notifier = dispatcher
	} else {
		zap.L().Warn("WEBHOOK_SECRET not set - webhook notifications disabled")
	}

	svc.Processor, err = payment.NewProcessor(payment.Params{
		Store:           dbService,
		Ledger:          svc.Ledger,
		Policy:          svc.Policy,
		Events:          publisher,
		Journal:         mirror,
		StatusCache:     svc.StatusCache,
		DuplicateWindow: cfg.Payments.DuplicateWindow,
		BatchDelay:      cfg.Payments.BatchDelay,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}

	svc.Monitor, err = monitor.NewMonitor(monitor.Params{
		Store:           dbService,
		Ledger:          svc.Ledger,
		Cache:           svc.StatusCache,
		Events:          publisher,
		Webhooks:        notifier,
		Journal:         mirror,
		Network:         cfg.Monitor.Network,
		PollingInterval: cfg.Monitor.PollingInterval,
		LookbackWindow:  cfg.Monitor.LookbackWindow,
		BatchSize:       cfg.Monitor.BatchSize,
		SweepSchedule:   cfg.Monitor.SweepSchedule,
		MaxPendingAge:   cfg.Monitor.MaxPendingAge,

		WebhookConcurrency: cfg.Monitor.WebhookConcurrency,
	})
	if err != nil {
		svc.Close()
		return nil, err
	}
	svc.closers = append(svc.closers, svc.Monitor.WaitDeliveries)

	return svc, nil
}

func (s *Services) initializeEvents(cfg models.RabbitMQConfig) (events.Publisher, error) {
	s.Bus = events.NewBus()
	s.closers = append(s.closers, s.Bus.Close)

	if cfg.URL == "" {
		return s.Bus, nil
	}

	rabbit, err := events.NewRabbitMQPublisher(cfg.URL, cfg.Exchange)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, rabbit.Close)
	return events.Fanout{s.Bus, rabbit}, nil
}

// initializeStatusCache prefers Redis so every process shares one view of
// ledger statuses, and falls back to a local cache when Redis is unusable.
func (s *Services) initializeStatusCache(ctx context.Context, cfg models.RedisConfig, ttl time.Duration) monitor.StatusCache {
	if cfg.Addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})

		pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
		defer cancel()
		if err := client.Ping(pingCtx).Err(); err != nil {
			zap.L().Warn("Redis ping failed - using in-memory status cache",
				zap.String("addr", cfg.Addr),
				zap.Error(err))
			_ = client.Close()
		} else {
			zap.L().Info("Redis status cache connected", zap.String("addr", cfg.Addr))
			s.closers = append(s.closers, func() { _ = client.Close() })
			return monitor.NewRedisCache(client, "", ttl)
		}
	}

	cache := monitor.NewMemoryCache(ttl)
	cleanupCtx, stop := context.WithCancel(context.WithoutCancel(ctx))
	go cache.RunCleanup(cleanupCtx, ttl)
	s.closers = append(s.closers, stop)
	return cache
}

// InitializeDatabaseOnly initializes just the database service without Prime API
// Useful for read-only operations like querying payment history
func InitializeDatabaseOnly(ctx context.Context, cfg *models.Config) (*database.Service, error) {
	dbService, err := database.NewService(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	return dbService, nil
}

// Close releases resources in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}

func loadPrimeCredentials() (*credentials.Credentials, error) {
	accessKey := os.Getenv("PRIME_ACCESS_KEY")
	passphrase := os.Getenv("PRIME_PASSPHRASE")
	signingKey := os.Getenv("PRIME_SIGNING_KEY")

	if accessKey == "" || passphrase == "" || signingKey == "" {
		return nil, fmt.Errorf("missing required Prime API credentials: PRIME_ACCESS_KEY, PRIME_PASSPHRASE, PRIME_SIGNING_KEY")
	}

	return &credentials.Credentials{
		AccessKey:  accessKey,
		Passphrase: passphrase,
		SigningKey: signingKey,
	}, nil
}

func isIgnorableSyncError(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "sync /dev/stderr: inappropriate ioctl for device") ||
		strings.Contains(msg, "sync /dev/stdout: inappropriate ioctl for device")
}
