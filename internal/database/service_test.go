package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"crypto-payments-go/internal/models"
	"crypto-payments-go/internal/store"

	"github.com/shopspring/decimal"
)

func setupTestService(t *testing.T) (*Service, func()) {
	t.Helper()

	cfg := models.DatabaseConfig{
		Driver:       "sqlite",
		Path:         filepath.Join(t.TempDir(), "payments.db"),
		MaxOpenConns: 4,
		MaxIdleConns: 2,
		PingTimeout:  5 * time.Second,
	}

	service, err := NewService(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Failed to create service: %v", err)
	}

	return service, service.Close
}

func createTestWallet(t *testing.T, s *Service, userId, currency, address, balance string) *models.Wallet {
	t.Helper()

	w, err := s.CreateWallet(context.Background(), store.CreateWalletParams{
		UserId:         userId,
		Currency:       currency,
		Network:        "ethereum-mainnet",
		Address:        address,
		OpeningBalance: decimal.RequireFromString(balance),
	})
	if err != nil {
		t.Fatalf("Failed to create wallet: %v", err)
	}
	return w
}

func TestNewService_Validation(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name string
		cfg  models.DatabaseConfig
	}{
		{"zero max open conns", models.DatabaseConfig{Path: "x.db", PingTimeout: time.Second}},
		{"negative idle conns", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1, MaxIdleConns: -1, PingTimeout: time.Second}},
		{"zero ping timeout", models.DatabaseConfig{Path: "x.db", MaxOpenConns: 1}},
		{"empty sqlite path", models.DatabaseConfig{MaxOpenConns: 1, PingTimeout: time.Second}},
		{"postgres without url", models.DatabaseConfig{Driver: "postgres", MaxOpenConns: 1, PingTimeout: time.Second}},
		{"unknown driver", models.DatabaseConfig{Driver: "oracle", Path: "x.db", MaxOpenConns: 1, PingTimeout: time.Second}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewService(ctx, tt.cfg); err == nil {
				t.Error("Expected error, got nil")
			}
		})
	}
}

func TestDialect_Rebind(t *testing.T) {
	pg := dialect{name: driverPostgres}
	got := pg.q("SELECT a FROM t WHERE b = ? AND c = ?")
	if got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("Unexpected rebind: %s", got)
	}
	if got := pg.forUpdate("SELECT a FROM t WHERE b = ?"); got != "SELECT a FROM t WHERE b = $1 FOR UPDATE" {
		t.Errorf("Unexpected lock clause: %s", got)
	}

	lite := dialect{name: driverSQLite}
	if got := lite.forUpdate("SELECT a FROM t WHERE b = ?"); got != "SELECT a FROM t WHERE b = ?" {
		t.Errorf("SQLite query should be unchanged, got %s", got)
	}
}

func TestUsers(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	user, err := service.CreateUser(ctx, "user1", "Test User", "test@example.com")
	if err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if user.Id != "user1" {
		t.Errorf("Expected id user1, got %s", user.Id)
	}

	got, err := service.GetUserById(ctx, "user1")
	if err != nil {
		t.Fatalf("GetUserById failed: %v", err)
	}
	if got.Email != "test@example.com" {
		t.Errorf("Expected email test@example.com, got %s", got.Email)
	}

	if _, err := service.GetUserById(ctx, "missing"); err != store.ErrNotFound {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}

	if _, err := service.GetUserById(ctx, models.PlatformUserId); err != nil {
		t.Errorf("Platform user should exist: %v", err)
	}
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()
	createTestWallet(t, service, "user1", "ETH", "0xabc", "10")

	boom := context.Canceled
	err := service.WithTx(ctx, func(tx store.PaymentTx) error {
		w, err := tx.LockWallet(ctx, "user1", "ETH")
		if err != nil {
			return err
		}
		if _, err := tx.AdjustBalance(ctx, w, decimal.NewFromInt(-4)); err != nil {
			return err
		}
		return boom
	})
	if err != boom {
		t.Fatalf("Expected callback error, got %v", err)
	}

	w, err := service.GetWallet(ctx, "user1", "ETH")
	if err != nil {
		t.Fatalf("GetWallet failed: %v", err)
	}
	if !w.Balance.Equal(decimal.NewFromInt(10)) {
		t.Errorf("Expected balance 10 after rollback, got %s", w.Balance.String())
	}
}

func TestWebhooks(t *testing.T) {
	service, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	first, err := service.RegisterWebhook(ctx, "user1", "https://example.com/hook")
	if err != nil {
		t.Fatalf("RegisterWebhook failed: %v", err)
	}
	second, err := service.RegisterWebhook(ctx, "user1", "https://example.com/hook")
	if err != nil {
		t.Fatalf("RegisterWebhook failed: %v", err)
	}
	if first.Id != second.Id {
		t.Errorf("Re-registering should return the existing listener")
	}

	listeners, err := service.GetWebhookListeners(ctx, "user1")
	if err != nil {
		t.Fatalf("GetWebhookListeners failed: %v", err)
	}
	if len(listeners) != 1 || !listeners[0].Active {
		t.Errorf("Expected 1 active listener, got %+v", listeners)
	}
}
