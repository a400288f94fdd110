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
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	DefaultCacheTTL       = 10 * time.Minute
	defaultRedisKeyPrefix = "payments:tx_status"
)

// StatusCache holds the latest ledger status observed per txRef.
type StatusCache interface {
	Get(ctx context.Context, txRef string) (string, bool)
	Set(ctx context.Context, txRef, status string)
}

type cacheEntry struct {
	status    string
	expiresAt time.Time
}

// MemoryCache is a process-local StatusCache with per-entry expiry.
type MemoryCache struct {
	ttl     time.Duration
	entries map[string]cacheEntry
	mutex   sync.RWMutex
	now     func() time.Time
}

func NewMemoryCache(ttl time.Duration) *MemoryCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &MemoryCache{
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, txRef string) (string, bool) {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	e, ok := c.entries[txRef]
	if !ok || !c.now().Before(e.expiresAt) {
		return "", false
	}
	return e.status, true
}

func (c *MemoryCache) Set(_ context.Context, txRef, status string) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	c.entries[txRef] = cacheEntry{status: status, expiresAt: c.now().Add(c.ttl)}
}

// Len reports the number of entries, expired or not.
func (c *MemoryCache) Len() int {
	c.mutex.RLock()
	defer c.mutex.RUnlock()
	return len(c.entries)
}

// RunCleanup evicts expired entries every interval until ctx is done.
func (c *MemoryCache) RunCleanup(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.cleanup()
		case <-ctx.Done():
			return
		}
	}
}

func (c *MemoryCache) cleanup() {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	now := c.now()
	cleaned := 0
	for txRef, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, txRef)
			cleaned++
		}
	}

	if cleaned > 0 {
		zap.L().Debug("Cleaned up expired status cache entries",
			zap.Int("cleaned", cleaned),
			zap.Int("remaining", len(c.entries)))
	}
}

// RedisCache shares transaction statuses across processes.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewRedisCache(client redis.UniversalClient, prefix string, ttl time.Duration) *RedisCache {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = defaultRedisKeyPrefix
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &RedisCache{client: client, prefix: trimmedPrefix, ttl: ttl}
}

func (c *RedisCache) key(txRef string) string {
	return c.prefix + ":" + txRef
}

// Get treats any Redis failure as a miss.
func (c *RedisCache) Get(ctx context.Context, txRef string) (string, bool) {
	status, err := c.client.Get(ctx, c.key(txRef)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			zap.L().Warn("Status cache read failed", zap.String("tx_ref", txRef), zap.Error(err))
		}
		return "", false
	}
	return status, true
}

func (c *RedisCache) Set(ctx context.Context, txRef, status string) {
	if err := c.client.Set(ctx, c.key(txRef), status, c.ttl).Err(); err != nil {
		zap.L().Warn("Status cache write failed", zap.String("tx_ref", txRef), zap.Error(err))
	}
}
