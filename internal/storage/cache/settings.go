// Package cache keeps slow-changing store data in Redis.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/xenking/pos-backoffice/internal/domain/money"
	"github.com/xenking/pos-backoffice/internal/domain/settings"
)

// DefaultTTL bounds how long a settings change can take to reach checkout.
const DefaultTTL = 5 * time.Minute

const (
	currencyOp = "currency"
	taxOp      = "tax"
)

// kv is the subset of redis.Cmdable used by the cache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

var _ settings.Store = (*SettingsCache)(nil)

// SettingsCache is a read-through cache in front of a settings.Store.
// Redis failures are logged and bypassed; only errors of the underlying
// store are returned.
type SettingsCache struct {
	next   settings.Store
	client kv
	ttl    time.Duration
	prefix string
}

// NewSettingsCache wraps next. Keys are namespaced as prefix:operation.
func NewSettingsCache(next settings.Store, client kv, prefix string, ttl time.Duration) *SettingsCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &SettingsCache{next: next, client: client, ttl: ttl, prefix: prefix}
}

// NewClient connects to the Redis server at addr.
func NewClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "ping redis %s", addr)
	}
	return client, nil
}

func (c *SettingsCache) key(op string) string {
	return c.prefix + ":settings:" + op
}

// CurrencyFormat returns the cached currency format, loading it on a miss.
func (c *SettingsCache) CurrencyFormat(ctx context.Context) (money.Format, error) {
	var f money.Format
	if c.load(ctx, currencyOp, &f) {
		return f, nil
	}
	f, err := c.next.CurrencyFormat(ctx)
	if err != nil {
		return money.Format{}, err
	}
	c.store(ctx, currencyOp, f)
	return f, nil
}

// TaxDefaults returns the cached tax defaults, loading them on a miss.
func (c *SettingsCache) TaxDefaults(ctx context.Context) (settings.TaxDefaults, error) {
	var t settings.TaxDefaults
	if c.load(ctx, taxOp, &t) {
		return t, nil
	}
	t, err := c.next.TaxDefaults(ctx)
	if err != nil {
		return settings.TaxDefaults{}, err
	}
	c.store(ctx, taxOp, t)
	return t, nil
}

// Invalidate drops every cached settings entry.
func (c *SettingsCache) Invalidate(ctx context.Context) error {
	if err := c.client.Del(ctx, c.key(currencyOp), c.key(taxOp)).Err(); err != nil {
		return errors.Wrap(err, "invalidate settings cache")
	}
	return nil
}

// load reports whether key op was cached and decoded into v.
func (c *SettingsCache) load(ctx context.Context, op string, v any) bool {
	raw, err := c.client.Get(ctx, c.key(op)).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		zctx.From(ctx).Warn("Settings cache read failed", zap.String("op", op), zap.Error(err))
		return false
	}
	if err := json.Unmarshal(raw, v); err != nil {
		zctx.From(ctx).Warn("Settings cache entry corrupt", zap.String("op", op), zap.Error(err))
		return false
	}
	return true
}

func (c *SettingsCache) store(ctx context.Context, op string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, c.key(op), raw, c.ttl).Err(); err != nil {
		zctx.From(ctx).Warn("Settings cache write failed", zap.String("op", op), zap.Error(err))
	}
}
