package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// WhitelistRepository answers membership queries for allowed email domains.
type WhitelistRepository interface {
	IsAllowed(ctx context.Context, domain string) (bool, error)
}

type whitelistRepository struct {
	pool *pgxpool.Pool
}

// NewWhitelistRepository returns a Postgres-backed implementation.
func NewWhitelistRepository(pool *pgxpool.Pool) WhitelistRepository {
	return &whitelistRepository{pool: pool}
}

func (r *whitelistRepository) IsAllowed(ctx context.Context, domain string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM whitelist_domains WHERE lower(domain) = lower($1))`

	var allowed bool
	if err := r.pool.QueryRow(ctx, query, domain).Scan(&allowed); err != nil {
		return false, err
	}
	return allowed, nil
}

const whitelistKeyPrefix = "whitelist:domain:"

// CachedWhitelist memoizes membership answers in Redis. Redis failures fall
// through to the wrapped repository.
type CachedWhitelist struct {
	inner  WhitelistRepository
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedWhitelist wraps inner with a Redis cache. A nil client disables caching.
func NewCachedWhitelist(inner WhitelistRepository, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedWhitelist {
	return &CachedWhitelist{inner: inner, client: client, ttl: ttl, logger: logger}
}

// IsAllowed checks the cache before the wrapped repository.
func (c *CachedWhitelist) IsAllowed(ctx context.Context, domain string) (bool, error) {
	if c.client == nil || c.ttl <= 0 {
		return c.inner.IsAllowed(ctx, domain)
	}

	key := whitelistKeyPrefix + strings.ToLower(domain)
	cached, err := c.client.Get(ctx, key).Result()
	switch {
	case err == nil:
		return cached == "1", nil
	case err != redis.Nil:
		c.logger.Warn("whitelist cache read failed", zap.String("domain", domain), zap.Error(err))
	}

	allowed, err := c.inner.IsAllowed(ctx, domain)
	if err != nil {
		return false, err
	}

	value := "0"
	if allowed {
		value = "1"
	}
	if err := c.client.Set(ctx, key, value, c.ttl).Err(); err != nil {
		c.logger.Warn("whitelist cache write failed", zap.String("domain", domain), zap.Error(err))
	}
	return allowed, nil
}
