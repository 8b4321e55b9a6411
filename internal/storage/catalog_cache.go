package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/starford/tenantdesk/internal/models"
)

// CatalogCache decorates a Provider with a Redis cache of the tenant object
// catalog. Record reads and writes are never cached. Any Redis fault falls
// through to the wrapped Provider.
type CatalogCache struct {
	Provider
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *slog.Logger
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("storage: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("storage: connect to redis: %w", err)
	}
	return client, nil
}

// NewCatalogCache wraps next. A non-positive ttl defaults to 30 seconds.
func NewCatalogCache(next Provider, client *redis.Client, ttl time.Duration, logger *slog.Logger) *CatalogCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CatalogCache{
		Provider: next,
		client:   client,
		ttl:      ttl,
		prefix:   "catalog:",
		logger:   logger,
	}
}

func (c *CatalogCache) key(tenantID string) string {
	return c.prefix + tenantID
}

// ListTenantObjects serves the catalog from Redis when present.
func (c *CatalogCache) ListTenantObjects(ctx context.Context, tenantID string) ([]models.ObjectInfo, error) {
	cached, err := c.client.Get(ctx, c.key(tenantID)).Bytes()
	switch {
	case err == nil:
		var objs []models.ObjectInfo
		if jsonErr := json.Unmarshal(cached, &objs); jsonErr == nil {
			return objs, nil
		}
		c.logger.Warn("catalog cache: corrupt entry", slog.String("tenant_id", tenantID))
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("catalog cache: get failed",
			slog.String("tenant_id", tenantID),
			slog.String("error", err.Error()))
	}

	objs, err := c.Provider.ListTenantObjects(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	if data, jsonErr := json.Marshal(objs); jsonErr == nil {
		if setErr := c.client.Set(ctx, c.key(tenantID), data, c.ttl).Err(); setErr != nil {
			c.logger.Warn("catalog cache: set failed",
				slog.String("tenant_id", tenantID),
				slog.String("error", setErr.Error()))
		}
	}
	return objs, nil
}

// Invalidate drops the cached catalog of a tenant.
func (c *CatalogCache) Invalidate(ctx context.Context, tenantID string) error {
	return c.client.Del(ctx, c.key(tenantID)).Err()
}
