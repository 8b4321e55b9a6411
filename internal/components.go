package internal

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"

	"github.com/starford/tenantdesk/internal/approval"
	"github.com/starford/tenantdesk/internal/logos"
	"github.com/starford/tenantdesk/internal/recordservice"
	"github.com/starford/tenantdesk/internal/storage"
)

// components are the services shared by the HTTP server and the MCP server.
type components struct {
	logger *slog.Logger
	store  storage.Provider
	prop   *approval.Propagator
	svc    *recordservice.Service
	logos  *logos.Library

	// ping reaches the backing database, bypassing any cache.
	ping func(context.Context) error

	closers []func()
}

func newApplication(opts []Option) (*application, error) {
	app := &application{}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if app.logOutput == nil {
		app.logOutput = os.Stdout
	}
	return app, nil
}

func (a *application) newLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(a.logOutput, &slog.HandlerOptions{
		Level: a.config.App.LogLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// build opens the configured store and assembles the record services.
// events receives record notifications and may be nil.
func (a *application) build(ctx context.Context, logger *slog.Logger, events recordservice.Publisher) (*components, error) {
	cfg := a.config
	c := &components{logger: logger}

	store, err := c.openStore(ctx, cfg)
	if err != nil {
		c.close()
		return nil, err
	}
	c.store = store

	if cfg.Logos.Path != "" {
		lib, err := logos.Open(cfg.Logos.Path)
		if err != nil {
			c.close()
			return nil, fmt.Errorf("init logo library: %w", err)
		}
		c.logos = lib
	}

	c.prop = approval.New(store,
		approval.WithLogger(logger),
		approval.WithClientsObjectID(cfg.Approval.ClientsObjectID),
		approval.WithVerifyObserver(recordservice.VerifyObserver(events)),
	)
	c.svc = recordservice.NewService(store, c.prop, events, logger)
	return c, nil
}

func (c *components) openStore(ctx context.Context, cfg *Config) (storage.Provider, error) {
	var store storage.Provider
	switch cfg.Store.Driver {
	case DriverPostgres:
		pool, err := storage.OpenPostgres(ctx, cfg.Store.Postgres.DSN, cfg.Store.Postgres.MaxConns)
		if err != nil {
			return nil, fmt.Errorf("init postgres: %w", err)
		}
		c.closers = append(c.closers, pool.Close)
		c.ping = pool.Ping
		store = storage.NewPostgres(pool)
	case DriverSQLite, "":
		db, err := storage.OpenSQLite(cfg.Store.SQLite.Path)
		if err != nil {
			return nil, fmt.Errorf("init sqlite: %w", err)
		}
		c.closers = append(c.closers, func() { _ = db.Close() })
		c.ping = db.Ping
		store = db
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}

	if !cfg.Redis.Enabled() {
		return store, nil
	}
	client, err := storage.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("init redis: %w", err)
	}
	c.closers = append(c.closers, func() { _ = client.Close() })
	c.logger.Info("Catalog cache enabled", slog.Duration("ttl", cfg.Redis.CatalogTTL))
	return storage.NewCatalogCache(store, client, cfg.Redis.CatalogTTL, c.logger), nil
}

// ready answers the readiness probe from the database itself.
func (c *components) ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := c.ping(r.Context()); err != nil {
		c.logger.Warn("readiness check failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"status":"unavailable"}`))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// close releases resources in reverse order of acquisition.
func (c *components) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

// Seed loads fixture into the SQLite store named by cfg. When a catalog
// cache is configured, the cached catalogs of the seeded tenants are dropped.
func Seed(ctx context.Context, cfg *Config, fixture *storage.Fixture, logger *slog.Logger) (storage.SeedStats, error) {
	if cfg.Store.Driver != DriverSQLite && cfg.Store.Driver != "" {
		return storage.SeedStats{}, errors.New("seeding requires store.driver sqlite")
	}
	db, err := storage.OpenSQLite(cfg.Store.SQLite.Path)
	if err != nil {
		return storage.SeedStats{}, err
	}
	defer db.Close()

	stats, err := db.Seed(ctx, fixture)
	if err != nil {
		return stats, fmt.Errorf("seed: %w", err)
	}
	if !cfg.Redis.Enabled() {
		return stats, nil
	}

	client, err := storage.NewRedisClient(ctx, cfg.Redis.URL)
	if err != nil {
		return stats, fmt.Errorf("init redis: %w", err)
	}
	defer client.Close()

	cache := storage.NewCatalogCache(db, client, cfg.Redis.CatalogTTL, logger)
	for _, t := range fixture.Tenants {
		if err := cache.Invalidate(ctx, t.ID); err != nil {
			return stats, fmt.Errorf("invalidate catalog of %s: %w", t.ID, err)
		}
	}
	return stats, nil
}
