package internal

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/starford/tenantdesk/internal/models"
	"github.com/starford/tenantdesk/internal/storage"
)

func testConfig(t *testing.T) *Config {
	t.Helper()
	cfg := NewDefaultConfig()
	cfg.Store.SQLite.Path = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func buildComponents(t *testing.T, cfg *Config) *components {
	t.Helper()
	app, err := newApplication([]Option{WithConfig(cfg), WithLogOutput(io.Discard)})
	if err != nil {
		t.Fatal(err)
	}
	c, err := app.build(context.Background(), slog.New(slog.NewJSONHandler(io.Discard, nil)), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.close)
	return c
}

func TestNewApplication_RequiresConfig(t *testing.T) {
	if _, err := newApplication(nil); err == nil {
		t.Fatal("expected error without config")
	}
}

func TestBuild_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Logos.Path = filepath.Join(t.TempDir(), "logos")

	c := buildComponents(t, cfg)
	if _, ok := c.store.(*storage.SQLite); !ok {
		t.Errorf("store = %T, want *storage.SQLite", c.store)
	}
	if c.logos == nil || c.svc == nil || c.prop == nil {
		t.Errorf("components incomplete: %+v", c)
	}
}

func TestBuild_CatalogCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"

	c := buildComponents(t, cfg)
	if _, ok := c.store.(*storage.CatalogCache); !ok {
		t.Fatalf("store = %T, want *storage.CatalogCache", c.store)
	}
	if _, err := c.store.ListTenantObjects(context.Background(), "t1"); err != nil {
		t.Fatal(err)
	}
}

func TestBuild_RedisUnavailable(t *testing.T) {
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://127.0.0.1:1/0"

	app, err := newApplication([]Option{WithConfig(cfg)})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := app.build(context.Background(), slog.New(slog.NewJSONHandler(io.Discard, nil)), nil); err == nil {
		t.Fatal("expected redis connection error")
	}
}

func TestReady_ProbesDatabaseNotCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"
	c := buildComponents(t, cfg)

	w := httptest.NewRecorder()
	c.ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("ready = %d, want 200", w.Code)
	}

	ctx := context.Background()
	if _, err := c.store.ListTenantObjects(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	// Close the SQLite handle only; the warm cache still answers the catalog.
	c.closers[0]()
	if _, err := c.store.ListTenantObjects(ctx, "t1"); err != nil {
		t.Fatalf("cached catalog: %v", err)
	}

	w = httptest.NewRecorder()
	c.ready(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("ready with database down = %d, want 503", w.Code)
	}
}

var seedFixture = &storage.Fixture{Tenants: []storage.FixtureTenant{{
	ID: "t1",
	Objects: []storage.FixtureObject{{
		ID:      "obj-clients",
		Name:    "clients__a",
		Records: []storage.FixtureRecord{{ID: "c1", Data: models.Fields{"company_name": "Acme"}}},
	}},
}}}

func TestSeed_InvalidatesCatalogCache(t *testing.T) {
	mr := miniredis.RunT(t)
	mr.Set("catalog:t1", "[]")
	mr.Set("catalog:t2", "[]")

	cfg := testConfig(t)
	cfg.Redis.URL = "redis://" + mr.Addr() + "/0"

	stats, err := Seed(context.Background(), cfg, seedFixture, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	if stats.Records != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if mr.Exists("catalog:t1") {
		t.Error("seeded tenant catalog still cached")
	}
	if !mr.Exists("catalog:t2") {
		t.Error("untouched tenant catalog dropped")
	}
}

func TestSeed_RejectsPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Driver = DriverPostgres
	if _, err := Seed(context.Background(), cfg, seedFixture, slog.Default()); err == nil {
		t.Fatal("expected error for postgres driver")
	}
}
