package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/tenantdesk/internal/api"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	App        ApplicationConfig `yaml:"app"`
	Store      StoreConfig       `yaml:"store"`
	Redis      RedisConfig       `yaml:"redis"`
	PDFService PDFServiceConfig  `yaml:"pdf_service"`
	Auth       AuthConfig        `yaml:"auth"`
	Logos      LogosConfig       `yaml:"logos"`
	Approval   ApprovalConfig    `yaml:"approval"`
	Import     ImportConfig      `yaml:"import"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	for _, v := range []validation.Validatable{
		&c.App, &c.Store, &c.Redis, &c.PDFService, &c.Auth, &c.Approval, &c.Import,
	} {
		if err := v.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// StoreConfig selects and configures the record store.
type StoreConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
}

// Validate validates the store configuration. Only the selected driver's
// section must be complete.
func (c *StoreConfig) Validate() error {
	if c.Driver == "" {
		c.Driver = DriverSQLite
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Driver, validation.In(DriverSQLite, DriverPostgres)),
	); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Driver == DriverPostgres {
		return c.Postgres.Validate()
	}
	return c.SQLite.Validate()
}

// PostgresConfig holds the connection settings of the Postgres data layer.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"max_conns"`
}

// Validate validates the Postgres configuration.
func (c *PostgresConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.DSN, validation.Required),
		validation.Field(&c.MaxConns, validation.Min(int32(0))),
	); err != nil {
		return fmt.Errorf("store.postgres: %w", err)
	}
	return nil
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	); err != nil {
		return fmt.Errorf("store.sqlite: %w", err)
	}
	return nil
}

// RedisConfig enables the tenant catalog cache when URL is set.
type RedisConfig struct {
	URL        string        `yaml:"url"`
	CatalogTTL time.Duration `yaml:"catalog_ttl"`
}

// Enabled reports whether a Redis URL is configured.
func (c *RedisConfig) Enabled() bool {
	return c.URL != ""
}

// Validate validates the Redis configuration.
func (c *RedisConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.CatalogTTL, validation.Min(time.Duration(0))),
	); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	return nil
}

// PDFServiceConfig points at the external document-rendering service.
type PDFServiceConfig struct {
	URL     string        `yaml:"url"`
	Token   string        `yaml:"token"`
	Timeout time.Duration `yaml:"timeout"`
}

// Validate validates the PDF service configuration.
func (c *PDFServiceConfig) Validate() error {
	if err := validation.ValidateStruct(c,
		validation.Field(&c.URL, validation.Required, is.RequestURL),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
	); err != nil {
		return fmt.Errorf("pdf_service: %w", err)
	}
	return nil
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token or Tenants must be set.
//
// Token is the shared operator token and reaches every tenant. Tenants lists
// tokens bound to one tenant and, optionally, one acting user.
type AuthConfig struct {
	Mode    string              `yaml:"mode"`
	Token   string              `yaml:"token"`
	Tenants []TenantTokenConfig `yaml:"tenants"`
}

// TenantTokenConfig binds a bearer token to a tenant and an optional user.
type TenantTokenConfig struct {
	Token    string `yaml:"token"`
	TenantID string `yaml:"tenant_id"`
	UserID   string `yaml:"user_id"`
}

// Validate validates a tenant token entry.
func (c TenantTokenConfig) Validate() error {
	return validation.ValidateStruct(&c,
		validation.Field(&c.Token, validation.Required),
		validation.Field(&c.TenantID, validation.Required),
	)
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" && len(c.Tenants) == 0 {
		return fmt.Errorf("auth: mode is %q but no token is configured", AuthModeToken)
	}
	seen := map[string]bool{c.Token: c.Token != ""}
	for i, tt := range c.Tenants {
		if err := tt.Validate(); err != nil {
			return fmt.Errorf("auth: tenants[%d]: %w", i, err)
		}
		if seen[tt.Token] {
			return fmt.Errorf("auth: tenants[%d]: duplicate token", i)
		}
		seen[tt.Token] = true
	}
	return nil
}

// Credentials maps each tenant token to the tenant and user it is bound to.
func (c *AuthConfig) Credentials() map[string]api.Credential {
	out := make(map[string]api.Credential, len(c.Tenants))
	for _, tt := range c.Tenants {
		out[tt.Token] = api.Credential{TenantID: tt.TenantID, UserID: tt.UserID}
	}
	return out
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// LogosConfig holds the logo library directory. An empty path disables it.
type LogosConfig struct {
	Path string `yaml:"path"`
}

// ApprovalConfig configures the draft approval workflow.
type ApprovalConfig struct {
	ClientsObjectID string `yaml:"clients_object_id"`
}

// Validate validates the approval configuration.
func (c *ApprovalConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.ClientsObjectID, validation.Required),
	)
}

// ImportConfig bounds spreadsheet uploads.
type ImportConfig struct {
	MaxBytes int64 `yaml:"max_bytes"`
}

// Validate validates the import configuration.
func (c *ImportConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.MaxBytes, validation.Required, validation.Min(int64(1))),
	)
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Store: StoreConfig{
			Driver: DriverSQLite,
			Postgres: PostgresConfig{
				MaxConns: 10,
			},
			SQLite: SQLiteConfig{
				Path: "./tenantdesk.db",
			},
		},
		Redis: RedisConfig{
			CatalogTTL: 30 * time.Second,
		},
		PDFService: PDFServiceConfig{
			URL:     "http://localhost:8000",
			Timeout: 60 * time.Second,
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
		Approval: ApprovalConfig{
			ClientsObjectID: "clients",
		},
		Import: ImportConfig{
			MaxBytes: 10 << 20,
		},
	}
}
