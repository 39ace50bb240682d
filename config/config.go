// Package config loads service configuration from defaults, a YAML file,
// and CONVODESK_* environment overrides, in that order of precedence.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/convodesk/convodesk/agent"
	"github.com/convodesk/convodesk/dialog"
	"github.com/convodesk/convodesk/internal/database"
	"github.com/convodesk/convodesk/internal/server"
	"github.com/convodesk/convodesk/internal/telemetry"
	"github.com/convodesk/convodesk/llm"
	"github.com/convodesk/convodesk/llm/openai"
	"github.com/convodesk/convodesk/llm/retry"
)

// Config is the full service configuration.
type Config struct {
	Server       ServerConfig       `yaml:"server" env:"SERVER"`
	Log          LogConfig          `yaml:"log" env:"LOG"`
	Provider     ProviderConfig     `yaml:"provider" env:"PROVIDER"`
	Router       RouterConfig       `yaml:"router" env:"ROUTER"`
	Orchestrator OrchestratorConfig `yaml:"orchestrator" env:"ORCHESTRATOR"`
	Compactor    CompactorConfig    `yaml:"compactor" env:"COMPACTOR"`
	Store        StoreConfig        `yaml:"store" env:"STORE"`
	Manager      ManagerConfig      `yaml:"manager" env:"MANAGER"`
	Auth         AuthConfig         `yaml:"auth" env:"AUTH"`
	Metrics      MetricsConfig      `yaml:"metrics" env:"METRICS"`
	Telemetry    TelemetryConfig    `yaml:"telemetry" env:"TELEMETRY"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	HTTPPort        int           `yaml:"http_port" env:"HTTP_PORT"`
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	WriteTimeout    time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`

	// RateLimit caps requests per second per client; zero disables it.
	RateLimit float64 `yaml:"rate_limit" env:"RATE_LIMIT"`
	RateBurst int     `yaml:"rate_burst" env:"RATE_BURST"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level        string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format       string `yaml:"format" env:"FORMAT"` // json, console
	EnableCaller bool   `yaml:"enable_caller" env:"ENABLE_CALLER"`
}

// ProviderConfig configures the generation/classification provider and its
// resilience wrapper.
type ProviderConfig struct {
	APIKey      string        `yaml:"api_key" env:"API_KEY"`
	BaseURL     string        `yaml:"base_url" env:"BASE_URL"`
	Model       string        `yaml:"model" env:"MODEL"`
	Timeout     time.Duration `yaml:"timeout" env:"TIMEOUT"`
	Temperature float32       `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int           `yaml:"max_tokens" env:"MAX_TOKENS"`

	MaxRetries        int     `yaml:"max_retries" env:"MAX_RETRIES"`
	RequestsPerSecond float64 `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"`
	Burst             int     `yaml:"burst" env:"BURST"`
}

// RouterConfig configures intent routing.
type RouterConfig struct {
	DefaultHandler      string            `yaml:"default_handler" env:"DEFAULT_HANDLER"`
	ConfidenceThreshold float64           `yaml:"confidence_threshold" env:"CONFIDENCE_THRESHOLD"`
	Intents             map[string]string `yaml:"intents"`
}

// OrchestratorConfig bounds handoff chains.
type OrchestratorConfig struct {
	MaxReroutes int `yaml:"max_reroutes" env:"MAX_REROUTES"`
}

// CompactorConfig bounds the retained context window.
type CompactorConfig struct {
	MaxMessages   int `yaml:"max_messages" env:"MAX_MESSAGES"`
	MaxSummaryLen int `yaml:"max_summary_len" env:"MAX_SUMMARY_LEN"`
}

// StoreConfig selects the dialog persistence backend.
type StoreConfig struct {
	Backend string      `yaml:"backend" env:"BACKEND"` // memory, file, redis, sql
	Dir     string      `yaml:"dir" env:"DIR"`
	Redis   RedisConfig `yaml:"redis" env:"REDIS"`
	SQL     SQLConfig   `yaml:"sql" env:"SQL"`
}

// RedisConfig configures the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr" env:"ADDR"`
	Password  string `yaml:"password" env:"PASSWORD"`
	DB        int    `yaml:"db" env:"DB"`
	PoolSize  int    `yaml:"pool_size" env:"POOL_SIZE"`
	KeyPrefix string `yaml:"key_prefix" env:"KEY_PREFIX"`
}

// SQLConfig configures the GORM backend.
type SQLConfig struct {
	Driver          string        `yaml:"driver" env:"DRIVER"`
	DSN             string        `yaml:"dsn" env:"DSN"`
	MaxIdleConns    int           `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	MaxOpenConns    int           `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// ManagerConfig tunes dialog housekeeping.
type ManagerConfig struct {
	InactiveAfter   time.Duration `yaml:"inactive_after" env:"INACTIVE_AFTER"`
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	PurgeClosedAge  time.Duration `yaml:"purge_closed_age" env:"PURGE_CLOSED_AGE"`
}

// AuthConfig configures API authentication.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
}

// MetricsConfig configures the Prometheus surface.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// TelemetryConfig configures OpenTelemetry export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled" env:"ENABLED"`
	OTLPEndpoint string  `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	ServiceName  string  `yaml:"service_name" env:"SERVICE_NAME"`
	SampleRate   float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DefaultConfig returns the complete default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:        8080,
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			RateLimit:       50,
			RateBurst:       100,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Provider: ProviderConfig{
			BaseURL:           "https://api.openai.com/v1",
			Model:             "gpt-4o-mini",
			Timeout:           30 * time.Second,
			Temperature:       0.7,
			MaxTokens:         1024,
			MaxRetries:        3,
			RequestsPerSecond: 10,
			Burst:             20,
		},
		Router: RouterConfig{
			DefaultHandler:      agent.HandlerGeneral,
			ConfidenceThreshold: 0.6,
			Intents:             agent.DefaultRouterConfig().Intents,
		},
		Orchestrator: OrchestratorConfig{MaxReroutes: 3},
		Compactor:    CompactorConfig{MaxMessages: 40, MaxSummaryLen: 2000},
		Store: StoreConfig{
			Backend: dialog.BackendFile,
			Dir:     "data/dialogs",
			Redis:   RedisConfig{Addr: "localhost:6379", PoolSize: 10},
			SQL: SQLConfig{
				Driver:          "sqlite",
				DSN:             "data/convodesk.db",
				MaxIdleConns:    10,
				MaxOpenConns:    50,
				ConnMaxLifetime: time.Hour,
			},
		},
		Manager: ManagerConfig{
			InactiveAfter:   24 * time.Hour,
			CleanupInterval: time.Hour,
			PurgeClosedAge:  7 * 24 * time.Hour,
		},
		Auth: AuthConfig{Enabled: false},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "convodesk",
		},
		Telemetry: TelemetryConfig{
			Enabled:     false,
			ServiceName: "convodesk",
			SampleRate:  1.0,
		},
	}
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		errs = append(errs, "server.http_port must be in 1..65535")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, "log.level must be one of debug, info, warn, error")
	}
	if c.Router.ConfidenceThreshold < 0 || c.Router.ConfidenceThreshold > 1 {
		errs = append(errs, "router.confidence_threshold must be in 0..1")
	}
	if c.Orchestrator.MaxReroutes <= 0 {
		errs = append(errs, "orchestrator.max_reroutes must be positive")
	}
	if c.Compactor.MaxMessages <= 0 {
		errs = append(errs, "compactor.max_messages must be positive")
	}
	switch c.Store.Backend {
	case dialog.BackendMemory, dialog.BackendFile, dialog.BackendRedis, dialog.BackendSQL:
	default:
		errs = append(errs, fmt.Sprintf("store.backend %q is not supported", c.Store.Backend))
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required when auth is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return nil
}

// ProviderSettings maps onto the OpenAI provider config.
func (c *Config) ProviderSettings() openai.Config {
	return openai.Config{
		APIKey:      c.Provider.APIKey,
		BaseURL:     c.Provider.BaseURL,
		Model:       c.Provider.Model,
		Timeout:     c.Provider.Timeout,
		Temperature: c.Provider.Temperature,
		MaxTokens:   c.Provider.MaxTokens,
	}
}

// ResilienceSettings maps onto the provider resilience wrapper.
func (c *Config) ResilienceSettings() llm.ResilientConfig {
	policy := retry.DefaultPolicy()
	policy.MaxRetries = c.Provider.MaxRetries
	return llm.ResilientConfig{
		CallTimeout:       c.Provider.Timeout,
		RetryPolicy:       policy,
		RequestsPerSecond: c.Provider.RequestsPerSecond,
		Burst:             c.Provider.Burst,
	}
}

// RouterSettings maps onto the intent router config.
func (c *Config) RouterSettings() agent.RouterConfig {
	return agent.RouterConfig{
		Intents:             c.Router.Intents,
		DefaultHandler:      c.Router.DefaultHandler,
		EscalationHandler:   agent.HandlerEscalation,
		ConfidenceThreshold: c.Router.ConfidenceThreshold,
	}
}

// OrchestratorSettings maps onto the orchestrator config.
func (c *Config) OrchestratorSettings() agent.OrchestratorConfig {
	return agent.OrchestratorConfig{
		MaxReroutes:       c.Orchestrator.MaxReroutes,
		EscalationHandler: agent.HandlerEscalation,
	}
}

// CompactorSettings maps onto the context compactor config.
func (c *Config) CompactorSettings() dialog.CompactorConfig {
	return dialog.CompactorConfig{
		MaxMessages:   c.Compactor.MaxMessages,
		MaxSummaryLen: c.Compactor.MaxSummaryLen,
	}
}

// StoreSettings maps onto the dialog store factory config.
func (c *Config) StoreSettings() dialog.StoreConfig {
	pool := database.DefaultPoolConfig()
	if c.Store.SQL.MaxIdleConns > 0 {
		pool.MaxIdleConns = c.Store.SQL.MaxIdleConns
	}
	if c.Store.SQL.MaxOpenConns > 0 {
		pool.MaxOpenConns = c.Store.SQL.MaxOpenConns
	}
	if c.Store.SQL.ConnMaxLifetime > 0 {
		pool.ConnMaxLifetime = c.Store.SQL.ConnMaxLifetime
	}
	return dialog.StoreConfig{
		Backend: c.Store.Backend,
		Dir:     c.Store.Dir,
		Redis: dialog.RedisConfig{
			Addr:      c.Store.Redis.Addr,
			Password:  c.Store.Redis.Password,
			DB:        c.Store.Redis.DB,
			PoolSize:  c.Store.Redis.PoolSize,
			KeyPrefix: c.Store.Redis.KeyPrefix,
		},
		SQL: dialog.SQLConfig{
			Driver: c.Store.SQL.Driver,
			DSN:    c.Store.SQL.DSN,
			Pool:   pool,
		},
	}
}

// ManagerSettings maps onto the dialog manager config.
func (c *Config) ManagerSettings() dialog.ManagerConfig {
	return dialog.ManagerConfig{InactiveAfter: c.Manager.InactiveAfter}
}

// TelemetrySettings maps onto the OpenTelemetry init config.
func (c *Config) TelemetrySettings() telemetry.Config {
	return telemetry.Config{
		Enabled:      c.Telemetry.Enabled,
		OTLPEndpoint: c.Telemetry.OTLPEndpoint,
		ServiceName:  c.Telemetry.ServiceName,
		SampleRate:   c.Telemetry.SampleRate,
	}
}

// ServerSettings maps onto the HTTP server manager config.
func (c *Config) ServerSettings() server.Config {
	s := server.DefaultConfig()
	s.Addr = fmt.Sprintf(":%d", c.Server.HTTPPort)
	if c.Server.ReadTimeout > 0 {
		s.ReadTimeout = c.Server.ReadTimeout
	}
	if c.Server.WriteTimeout > 0 {
		s.WriteTimeout = c.Server.WriteTimeout
	}
	if c.Server.ShutdownTimeout > 0 {
		s.ShutdownTimeout = c.Server.ShutdownTimeout
	}
	return s
}
