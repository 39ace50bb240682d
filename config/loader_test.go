package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoader_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.HTTPPort)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "general", cfg.Router.DefaultHandler)
	assert.Equal(t, 3, cfg.Orchestrator.MaxReroutes)
	assert.Equal(t, 40, cfg.Compactor.MaxMessages)
	assert.Equal(t, "file", cfg.Store.Backend)
	assert.Equal(t, "convodesk", cfg.Metrics.Namespace)
	assert.Contains(t, cfg.Router.Intents, "billing_issue")
}

func TestLoader_YAMLFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "convodesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  http_port: 9090
provider:
  model: gpt-4o
  timeout: 45s
store:
  backend: memory
router:
  confidence_threshold: 0.8
`), 0o644))

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.HTTPPort)
	assert.Equal(t, "gpt-4o", cfg.Provider.Model)
	assert.Equal(t, 45*time.Second, cfg.Provider.Timeout)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Equal(t, 0.8, cfg.Router.ConfidenceThreshold)
	assert.Equal(t, "info", cfg.Log.Level, "unset fields keep defaults")
}

func TestLoader_MissingFileUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := NewLoader().WithConfigPath("/nonexistent/convodesk.yaml").Load()
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.HTTPPort)
}

func TestLoader_EnvOverrides(t *testing.T) {
	t.Setenv("CONVODESK_SERVER_HTTP_PORT", "7070")
	t.Setenv("CONVODESK_PROVIDER_API_KEY", "sk-test")
	t.Setenv("CONVODESK_PROVIDER_TIMEOUT", "90s")
	t.Setenv("CONVODESK_PROVIDER_TEMPERATURE", "0.2")
	t.Setenv("CONVODESK_STORE_REDIS_ADDR", "redis:6380")
	t.Setenv("CONVODESK_AUTH_ENABLED", "true")
	t.Setenv("CONVODESK_AUTH_JWT_SECRET", "hunter2")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.HTTPPort)
	assert.Equal(t, "sk-test", cfg.Provider.APIKey)
	assert.Equal(t, 90*time.Second, cfg.Provider.Timeout)
	assert.InDelta(t, 0.2, cfg.Provider.Temperature, 1e-6)
	assert.Equal(t, "redis:6380", cfg.Store.Redis.Addr)
	assert.True(t, cfg.Auth.Enabled)
}

func TestLoader_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "convodesk.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 9090\n"), 0o644))
	t.Setenv("CONVODESK_SERVER_HTTP_PORT", "7070")

	cfg, err := NewLoader().WithConfigPath(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.HTTPPort, "environment beats the file")
}

func TestLoader_InvalidEnvValue(t *testing.T) {
	t.Setenv("CONVODESK_SERVER_HTTP_PORT", "not-a-port")

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CONVODESK_SERVER_HTTP_PORT")
}

func TestConfig_Validate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Server.HTTPPort = 0 }, "http_port"},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"bad threshold", func(c *Config) { c.Router.ConfidenceThreshold = 1.5 }, "confidence_threshold"},
		{"bad reroutes", func(c *Config) { c.Orchestrator.MaxReroutes = 0 }, "max_reroutes"},
		{"bad backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"auth without secret", func(c *Config) { c.Auth.Enabled = true }, "jwt_secret"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := DefaultConfig()
			tc.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.want)
		})
	}
}

func TestLoader_CustomValidator(t *testing.T) {
	t.Parallel()

	_, err := NewLoader().
		WithValidator(func(c *Config) error {
			if c.Provider.APIKey == "" {
				return assert.AnError
			}
			return nil
		}).
		Load()
	require.Error(t, err)
}

func TestConfig_SettingsMapping(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	cfg.Provider.MaxRetries = 5
	cfg.Store.Backend = "sql"
	cfg.Store.SQL.MaxOpenConns = 7

	assert.Equal(t, "gpt-4o-mini", cfg.ProviderSettings().Model)
	assert.Equal(t, 5, cfg.ResilienceSettings().RetryPolicy.MaxRetries)
	assert.Equal(t, "general", cfg.RouterSettings().DefaultHandler)
	assert.Equal(t, "escalation", cfg.OrchestratorSettings().EscalationHandler)
	assert.Equal(t, 40, cfg.CompactorSettings().MaxMessages)
	assert.Equal(t, 7, cfg.StoreSettings().SQL.Pool.MaxOpenConns)
	assert.Equal(t, 24*time.Hour, cfg.ManagerSettings().InactiveAfter)
}
