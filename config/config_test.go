package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	tests := []struct {
		name      string
		filePath  string
		wantErr   bool
		errString string
	}{
		{
			name:     "valid config file",
			filePath: "testdata/valid_config.yaml",
		},
		{
			name:      "non-existent file",
			filePath:  "testdata/nonexistent.yaml",
			wantErr:   true,
			errString: "failed to read config file",
		},
		{
			name:      "malformed yaml",
			filePath:  "testdata/malformed.yaml",
			wantErr:   true,
			errString: "failed to parse config file",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(tt.filePath)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errString)
				assert.Nil(t, cfg)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, ":9090", cfg.Server.Addr)
			assert.Equal(t, "postgres", cfg.Storage.Driver)
			assert.Equal(t, "evm", cfg.Chain.Mode)
			require.Len(t, cfg.Chain.Networks, 1)
			assert.Equal(t, "base", cfg.Chain.Networks[0].Name)
			assert.Equal(t, 250, cfg.Trust.PromoCapacity)
			assert.Equal(t, "queue", cfg.Webhooks.Mode)
			assert.Equal(t, "debug", cfg.Logging.Level)
			// unset fields keep their defaults
			assert.Equal(t, 15*time.Second, cfg.MCP.Timeout)
			assert.NoError(t, cfg.ValidateBackend())
			assert.NoError(t, cfg.ValidateMCP())
		})
	}
}

func TestDefaultsAreValid(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.NoError(t, cfg.ValidateBackend())
	assert.NoError(t, cfg.ValidateMCP())
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"HP_API_URL":        "https://override.example",
		"HP_PROMO_CAPACITY": "7",
		"HP_MCP_TIMEOUT":    "3s",
		"HP_LOG_LEVEL":      "warn",
	}
	cfg := Default()
	require.NoError(t, cfg.ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
	assert.Equal(t, "https://override.example", cfg.MCP.APIURL)
	assert.Equal(t, 7, cfg.Trust.PromoCapacity)
	assert.Equal(t, 3*time.Second, cfg.MCP.Timeout)
	assert.Equal(t, "warn", cfg.Logging.Level)

	env["HP_PROMO_CAPACITY"] = "many"
	assert.Error(t, Default().ApplyEnv(func(k string) (string, bool) { v, ok := env[k]; return v, ok }))
}

func TestValidateBackend(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		errString string
	}{
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage dsn is required"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "sqlite" }, "unknown storage driver"},
		{"evm without networks", func(c *Config) { c.Chain.Mode = "evm" }, "chain networks are required"},
		{"queue without url", func(c *Config) { c.Webhooks.Mode = "queue" }, "queue url is required"},
		{"bad port", func(c *Config) { c.Server.Addr = ":99999" }, "invalid port"},
		{"missing treasury", func(c *Config) { c.Treasury.Address = "" }, "treasury address"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.ValidateBackend()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errString)
		})
	}
}

func TestValidateMCP(t *testing.T) {
	cfg := Default()
	cfg.MCP.Transport = "websocket"
	assert.ErrorContains(t, cfg.ValidateMCP(), "unknown mcp transport")

	cfg = Default()
	cfg.MCP.Timeout = 0
	assert.ErrorContains(t, cfg.ValidateMCP(), "timeout")
}
