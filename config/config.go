// Package config loads YAML configuration for the marketplace backend and
// the MCP server, with HP_* environment overrides.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/human-pages-ai/humanpages/chain"
	"github.com/human-pages-ai/humanpages/logger"
	"github.com/human-pages-ai/humanpages/webhook"
)

const (
	// MinPort is the minimum valid port number
	MinPort = 1
	// MaxPort is the maximum valid port number
	MaxPort = 65535
)

// Config represents the complete configuration of both programs.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Redis    RedisConfig    `yaml:"redis"`
	Chain    ChainConfig    `yaml:"chain"`
	Treasury TreasuryConfig `yaml:"treasury"`
	Webhooks WebhookConfig  `yaml:"webhooks"`
	Trust    TrustConfig    `yaml:"trust"`
	Listings ListingsConfig `yaml:"listings"`
	MCP      MCPConfig      `yaml:"mcp"`
	Logging  logger.Config  `yaml:"logging"`
}

// ServerConfig holds the REST API listener settings
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AdminKey        string        `yaml:"admin_key"`
}

// StorageConfig selects the marketplace store.
type StorageConfig struct {
	Driver string `yaml:"driver"` // memory, postgres
	DSN    string `yaml:"dsn"`
	Seed   bool   `yaml:"seed"`
}

// RedisConfig enables the shared rate limiter and activation code store when Addr is set.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ChainConfig selects on-chain verification.
type ChainConfig struct {
	Mode           string                `yaml:"mode"` // static, evm
	Networks       []chain.NetworkConfig `yaml:"networks"`
	AcceptAllCents int64                 `yaml:"accept_all_cents"`
}

// TreasuryConfig is where activation and per-call payments go.
type TreasuryConfig struct {
	Address string `yaml:"address"`
	Network string `yaml:"network"`
	ChainID int64  `yaml:"chain_id"`
	USDC    string `yaml:"usdc"`
}

// WebhookConfig selects webhook delivery.
type WebhookConfig struct {
	Mode           string              `yaml:"mode"` // http, queue, none
	Workers        int                 `yaml:"workers"`
	Attempts       int                 `yaml:"attempts"`
	AttemptTimeout time.Duration       `yaml:"attempt_timeout"`
	Queue          webhook.QueueConfig `yaml:"queue"`
}

// TrustConfig tunes activation.
type TrustConfig struct {
	PromoCapacity    int           `yaml:"promo_capacity"`
	PostFetchTimeout time.Duration `yaml:"post_fetch_timeout"`
	PostMaxBytes     int64         `yaml:"post_max_bytes"`
}

// ListingsConfig tunes the expiry sweeper.
type ListingsConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// MCPConfig holds the MCP server settings.
type MCPConfig struct {
	APIURL    string        `yaml:"api_url"`
	Timeout   time.Duration `yaml:"timeout"`
	Transport string        `yaml:"transport"` // stdio, http
	HTTPAddr  string        `yaml:"http_addr"`
}

// Default returns a configuration that runs entirely in memory.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     15 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
		Storage:  StorageConfig{Driver: "memory", Seed: true},
		Chain:    ChainConfig{Mode: "static"},
		Treasury: TreasuryConfig{Address: "0x000000000000000000000000000000000000dEaD", Network: "base", ChainID: 8453},
		Webhooks: WebhookConfig{Mode: "http", Workers: 4, Attempts: 3, AttemptTimeout: 10 * time.Second},
		Trust: TrustConfig{
			PromoCapacity:    100,
			PostFetchTimeout: 10 * time.Second,
			PostMaxBytes:     1 << 20,
		},
		Listings: ListingsConfig{SweepInterval: time.Minute},
		MCP: MCPConfig{
			APIURL:    "http://localhost:8080",
			Timeout:   15 * time.Second,
			Transport: "stdio",
			HTTPAddr:  ":3001",
		},
		Logging: logger.Config{Level: "info", Format: "console"},
	}
}

// Load reads the YAML file at path over Default. An empty path returns defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads a .env file into the process environment if one exists.
func LoadEnv(logger *slog.Logger, files ...string) {
	if err := godotenv.Load(files...); err != nil && logger != nil {
		logger.Debug("no .env file loaded", "error", err)
	}
}

// ApplyEnv overrides fields from HP_* variables. lookup is os.LookupEnv in
// production.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	str("HP_HTTP_ADDR", &c.Server.Addr)
	str("HP_ADMIN_KEY", &c.Server.AdminKey)
	str("HP_STORAGE_DRIVER", &c.Storage.Driver)
	str("HP_DATABASE_URL", &c.Storage.DSN)
	str("HP_REDIS_ADDR", &c.Redis.Addr)
	str("HP_REDIS_PASSWORD", &c.Redis.Password)
	str("HP_CHAIN_MODE", &c.Chain.Mode)
	str("HP_TREASURY_ADDRESS", &c.Treasury.Address)
	str("HP_TREASURY_NETWORK", &c.Treasury.Network)
	str("HP_WEBHOOK_MODE", &c.Webhooks.Mode)
	str("HP_AMQP_URL", &c.Webhooks.Queue.URL)
	str("HP_API_URL", &c.MCP.APIURL)
	str("HP_MCP_TRANSPORT", &c.MCP.Transport)
	str("HP_MCP_HTTP_ADDR", &c.MCP.HTTPAddr)
	str("HP_LOG_LEVEL", &c.Logging.Level)
	str("HP_LOG_FORMAT", &c.Logging.Format)

	if v, ok := lookup("HP_PROMO_CAPACITY"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HP_PROMO_CAPACITY: %w", err)
		}
		c.Trust.PromoCapacity = n
	}
	if v, ok := lookup("HP_MCP_TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("HP_MCP_TIMEOUT: %w", err)
		}
		c.MCP.Timeout = d
	}
	return nil
}

// ValidateBackend checks the settings the marketplace backend needs.
func (c *Config) ValidateBackend() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server addr is required")
	}
	if err := validatePort(c.Server.Addr); err != nil {
		return err
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	switch c.Chain.Mode {
	case "static":
	case "evm":
		if len(c.Chain.Networks) == 0 {
			return fmt.Errorf("chain networks are required in evm mode")
		}
	default:
		return fmt.Errorf("unknown chain mode %q", c.Chain.Mode)
	}
	if c.Treasury.Address == "" || c.Treasury.Network == "" {
		return fmt.Errorf("treasury address and network are required")
	}
	switch c.Webhooks.Mode {
	case "http", "none":
	case "queue":
		if c.Webhooks.Queue.URL == "" {
			return fmt.Errorf("webhooks queue url is required in queue mode")
		}
	default:
		return fmt.Errorf("unknown webhook mode %q", c.Webhooks.Mode)
	}
	if c.Trust.PromoCapacity < 0 {
		return fmt.Errorf("promo capacity must not be negative")
	}
	return nil
}

// ValidateMCP checks the settings the MCP server needs.
func (c *Config) ValidateMCP() error {
	if c.MCP.APIURL == "" {
		return fmt.Errorf("mcp api_url is required")
	}
	if c.MCP.Timeout <= 0 {
		return fmt.Errorf("mcp timeout must be greater than 0")
	}
	switch c.MCP.Transport {
	case "stdio":
	case "http":
		if err := validatePort(c.MCP.HTTPAddr); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown mcp transport %q", c.MCP.Transport)
	}
	return nil
}

func validatePort(addr string) error {
	i := strings.LastIndex(addr, ":")
	if i < 0 {
		return fmt.Errorf("invalid listen address %q", addr)
	}
	port, err := strconv.Atoi(addr[i+1:])
	if err != nil || port < MinPort || port > MaxPort {
		return fmt.Errorf("invalid port in %q (must be between %d and %d)", addr, MinPort, MaxPort)
	}
	return nil
}
