// Package config handles ForumLink configuration via environment variables
// and an optional YAML file.
//
// Configuration is loaded from FORUMLINK_* environment variables using
// LoadFromEnv(), optionally overlaid from a YAML file with LoadFromFile(),
// and validated with Validate() before use. There is no ambient global
// configuration: callers build a Config and pass it down.
//
// Example Usage:
//
//	cfg := config.LoadFromEnv()
//	if path := os.Getenv("FORUMLINK_CONFIG"); path != "" {
//		if err := cfg.LoadFromFile(path); err != nil {
//			log.Fatalf("config file: %v", err)
//		}
//	}
//	if err := cfg.Validate(); err != nil {
//		log.Fatalf("invalid config: %v", err)
//	}
//
// Environment Variables:
//   - FORUMLINK_DATA_DIR="./data"
//   - FORUMLINK_IN_MEMORY=false
//   - FORUMLINK_HTTP_PORT=8080
//   - FORUMLINK_HTTP_ADDRESS="0.0.0.0"
//   - FORUMLINK_AUTH_ENABLED=true
//   - FORUMLINK_API_TOKEN="..."
//   - FORUMLINK_CONTENT_URL="http://localhost:8081"
//   - FORUMLINK_RELEVANCE_URL="http://localhost:9090"
//   - FORUMLINK_RELEVANCE_TIMEOUT=30s
//   - FORUMLINK_PER_ITEM_CAP=3
//   - FORUMLINK_CONTENT_LIMIT=20
//   - FORUMLINK_APPLY_CONCURRENCY=4
//   - FORUMLINK_CACHE_SIZE=1000
//   - FORUMLINK_CACHE_TTL=5m
//
// Configuration Priority:
//  1. YAML file values (when LoadFromFile is called)
//  2. Environment variables
//  3. Default values
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all ForumLink configuration.
//
// Configuration is organized into logical sections:
//   - Server: HTTP API settings
//   - Registry: link store settings
//   - Content: content provider endpoint
//   - Relevance: relevance scorer endpoint
//   - Strategy: strategy run defaults
//   - Cache: read-view cache sizing
//   - Auth: API token settings
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Registry  RegistryConfig  `yaml:"registry"`
	Content   ContentConfig   `yaml:"content"`
	Relevance RelevanceConfig `yaml:"relevance"`
	Strategy  StrategyConfig  `yaml:"strategy"`
	Cache     CacheConfig     `yaml:"cache"`
	Auth      AuthConfig      `yaml:"auth"`
}

// ServerConfig holds HTTP API server settings.
type ServerConfig struct {
	// Address to bind to (default 0.0.0.0)
	Address string `yaml:"address"`
	// Port to listen on (default 8080)
	Port int `yaml:"port"`
	// ReadTimeout for incoming requests
	ReadTimeout time.Duration `yaml:"read_timeout"`
	// WriteTimeout for responses
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// RegistryConfig holds link store settings.
type RegistryConfig struct {
	// DataDir is the directory for registry data files
	DataDir string `yaml:"data_dir"`
	// InMemory keeps the registry in RAM (testing and demo mode)
	InMemory bool `yaml:"in_memory"`
	// SyncWrites forces fsync on every write
	SyncWrites bool `yaml:"sync_writes"`
}

// ContentConfig holds content provider settings.
type ContentConfig struct {
	// BaseURL of the content service
	BaseURL string `yaml:"base_url"`
	// APIKey bearer token, if the service requires one
	APIKey string `yaml:"api_key"`
	// Timeout per request
	Timeout time.Duration `yaml:"timeout"`
}

// RelevanceConfig holds relevance scorer settings.
type RelevanceConfig struct {
	// BaseURL of the relevance service
	BaseURL string `yaml:"base_url"`
	// APIKey bearer token, if the service requires one
	APIKey string `yaml:"api_key"`
	// Timeout per rank request
	Timeout time.Duration `yaml:"timeout"`
}

// StrategyConfig holds strategy run defaults.
type StrategyConfig struct {
	// PerItemCap bounds suggestions per content item (default 3)
	PerItemCap int `yaml:"per_item_cap"`
	// ContentLimit bounds each collected pool (default 20)
	ContentLimit int `yaml:"content_limit"`
	// ApplyConcurrency bounds parallel candidate applies (default 4)
	ApplyConcurrency int `yaml:"apply_concurrency"`
}

// CacheConfig holds read-view cache settings.
type CacheConfig struct {
	// Size is the maximum number of cached views (default 1000)
	Size int `yaml:"size"`
	// TTL is how long cached views remain valid (default 5m)
	TTL time.Duration `yaml:"ttl"`
}

// AuthConfig holds API authentication settings.
type AuthConfig struct {
	// Enabled controls whether API requests require a bearer token
	Enabled bool `yaml:"enabled"`
	// Token is the initial API token, hashed at startup and never stored
	// in plaintext afterwards
	Token string `yaml:"token"`
}

// Default returns a Config with all defaults applied.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:      "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
		Registry: RegistryConfig{
			DataDir: "./data",
		},
		Content: ContentConfig{
			BaseURL: "http://localhost:8081",
			Timeout: 15 * time.Second,
		},
		Relevance: RelevanceConfig{
			BaseURL: "http://localhost:9090",
			Timeout: 30 * time.Second,
		},
		Strategy: StrategyConfig{
			PerItemCap:       3,
			ContentLimit:     20,
			ApplyConcurrency: 4,
		},
		Cache: CacheConfig{
			Size: 1000,
			TTL:  5 * time.Minute,
		},
		Auth: AuthConfig{
			Enabled: false,
		},
	}
}

// LoadFromEnv builds a Config from FORUMLINK_* environment variables,
// starting from defaults. Unset variables keep their defaults, so
// LoadFromEnv() works with no environment at all.
func LoadFromEnv() *Config {
	cfg := Default()

	cfg.Registry.DataDir = getEnv("FORUMLINK_DATA_DIR", cfg.Registry.DataDir)
	cfg.Registry.InMemory = getEnvBool("FORUMLINK_IN_MEMORY", cfg.Registry.InMemory)
	cfg.Registry.SyncWrites = getEnvBool("FORUMLINK_SYNC_WRITES", cfg.Registry.SyncWrites)

	cfg.Server.Address = getEnv("FORUMLINK_HTTP_ADDRESS", cfg.Server.Address)
	cfg.Server.Port = getEnvInt("FORUMLINK_HTTP_PORT", cfg.Server.Port)
	cfg.Server.ReadTimeout = getEnvDuration("FORUMLINK_HTTP_READ_TIMEOUT", cfg.Server.ReadTimeout)
	cfg.Server.WriteTimeout = getEnvDuration("FORUMLINK_HTTP_WRITE_TIMEOUT", cfg.Server.WriteTimeout)

	cfg.Content.BaseURL = getEnv("FORUMLINK_CONTENT_URL", cfg.Content.BaseURL)
	cfg.Content.APIKey = getEnv("FORUMLINK_CONTENT_API_KEY", cfg.Content.APIKey)
	cfg.Content.Timeout = getEnvDuration("FORUMLINK_CONTENT_TIMEOUT", cfg.Content.Timeout)

	cfg.Relevance.BaseURL = getEnv("FORUMLINK_RELEVANCE_URL", cfg.Relevance.BaseURL)
	cfg.Relevance.APIKey = getEnv("FORUMLINK_RELEVANCE_API_KEY", cfg.Relevance.APIKey)
	cfg.Relevance.Timeout = getEnvDuration("FORUMLINK_RELEVANCE_TIMEOUT", cfg.Relevance.Timeout)

	cfg.Strategy.PerItemCap = getEnvInt("FORUMLINK_PER_ITEM_CAP", cfg.Strategy.PerItemCap)
	cfg.Strategy.ContentLimit = getEnvInt("FORUMLINK_CONTENT_LIMIT", cfg.Strategy.ContentLimit)
	cfg.Strategy.ApplyConcurrency = getEnvInt("FORUMLINK_APPLY_CONCURRENCY", cfg.Strategy.ApplyConcurrency)

	cfg.Cache.Size = getEnvInt("FORUMLINK_CACHE_SIZE", cfg.Cache.Size)
	cfg.Cache.TTL = getEnvDuration("FORUMLINK_CACHE_TTL", cfg.Cache.TTL)

	cfg.Auth.Enabled = getEnvBool("FORUMLINK_AUTH_ENABLED", cfg.Auth.Enabled)
	cfg.Auth.Token = getEnv("FORUMLINK_API_TOKEN", cfg.Auth.Token)

	return cfg
}

// LoadFromFile overlays cfg with values from a YAML file. Fields absent
// from the file keep their current values, so a file can override just
// one section.
func (c *Config) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Validate checks the configuration for values that cannot work.
//
// Call Validate() after LoadFromEnv()/LoadFromFile() and before use.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid http port: %d", c.Server.Port)
	}
	if !c.Registry.InMemory && c.Registry.DataDir == "" {
		return fmt.Errorf("registry data dir required unless in-memory")
	}
	if c.Strategy.PerItemCap < 1 {
		return fmt.Errorf("per-item cap must be at least 1, got %d", c.Strategy.PerItemCap)
	}
	if c.Strategy.ContentLimit < 1 {
		return fmt.Errorf("content limit must be at least 1, got %d", c.Strategy.ContentLimit)
	}
	if c.Strategy.ApplyConcurrency < 1 {
		return fmt.Errorf("apply concurrency must be at least 1, got %d", c.Strategy.ApplyConcurrency)
	}
	if c.Auth.Enabled && c.Auth.Token == "" {
		return fmt.Errorf("authentication enabled but no API token provided")
	}
	return nil
}

// String returns a safe string representation of the Config.
//
// Sensitive values like tokens and API keys are NOT included, making this
// safe for logging.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{HTTP: %s:%d, DataDir: %s, InMemory: %v, Auth: %v}",
		c.Server.Address, c.Server.Port,
		c.Registry.DataDir, c.Registry.InMemory,
		c.Auth.Enabled,
	)
}

// Helper functions for environment variable parsing

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
		// Bare integers are treated as seconds.
		if secs, err := strconv.Atoi(val); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return defaultVal
}
