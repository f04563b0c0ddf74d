package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Server.Port != 8080 || cfg.Server.Address != "0.0.0.0" {
		t.Errorf("unexpected server defaults: %+v", cfg.Server)
	}
	if cfg.Registry.DataDir != "./data" || cfg.Registry.InMemory {
		t.Errorf("unexpected registry defaults: %+v", cfg.Registry)
	}
	if cfg.Strategy.PerItemCap != 3 || cfg.Strategy.ContentLimit != 20 || cfg.Strategy.ApplyConcurrency != 4 {
		t.Errorf("unexpected strategy defaults: %+v", cfg.Strategy)
	}
	if cfg.Cache.Size != 1000 || cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("unexpected cache defaults: %+v", cfg.Cache)
	}
	if cfg.Auth.Enabled {
		t.Error("auth should default to disabled")
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("FORUMLINK_HTTP_PORT", "9000")
	t.Setenv("FORUMLINK_DATA_DIR", "/var/lib/forumlink")
	t.Setenv("FORUMLINK_IN_MEMORY", "true")
	t.Setenv("FORUMLINK_CONTENT_URL", "http://content.internal:8081")
	t.Setenv("FORUMLINK_RELEVANCE_TIMEOUT", "45s")
	t.Setenv("FORUMLINK_PER_ITEM_CAP", "5")
	t.Setenv("FORUMLINK_CACHE_TTL", "120")
	t.Setenv("FORUMLINK_AUTH_ENABLED", "true")
	t.Setenv("FORUMLINK_API_TOKEN", "env-token-long-enough")

	cfg := LoadFromEnv()

	if cfg.Server.Port != 9000 {
		t.Errorf("expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Registry.DataDir != "/var/lib/forumlink" || !cfg.Registry.InMemory {
		t.Errorf("unexpected registry config: %+v", cfg.Registry)
	}
	if cfg.Content.BaseURL != "http://content.internal:8081" {
		t.Errorf("unexpected content URL: %q", cfg.Content.BaseURL)
	}
	if cfg.Relevance.Timeout != 45*time.Second {
		t.Errorf("expected 45s relevance timeout, got %v", cfg.Relevance.Timeout)
	}
	if cfg.Strategy.PerItemCap != 5 {
		t.Errorf("expected cap 5, got %d", cfg.Strategy.PerItemCap)
	}
	// Bare integers parse as seconds.
	if cfg.Cache.TTL != 120*time.Second {
		t.Errorf("expected 120s cache TTL, got %v", cfg.Cache.TTL)
	}
	if !cfg.Auth.Enabled || cfg.Auth.Token != "env-token-long-enough" {
		t.Errorf("unexpected auth config: %+v", cfg.Auth)
	}
}

func TestLoadFromEnvIgnoresMalformedValues(t *testing.T) {
	t.Setenv("FORUMLINK_HTTP_PORT", "not-a-number")
	t.Setenv("FORUMLINK_IN_MEMORY", "maybe")
	t.Setenv("FORUMLINK_CACHE_TTL", "soon")

	cfg := LoadFromEnv()

	if cfg.Server.Port != 8080 {
		t.Errorf("malformed port should keep default, got %d", cfg.Server.Port)
	}
	if cfg.Registry.InMemory {
		t.Error("malformed bool should keep default")
	}
	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("malformed duration should keep default, got %v", cfg.Cache.TTL)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "forumlink.yaml")
	yaml := `
server:
  port: 9443
strategy:
  per_item_cap: 7
`
	if err := os.WriteFile(path, []byte(yaml), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}

	cfg := Default()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile failed: %v", err)
	}

	if cfg.Server.Port != 9443 {
		t.Errorf("expected port 9443, got %d", cfg.Server.Port)
	}
	if cfg.Strategy.PerItemCap != 7 {
		t.Errorf("expected cap 7, got %d", cfg.Strategy.PerItemCap)
	}
	// Sections absent from the file keep their current values.
	if cfg.Registry.DataDir != "./data" {
		t.Errorf("untouched section changed: %+v", cfg.Registry)
	}
	if cfg.Strategy.ContentLimit != 20 {
		t.Errorf("untouched field changed: %+v", cfg.Strategy)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	cfg := Default()

	if err := cfg.LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}

	path := filepath.Join(t.TempDir(), "broken.yaml")
	if err := os.WriteFile(path, []byte("server: [not a mapping"), 0644); err != nil {
		t.Fatalf("writing config file: %v", err)
	}
	if err := cfg.LoadFromFile(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "port",
		},
		{
			name: "missing data dir",
			mutate: func(c *Config) {
				c.Registry.DataDir = ""
				c.Registry.InMemory = false
			},
			wantErr: "data dir",
		},
		{
			name:    "zero cap",
			mutate:  func(c *Config) { c.Strategy.PerItemCap = 0 },
			wantErr: "cap",
		},
		{
			name:    "zero content limit",
			mutate:  func(c *Config) { c.Strategy.ContentLimit = 0 },
			wantErr: "content limit",
		},
		{
			name:    "zero concurrency",
			mutate:  func(c *Config) { c.Strategy.ApplyConcurrency = 0 },
			wantErr: "concurrency",
		},
		{
			name: "auth without token",
			mutate: func(c *Config) {
				c.Auth.Enabled = true
				c.Auth.Token = ""
			},
			wantErr: "token",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("expected validation error")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q should mention %q", err, tc.wantErr)
			}
		})
	}

	// In-memory mode does not need a data dir.
	cfg := Default()
	cfg.Registry.DataDir = ""
	cfg.Registry.InMemory = true
	if err := cfg.Validate(); err != nil {
		t.Errorf("in-memory config should validate: %v", err)
	}
}

func TestStringOmitsSecrets(t *testing.T) {
	cfg := Default()
	cfg.Auth.Token = "super-secret-token"
	cfg.Content.APIKey = "content-key"

	s := cfg.String()
	if strings.Contains(s, "super-secret-token") || strings.Contains(s, "content-key") {
		t.Errorf("String() leaked a secret: %s", s)
	}
}
