package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	configYAML := `
server:
  port: 9090
auth:
  enabled: true
  api_key: secret
logging:
  development: false
  level: debug
crawl:
  workers: 6
  max_global_retries: 4
  wave_delay_ms: 250
  wave_delay_max_ms: 500
  base_url: https://programs.example.edu
fetch:
  timeout_seconds: 45
  user_agent: real-agent
  respect_robots: true
llm:
  base_url: https://llm.example.com/v1
  api_key: llm-key
  model: test-model
  max_tokens: 4000
embedding:
  model: embed-model
refine:
  max_attempts: 2
  schema_check: false
storage:
  backend: file
  results_path: out.json
  blob_backend: gcs
  gcs_bucket: bucket
search:
  top_k: 5
  weight_cache_size: 20
`
	if err := os.WriteFile(path, []byte(configYAML), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Fatalf("expected port 9090, got %d", cfg.Server.Port)
	}
	if !cfg.Auth.Enabled || cfg.Auth.APIKey != "secret" {
		t.Fatalf("expected auth enabled with secret key")
	}
	if cfg.Crawl.Workers != 6 || !cfg.Fetch.RespectRobots {
		t.Fatalf("expected crawl overrides to apply: %+v", cfg.Crawl)
	}
	if cfg.Refine.MaxAttempts != 2 || cfg.Refine.SchemaCheck {
		t.Fatalf("expected refine overrides to apply: %+v", cfg.Refine)
	}
	policy := cfg.RetryPolicy()
	if policy.MaxAttempts != 4 || policy.BaseDelay != 250*time.Millisecond || policy.MaxDelay != 500*time.Millisecond {
		t.Fatalf("unexpected retry policy: %+v", policy)
	}
	if got := cfg.FetchTimeout(); got != 45*time.Second {
		t.Fatalf("expected fetch timeout 45s, got %v", got)
	}
	base, key, model := cfg.EmbeddingEndpoint()
	if base != "https://llm.example.com/v1" || key != "llm-key" || model != "embed-model" {
		t.Fatalf("unexpected embedding endpoint: %s %s %s", base, key, model)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawl.Workers != 3 || cfg.Crawl.MaxGlobalRetries != 5 {
		t.Fatalf("unexpected crawl defaults: %+v", cfg.Crawl)
	}
	if cfg.Refine.MaxAttempts != 3 || !cfg.Refine.SchemaCheck {
		t.Fatalf("unexpected refine defaults: %+v", cfg.Refine)
	}
	if cfg.LLM.MaxTokens != 8000 || cfg.LLM.ShortTimeoutSeconds != 60 || cfg.LLM.LongTimeoutSeconds != 180 {
		t.Fatalf("unexpected llm defaults: %+v", cfg.LLM)
	}
	if cfg.Search.WeightCacheSize != 100 || cfg.Search.TopK != 10 {
		t.Fatalf("unexpected search defaults: %+v", cfg.Search)
	}
	if cfg.Crawl.BaseURL != "https://www.sim.edu.sg" {
		t.Fatalf("unexpected base url %q", cfg.Crawl.BaseURL)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server:  ServerConfig{Port: 8080},
		Crawl:   CrawlConfig{Workers: 1, MaxGlobalRetries: 5},
		Fetch:   FetchConfig{TimeoutSeconds: 10},
		LLM:     LLMConfig{MaxTokens: 100},
		Refine:  RefineConfig{MaxAttempts: 3},
		Storage: StorageConfig{Backend: "file", ResultsPath: "out.json"},
		Search:  SearchConfig{Backend: "memory", TopK: 10, WeightCacheSize: 100},
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config should be valid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{name: "invalid port", mutate: func(c *Config) { c.Server.Port = 0 }, want: "server.port"},
		{name: "auth missing api key", mutate: func(c *Config) { c.Auth.Enabled = true }, want: "auth.api_key"},
		{name: "invalid workers", mutate: func(c *Config) { c.Crawl.Workers = 0 }, want: "crawl.workers"},
		{name: "invalid retries", mutate: func(c *Config) { c.Crawl.MaxGlobalRetries = 0 }, want: "crawl.max_global_retries"},
		{name: "invalid fetch timeout", mutate: func(c *Config) { c.Fetch.TimeoutSeconds = 0 }, want: "fetch.timeout_seconds"},
		{name: "invalid max tokens", mutate: func(c *Config) { c.LLM.MaxTokens = 0 }, want: "llm.max_tokens"},
		{name: "invalid refine attempts", mutate: func(c *Config) { c.Refine.MaxAttempts = 0 }, want: "refine.max_attempts"},
		{name: "unknown backend", mutate: func(c *Config) { c.Storage.Backend = "mongo" }, want: "storage.backend"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Storage.Backend = "postgres" }, want: "db.dsn"},
		{name: "gcs without bucket", mutate: func(c *Config) { c.Storage.BlobBackend = "gcs" }, want: "storage.gcs_bucket"},
		{name: "postgres search without dsn", mutate: func(c *Config) { c.Search.Backend = "postgres" }, want: "db.dsn"},
		{name: "pool too large", mutate: func(c *Config) { c.DB.MaxConns = 5000 }, want: "db.max_conns"},
		{name: "invalid cache size", mutate: func(c *Config) { c.Search.WeightCacheSize = 0 }, want: "search.weight_cache_size"},
		{
			name:   "notifications without topic",
			mutate: func(c *Config) { c.Crawl.PublishNotifications = true },
			want:   "pubsub.topic_name",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
