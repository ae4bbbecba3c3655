// Package config loads and validates program-crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/JakeFAU/program-crawler/internal/crawler"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Crawl     CrawlConfig     `mapstructure:"crawl"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	LLM       LLMConfig       `mapstructure:"llm"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
	Refine    RefineConfig    `mapstructure:"refine"`
	Storage   StorageConfig   `mapstructure:"storage"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Search    SearchConfig    `mapstructure:"search"`
	Progress  ProgressConfig  `mapstructure:"progress"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// CrawlConfig governs the orchestrator.
type CrawlConfig struct {
	Workers              int    `mapstructure:"workers"`
	MaxGlobalRetries     int    `mapstructure:"max_global_retries"`
	WaveDelayMillis      int    `mapstructure:"wave_delay_ms"`
	WaveDelayMaxMillis   int    `mapstructure:"wave_delay_max_ms"`
	BaseURL              string `mapstructure:"base_url"`
	InputPath            string `mapstructure:"input_path"`
	SaveArtifacts        bool   `mapstructure:"save_artifacts"`
	PublishNotifications bool   `mapstructure:"publish_notifications"`
}

// FetchConfig configures page retrieval.
type FetchConfig struct {
	TimeoutSeconds int     `mapstructure:"timeout_seconds"`
	UserAgent      string  `mapstructure:"user_agent"`
	RespectRobots  bool    `mapstructure:"respect_robots"`
	RatePerSecond  float64 `mapstructure:"rate_per_second"`
	Burst          int     `mapstructure:"burst"`
}

// LLMConfig configures the chat-completion endpoint.
type LLMConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKey              string  `mapstructure:"api_key"`
	Model               string  `mapstructure:"model"`
	MaxTokens           int     `mapstructure:"max_tokens"`
	ShortTimeoutSeconds int     `mapstructure:"short_timeout_seconds"`
	LongTimeoutSeconds  int     `mapstructure:"long_timeout_seconds"`
	RatePerSecond       float64 `mapstructure:"rate_per_second"`
	Burst               int     `mapstructure:"burst"`
}

// EmbeddingConfig configures the embedding endpoint. Empty values inherit
// from the LLM section.
type EmbeddingConfig struct {
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	Model     string `mapstructure:"model"`
	BatchSize int    `mapstructure:"batch_size"`
}

// RefineConfig bounds the validation loop.
type RefineConfig struct {
	MaxAttempts int  `mapstructure:"max_attempts"`
	SchemaCheck bool `mapstructure:"schema_check"`
}

// StorageConfig selects the result store and artifact location.
type StorageConfig struct {
	Backend      string `mapstructure:"backend"`
	ResultsPath  string `mapstructure:"results_path"`
	BlobBackend  string `mapstructure:"blob_backend"`
	LocalBaseDir string `mapstructure:"local_base_dir"`
	GCSBucket    string `mapstructure:"gcs_bucket"`
	Prefix       string `mapstructure:"prefix"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN            string `mapstructure:"dsn"`
	ResultsTable   string `mapstructure:"results_table"`
	DocumentsTable string `mapstructure:"documents_table"`
	MaxConns       int    `mapstructure:"max_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// SearchConfig configures ranking and the corpus backend.
type SearchConfig struct {
	Backend          string `mapstructure:"backend"`
	TopK             int    `mapstructure:"top_k"`
	WeightCacheSize  int    `mapstructure:"weight_cache_size"`
	IndexOnStartup   bool   `mapstructure:"index_on_startup"`
	MaxFilterResults int    `mapstructure:"max_filter_results"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	BufferSize      int  `mapstructure:"buffer_size"`
	MaxBatchEvents  int  `mapstructure:"max_batch_events"`
	MaxBatchWaitMs  int  `mapstructure:"max_batch_wait_ms"`
	SinkTimeoutMs   int  `mapstructure:"sink_timeout_ms"`
	LogEvents       bool `mapstructure:"log_events"`
	PrometheusSinks bool `mapstructure:"prometheus"`
}

// TelemetryConfig toggles OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	ServiceName  string `mapstructure:"service_name"`
	OTLPEndpoint string `mapstructure:"otlp_endpoint"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PROGRAM_CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout_seconds", 60)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
	v.SetDefault("crawl.workers", 3)
	v.SetDefault("crawl.max_global_retries", 5)
	v.SetDefault("crawl.wave_delay_ms", 1000)
	v.SetDefault("crawl.wave_delay_max_ms", 10000)
	v.SetDefault("crawl.base_url", "https://www.sim.edu.sg")
	v.SetDefault("crawl.input_path", "programs.csv")
	v.SetDefault("crawl.save_artifacts", false)
	v.SetDefault("crawl.publish_notifications", false)
	v.SetDefault("fetch.timeout_seconds", 60)
	v.SetDefault("fetch.user_agent", "program-crawler/0.1")
	v.SetDefault("fetch.respect_robots", false)
	v.SetDefault("fetch.rate_per_second", 2.0)
	v.SetDefault("fetch.burst", 2)
	v.SetDefault("llm.base_url", "https://api.openai.com/v1")
	v.SetDefault("llm.model", "gpt-4o-mini")
	v.SetDefault("llm.max_tokens", 8000)
	v.SetDefault("llm.short_timeout_seconds", 60)
	v.SetDefault("llm.long_timeout_seconds", 180)
	v.SetDefault("llm.rate_per_second", 5.0)
	v.SetDefault("llm.burst", 5)
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.batch_size", 64)
	v.SetDefault("refine.max_attempts", 3)
	v.SetDefault("refine.schema_check", true)
	v.SetDefault("storage.backend", "file")
	v.SetDefault("storage.results_path", "program_results.json")
	v.SetDefault("storage.blob_backend", "none")
	v.SetDefault("storage.local_base_dir", "artifacts")
	v.SetDefault("storage.prefix", "pages")
	v.SetDefault("db.results_table", "program_results")
	v.SetDefault("db.documents_table", "program_documents")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("search.backend", "memory")
	v.SetDefault("search.top_k", 10)
	v.SetDefault("search.weight_cache_size", 100)
	v.SetDefault("search.index_on_startup", true)
	v.SetDefault("search.max_filter_results", 10)
	v.SetDefault("progress.enabled", true)
	v.SetDefault("progress.buffer_size", 4096)
	v.SetDefault("progress.max_batch_events", 500)
	v.SetDefault("progress.max_batch_wait_ms", 1000)
	v.SetDefault("progress.sink_timeout_ms", 2000)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("progress.prometheus", true)
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.service_name", "program-crawler")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Crawl.Workers <= 0 {
		return fmt.Errorf("crawl.workers must be > 0")
	}
	if c.Crawl.MaxGlobalRetries <= 0 {
		return fmt.Errorf("crawl.max_global_retries must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.LLM.MaxTokens <= 0 {
		return fmt.Errorf("llm.max_tokens must be > 0")
	}
	if c.Refine.MaxAttempts <= 0 {
		return fmt.Errorf("refine.max_attempts must be > 0")
	}
	switch c.Storage.Backend {
	case "file":
		if c.Storage.ResultsPath == "" {
			return fmt.Errorf("storage.results_path must be set for the file backend")
		}
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend %q is not supported", c.Storage.Backend)
	}
	if c.DB.MaxConns < 0 || c.DB.MaxConns > 1000 {
		return fmt.Errorf("db.max_conns must be between 0 and 1000")
	}
	switch c.Storage.BlobBackend {
	case "", "none", "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs blob backend")
		}
	default:
		return fmt.Errorf("storage.blob_backend %q is not supported", c.Storage.BlobBackend)
	}
	switch c.Search.Backend {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set for the postgres search backend")
		}
	default:
		return fmt.Errorf("search.backend %q is not supported", c.Search.Backend)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("search.top_k must be > 0")
	}
	if c.Search.WeightCacheSize <= 0 {
		return fmt.Errorf("search.weight_cache_size must be > 0")
	}
	if c.Crawl.PublishNotifications && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when notifications are enabled")
	}
	return nil
}

// RetryPolicy converts the crawl section into the orchestrator's retry policy.
func (c Config) RetryPolicy() crawler.RetryPolicy {
	return crawler.RetryPolicy{
		MaxAttempts: c.Crawl.MaxGlobalRetries,
		BaseDelay:   time.Duration(c.Crawl.WaveDelayMillis) * time.Millisecond,
		MaxDelay:    time.Duration(c.Crawl.WaveDelayMaxMillis) * time.Millisecond,
	}
}

// FetchTimeout returns the per-page fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// EmbeddingEndpoint resolves the embedding base URL, API key and model,
// falling back to the LLM section for unset values.
func (c Config) EmbeddingEndpoint() (baseURL, apiKey, model string) {
	baseURL, apiKey, model = c.Embedding.BaseURL, c.Embedding.APIKey, c.Embedding.Model
	if baseURL == "" {
		baseURL = c.LLM.BaseURL
	}
	if apiKey == "" {
		apiKey = c.LLM.APIKey
	}
	return baseURL, apiKey, model
}
