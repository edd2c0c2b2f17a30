// Package config loads and validates orchestrator configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Image    ImageConfig    `mapstructure:"image"`
	Lobstr   LobstrConfig   `mapstructure:"lobstr"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Storage  StorageConfig  `mapstructure:"storage"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port                  int `mapstructure:"port"`
	RequestTimeoutSeconds int `mapstructure:"request_timeout_seconds"`
}

// AuthConfig defines bearer-token verification.
type AuthConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DatabaseConfig controls access to Postgres. An empty DSN selects the
// in-memory repositories.
type DatabaseConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// LLMConfig points at an OpenRouter-compatible chat completions gateway.
type LLMConfig struct {
	BaseURL   string  `mapstructure:"base_url"`
	Model     string  `mapstructure:"model"`
	APIKeyEnv string  `mapstructure:"api_key_env"`
	Referer   string  `mapstructure:"referer"`
	Title     string  `mapstructure:"title"`
	MaxTokens int     `mapstructure:"max_tokens"`
	Temp      float64 `mapstructure:"temperature"`
}

// ImageConfig points at the image-generation gateway.
type ImageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	Model     string `mapstructure:"model"`
	Size      string `mapstructure:"size"`
	APIKeyEnv string `mapstructure:"api_key_env"`
}

// LobstrConfig configures the Lobstr.io client and scrape state machine.
type LobstrConfig struct {
	BaseURL             string  `mapstructure:"base_url"`
	APIKeyEnv           string  `mapstructure:"api_key_env"`
	SquidID             string  `mapstructure:"squid_id"`
	RatePerSecond       float64 `mapstructure:"rate_per_second"`
	PollIntervalSeconds int     `mapstructure:"poll_interval_seconds"`
	PollTimeoutSeconds  int     `mapstructure:"poll_timeout_seconds"`
	MaxResultsPerSearch int     `mapstructure:"max_results_per_search"`
	LeaseTTLSeconds     int     `mapstructure:"lease_ttl_seconds"`
	DeleteParallelism   int     `mapstructure:"delete_parallelism"`
}

// FetchConfig configures the reference page fetcher.
type FetchConfig struct {
	UserAgent           string `mapstructure:"user_agent"`
	TimeoutSeconds      int    `mapstructure:"timeout_seconds"`
	HeadlessEnabled     bool   `mapstructure:"headless_enabled"`
	HeadlessMaxParallel int    `mapstructure:"headless_max_parallel"`
	PromotionThreshold  int    `mapstructure:"promotion_threshold"`
	MaxTextChars        int    `mapstructure:"max_text_chars"`
}

// StorageConfig selects the blob backend used for featured images:
// memory, local, gcs or s3.
type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	Bucket        string `mapstructure:"bucket"`
	Prefix        string `mapstructure:"prefix"`
	PublicBaseURL string `mapstructure:"public_base_url"`
	S3Endpoint    string `mapstructure:"s3_endpoint"`
	S3Region      string `mapstructure:"s3_region"`
	LocalDir      string `mapstructure:"local_dir"`
}

// PubSubConfig holds the backlink dispatch topic. An empty project selects
// the in-memory publisher.
type PubSubConfig struct {
	ProjectID     string `mapstructure:"project_id"`
	BacklinkTopic string `mapstructure:"backlink_topic"`
}

// PipelineConfig tunes the article workflow.
type PipelineConfig struct {
	MinArticleChars        int    `mapstructure:"min_article_chars"`
	MetaMaxChars           int    `mapstructure:"meta_max_chars"`
	PostStatus             string `mapstructure:"post_status"`
	StatusTimeoutSeconds   int    `mapstructure:"status_timeout_seconds"`
	BacklinkTimeoutSeconds int    `mapstructure:"backlink_timeout_seconds"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ORCH")
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
	v.SetDefault("server.request_timeout_seconds", 900)
	v.SetDefault("auth.enabled", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("database.max_conns", 8)
	v.SetDefault("database.min_conns", 1)
	v.SetDefault("llm.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("llm.model", "anthropic/claude-3.5-sonnet")
	v.SetDefault("llm.api_key_env", "OPENROUTER_API_KEY")
	v.SetDefault("llm.title", "Content Orchestrator")
	v.SetDefault("llm.max_tokens", 4000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("image.enabled", true)
	v.SetDefault("image.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("image.model", "openai/gpt-image-1")
	v.SetDefault("image.size", "1536x1024")
	v.SetDefault("image.api_key_env", "IMAGE_API_KEY")
	v.SetDefault("lobstr.base_url", "https://api.lobstr.io/v1")
	v.SetDefault("lobstr.api_key_env", "LOBSTR_API_KEY")
	v.SetDefault("lobstr.rate_per_second", 2.0)
	v.SetDefault("lobstr.poll_interval_seconds", 15)
	v.SetDefault("lobstr.poll_timeout_seconds", 600)
	v.SetDefault("lobstr.max_results_per_search", 200)
	v.SetDefault("lobstr.lease_ttl_seconds", 3600)
	v.SetDefault("lobstr.delete_parallelism", 4)
	v.SetDefault("fetch.user_agent", "content-orchestrator/0.1")
	v.SetDefault("fetch.timeout_seconds", 20)
	v.SetDefault("fetch.headless_enabled", false)
	v.SetDefault("fetch.headless_max_parallel", 1)
	v.SetDefault("fetch.promotion_threshold", 60)
	v.SetDefault("fetch.max_text_chars", 12000)
	v.SetDefault("storage.backend", "memory")
	v.SetDefault("storage.prefix", "featured")
	v.SetDefault("pubsub.backlink_topic", "backlink-optimize")
	v.SetDefault("pipeline.min_article_chars", 100)
	v.SetDefault("pipeline.meta_max_chars", 155)
	v.SetDefault("pipeline.post_status", "published")
	v.SetDefault("pipeline.status_timeout_seconds", 5)
	v.SetDefault("pipeline.backlink_timeout_seconds", 120)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must be set when auth is enabled")
	}
	if c.LLM.BaseURL == "" || c.LLM.Model == "" {
		return fmt.Errorf("llm.base_url and llm.model are required")
	}
	if c.Lobstr.RatePerSecond <= 0 {
		return fmt.Errorf("lobstr.rate_per_second must be > 0")
	}
	if c.Lobstr.MaxResultsPerSearch <= 0 {
		return fmt.Errorf("lobstr.max_results_per_search must be > 0")
	}
	if c.Fetch.HeadlessEnabled && c.Fetch.HeadlessMaxParallel <= 0 {
		return fmt.Errorf("fetch.headless_max_parallel must be > 0 when headless is enabled")
	}
	switch c.Storage.Backend {
	case "memory":
	case "gcs", "s3":
		if c.Storage.Bucket == "" {
			return fmt.Errorf("storage.bucket must be set for backend %q", c.Storage.Backend)
		}
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for backend %q", c.Storage.Backend)
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Pipeline.MinArticleChars <= 0 {
		return fmt.Errorf("pipeline.min_article_chars must be > 0")
	}
	if c.Pipeline.MetaMaxChars < 10 {
		return fmt.Errorf("pipeline.meta_max_chars must be >= 10")
	}
	return nil
}

// RequestTimeout returns the per-request HTTP budget.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.Server.RequestTimeoutSeconds) * time.Second
}

// PollInterval returns the scrape status polling interval.
func (c LobstrConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// PollTimeout returns the wall-clock ceiling for status polling.
func (c LobstrConfig) PollTimeout() time.Duration {
	return time.Duration(c.PollTimeoutSeconds) * time.Second
}

// LeaseTTL returns how long a prepared squid stays reserved.
func (c LobstrConfig) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLSeconds) * time.Second
}

// Timeout returns the per-page fetch budget.
func (c FetchConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// StatusTimeout bounds each execution status write.
func (c PipelineConfig) StatusTimeout() time.Duration {
	return time.Duration(c.StatusTimeoutSeconds) * time.Second
}

// BacklinkTimeout bounds one detached backlink dispatch.
func (c PipelineConfig) BacklinkTimeout() time.Duration {
	return time.Duration(c.BacklinkTimeoutSeconds) * time.Second
}
