// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Fetch      FetchConfig      `mapstructure:"fetch"`
	Portal     PortalConfig     `mapstructure:"portal"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Cache      CacheConfig      `mapstructure:"cache"`
	Extractor  ExtractorConfig  `mapstructure:"extractor"`
	Dispatcher DispatcherConfig `mapstructure:"dispatcher"`
	DB         DBConfig         `mapstructure:"db"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// FetchConfig governs the fetch backends, the governor, and retries.
type FetchConfig struct {
	AutomationEnabled        bool    `mapstructure:"automation_enabled"`
	GlobalConcurrency        int     `mapstructure:"global_concurrency"`
	AutomationConcurrency    int     `mapstructure:"automation_concurrency"`
	PerHostDelaySeconds      int     `mapstructure:"per_host_delay_seconds"`
	PerHostRPS               float64 `mapstructure:"per_host_rps"`
	TimeoutSeconds           int     `mapstructure:"timeout_seconds"`
	AutomationTimeoutSeconds int     `mapstructure:"automation_timeout_seconds"`
	MaxRetries               int     `mapstructure:"max_retries"`
	BackoffInitialMs         int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs             int     `mapstructure:"backoff_max_ms"`
	UserAgent                string  `mapstructure:"user_agent"`
}

// PortalConfig bounds the second extraction pass.
type PortalConfig struct {
	MaxPerBatch       int `mapstructure:"max_per_batch"`
	MaxLinksPerPortal int `mapstructure:"max_links_per_portal"`
}

// ClassifierConfig tunes classification policy.
type ClassifierConfig struct {
	// PortalConfidence is inherit_min or independent.
	PortalConfidence string `mapstructure:"portal_confidence"`
}

// CacheConfig selects the dedup index and blob store backends.
type CacheConfig struct {
	FreshnessWindowSeconds int    `mapstructure:"freshness_window_seconds"`
	Index                  string `mapstructure:"index"`
	BlobStore              string `mapstructure:"blob_store"`
	LocalDir               string `mapstructure:"local_dir"`
	GCSBucket              string `mapstructure:"gcs_bucket"`
}

// ExtractorConfig points at the external content extraction service. An
// empty service URL falls back to the inline HTML/text extractor.
type ExtractorConfig struct {
	ServiceURL     string `mapstructure:"service_url"`
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
}

// DispatcherConfig bounds batch execution.
type DispatcherConfig struct {
	BatchDeadlineSeconds     int  `mapstructure:"batch_deadline_seconds"`
	CancelInflightOnDeadline bool `mapstructure:"cancel_inflight_on_deadline"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN          string `mapstructure:"dsn"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MinOpenConns int    `mapstructure:"min_open_conns"`
}

// PubSubConfig holds metadata for publish-subscribe notifications.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("LINKHARVEST")
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
	v.SetDefault("fetch.automation_enabled", false)
	v.SetDefault("fetch.global_concurrency", 8)
	v.SetDefault("fetch.automation_concurrency", 2)
	v.SetDefault("fetch.per_host_delay_seconds", 1)
	v.SetDefault("fetch.per_host_rps", 2.0)
	v.SetDefault("fetch.timeout_seconds", 15)
	v.SetDefault("fetch.automation_timeout_seconds", 45)
	v.SetDefault("fetch.max_retries", 3)
	v.SetDefault("fetch.backoff_initial_ms", 250)
	v.SetDefault("fetch.backoff_max_ms", 5000)
	v.SetDefault("fetch.user_agent", "linkharvest-bot/0.1")
	v.SetDefault("portal.max_per_batch", 3)
	v.SetDefault("portal.max_links_per_portal", 25)
	v.SetDefault("classifier.portal_confidence", "inherit_min")
	v.SetDefault("cache.freshness_window_seconds", 86400)
	v.SetDefault("cache.index", "memory")
	v.SetDefault("cache.blob_store", "memory")
	v.SetDefault("extractor.timeout_seconds", 30)
	v.SetDefault("dispatcher.batch_deadline_seconds", 300)
	v.SetDefault("dispatcher.cancel_inflight_on_deadline", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Fetch.GlobalConcurrency <= 0 {
		return fmt.Errorf("fetch.global_concurrency must be > 0")
	}
	if c.Fetch.AutomationConcurrency <= 0 {
		return fmt.Errorf("fetch.automation_concurrency must be > 0")
	}
	if c.Fetch.AutomationConcurrency > c.Fetch.GlobalConcurrency {
		return fmt.Errorf("fetch.automation_concurrency must not exceed fetch.global_concurrency")
	}
	if c.Fetch.PerHostDelaySeconds < 0 {
		return fmt.Errorf("fetch.per_host_delay_seconds must be >= 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Fetch.AutomationTimeoutSeconds <= c.Fetch.TimeoutSeconds {
		return fmt.Errorf("fetch.automation_timeout_seconds must exceed fetch.timeout_seconds")
	}
	if c.Fetch.MaxRetries < 0 {
		return fmt.Errorf("fetch.max_retries must be >= 0")
	}
	switch c.Classifier.PortalConfidence {
	case "inherit_min", "independent":
	default:
		return fmt.Errorf("classifier.portal_confidence must be inherit_min or independent, got %q", c.Classifier.PortalConfidence)
	}
	switch c.Cache.Index {
	case "memory":
	case "postgres":
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn must be set when cache.index is postgres")
		}
	default:
		return fmt.Errorf("cache.index must be memory or postgres, got %q", c.Cache.Index)
	}
	switch c.Cache.BlobStore {
	case "memory":
	case "local":
		if c.Cache.LocalDir == "" {
			return fmt.Errorf("cache.local_dir must be set when cache.blob_store is local")
		}
	case "gcs":
		if c.Cache.GCSBucket == "" {
			return fmt.Errorf("cache.gcs_bucket must be set when cache.blob_store is gcs")
		}
	default:
		return fmt.Errorf("cache.blob_store must be memory, local, or gcs, got %q", c.Cache.BlobStore)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout returns the lightweight fetch timeout as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// AutomationTimeout returns the automation fetch timeout as a duration.
func (c Config) AutomationTimeout() time.Duration {
	return time.Duration(c.Fetch.AutomationTimeoutSeconds) * time.Second
}

// PerHostDelay returns the politeness delay as a duration.
func (c Config) PerHostDelay() time.Duration {
	return time.Duration(c.Fetch.PerHostDelaySeconds) * time.Second
}

// BackoffInitial returns the first retry delay as a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.Fetch.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay ceiling as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.Fetch.BackoffMaxMs) * time.Millisecond
}

// ExtractorTimeout returns the extraction client timeout as a duration.
func (c Config) ExtractorTimeout() time.Duration {
	return time.Duration(c.Extractor.TimeoutSeconds) * time.Second
}

// FreshnessWindow returns the URL-recency window as a duration.
func (c Config) FreshnessWindow() time.Duration {
	return time.Duration(c.Cache.FreshnessWindowSeconds) * time.Second
}

// BatchDeadline returns the per-batch deadline as a duration.
func (c Config) BatchDeadline() time.Duration {
	return time.Duration(c.Dispatcher.BatchDeadlineSeconds) * time.Second
}
