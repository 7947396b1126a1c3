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
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Store    StoreConfig    `mapstructure:"store"`
	Fetch    FetchConfig    `mapstructure:"fetch"`
	Jobs     JobsConfig     `mapstructure:"jobs"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
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

// StoreConfig sets where tenant databases live.
type StoreConfig struct {
	Dir string `mapstructure:"dir"`
}

// FetchConfig governs the fetch worker pool.
type FetchConfig struct {
	Workers        int      `mapstructure:"workers"`
	MaxBatch       int      `mapstructure:"max_batch"`
	TimeoutSeconds int      `mapstructure:"timeout_seconds"`
	MaxContentLen  int      `mapstructure:"max_content_len"`
	ExcerptLen     int      `mapstructure:"excerpt_len"`
	UserAgent      string   `mapstructure:"user_agent"`
	PerDomainRPS   float64  `mapstructure:"per_domain_rps"`
	PerDomainBurst int      `mapstructure:"per_domain_burst"`
	BlockedDomains []string `mapstructure:"blocked_domains"`
}

// ProgressConfig controls fetch lifecycle event reporting.
type ProgressConfig struct {
	LogEvents bool `mapstructure:"log_events"`
}

// JobsConfig governs aggregated job search.
type JobsConfig struct {
	CacheTTLMinutes  int    `mapstructure:"cache_ttl_minutes"`
	DefaultLimit     int    `mapstructure:"default_limit"`
	RemotiveBaseURL  string `mapstructure:"remotive_base_url"`
	ArbeitnowBaseURL string `mapstructure:"arbeitnow_base_url"`
	JobicyBaseURL    string `mapstructure:"jobicy_base_url"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CHATSTASH")
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
	v.SetDefault("store.dir", "data")
	v.SetDefault("fetch.workers", 8)
	v.SetDefault("fetch.max_batch", 1000)
	v.SetDefault("fetch.timeout_seconds", 30)
	v.SetDefault("fetch.max_content_len", 20000)
	v.SetDefault("fetch.excerpt_len", 300)
	v.SetDefault("fetch.user_agent", "chatstash-bot/0.1")
	v.SetDefault("fetch.per_domain_rps", 0)
	v.SetDefault("fetch.per_domain_burst", 1)
	v.SetDefault("jobs.cache_ttl_minutes", 5)
	v.SetDefault("jobs.default_limit", 20)
	v.SetDefault("progress.log_events", false)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Store.Dir == "" {
		return fmt.Errorf("store.dir must be set")
	}
	if c.Fetch.Workers <= 0 {
		return fmt.Errorf("fetch.workers must be > 0")
	}
	if c.Fetch.MaxBatch <= 0 {
		return fmt.Errorf("fetch.max_batch must be > 0")
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch.timeout_seconds must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	return nil
}

// FetchTimeout converts the configured per-URL timeout into a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// JobsCacheTTL converts the configured cache window into a duration.
func (c Config) JobsCacheTTL() time.Duration {
	return time.Duration(c.Jobs.CacheTTLMinutes) * time.Minute
}
