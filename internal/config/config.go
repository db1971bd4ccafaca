// Package config provides configuration loading for Knowbase Core.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration for the core.
type Config struct {
	DataDir      string             `mapstructure:"data_dir"`
	Logging      LoggingConfig      `mapstructure:"logging"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`
	Retention    RetentionConfig    `mapstructure:"retention"`
	Sync         SyncConfig         `mapstructure:"sync"`
	Realtime     RealtimeConfig     `mapstructure:"realtime"`
	API          APIConfig          `mapstructure:"api"`
}

type APIConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Timeout string `mapstructure:"timeout"`
}

func (c APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CacheConfig struct {
	DefaultTTL string `mapstructure:"default_ttl"`
	DetailTTL  string `mapstructure:"detail_ttl"`
}

func (c CacheConfig) GetDefaultTTL() time.Duration {
	return parseDuration(c.DefaultTTL, 5*time.Minute)
}

func (c CacheConfig) GetDetailTTL() time.Duration {
	return parseDuration(c.DetailTTL, 15*time.Minute)
}

type QueueConfig struct {
	MaxPendingWrites int `mapstructure:"max_pending_writes"`
	MaxAttempts      int `mapstructure:"max_attempts"`
}

type ConnectivityConfig struct {
	// FlipThreshold is the number of consecutive matching signals
	// required before the availability state changes.
	FlipThreshold int `mapstructure:"flip_threshold"`
}

type RetentionConfig struct {
	MaxNoteSnapshots    int    `mapstructure:"max_note_snapshots"`
	MaxWebsiteSnapshots int    `mapstructure:"max_website_snapshots"`
	ArchivedWindow      string `mapstructure:"archived_window"`
	CleanupSchedule     string `mapstructure:"cleanup_schedule"`
}

func (c RetentionConfig) GetArchivedWindow() time.Duration {
	return parseDuration(c.ArchivedWindow, 7*24*time.Hour)
}

type SyncConfig struct {
	RefreshInterval string `mapstructure:"refresh_interval"`
}

func (c SyncConfig) GetRefreshInterval() time.Duration {
	return parseDuration(c.RefreshInterval, 15*time.Minute)
}

type RealtimeConfig struct {
	URL              string `mapstructure:"url"`
	ReconnectBackoff string `mapstructure:"reconnect_backoff"`
	MaxBackoff       string `mapstructure:"max_backoff"`
}

func (c RealtimeConfig) GetReconnectBackoff() time.Duration {
	return parseDuration(c.ReconnectBackoff, time.Second)
}

func (c RealtimeConfig) GetMaxBackoff() time.Duration {
	return parseDuration(c.MaxBackoff, time.Minute)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// Load reads configuration from the given file (optional), environment
// variables prefixed with KNOWBASE_, and built-in defaults.
func Load(path string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetEnvPrefix("KNOWBASE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("data_dir", "./data")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("cache.default_ttl", "5m")
	v.SetDefault("cache.detail_ttl", "15m")
	v.SetDefault("queue.max_pending_writes", 500)
	v.SetDefault("queue.max_attempts", 5)
	v.SetDefault("connectivity.flip_threshold", 2)
	v.SetDefault("retention.max_note_snapshots", 200)
	v.SetDefault("retention.max_website_snapshots", 500)
	v.SetDefault("retention.archived_window", "168h")
	v.SetDefault("retention.cleanup_schedule", "@hourly")
	v.SetDefault("sync.refresh_interval", "15m")
	v.SetDefault("realtime.url", "")
	v.SetDefault("realtime.reconnect_backoff", "1s")
	v.SetDefault("realtime.max_backoff", "1m")
	v.SetDefault("api.base_url", "")
	v.SetDefault("api.timeout", "30s")
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Queue.MaxPendingWrites <= 0 {
		return fmt.Errorf("queue.max_pending_writes must be positive, got %d", c.Queue.MaxPendingWrites)
	}
	if c.Queue.MaxAttempts <= 0 {
		return fmt.Errorf("queue.max_attempts must be positive, got %d", c.Queue.MaxAttempts)
	}
	if c.Connectivity.FlipThreshold < 1 {
		return fmt.Errorf("connectivity.flip_threshold must be at least 1, got %d", c.Connectivity.FlipThreshold)
	}
	return nil
}
