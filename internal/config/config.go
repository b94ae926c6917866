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
	Crawler  CrawlerConfig  `mapstructure:"crawler"`
	Render   RenderConfig   `mapstructure:"render"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Imaging  ImagingConfig  `mapstructure:"imaging"`
	Storage  StorageConfig  `mapstructure:"storage"`
	DB       DBConfig       `mapstructure:"db"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port           int `mapstructure:"port"`
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// CrawlerConfig governs traversal and worker behavior.
type CrawlerConfig struct {
	Workers         int    `mapstructure:"workers"`
	QueueDepth      int    `mapstructure:"queue_depth"`
	UserAgent       string `mapstructure:"user_agent"`
	MaxPagesDefault int    `mapstructure:"max_pages_default"`
	MaxPagesLimit   int    `mapstructure:"max_pages_limit"`
	RespectRobots   bool   `mapstructure:"respect_robots"`
}

// RenderConfig configures the headless rendering subsystem.
type RenderConfig struct {
	ViewportWidth   int `mapstructure:"viewport_width"`
	ViewportHeight  int `mapstructure:"viewport_height"`
	NavTimeoutSec   int `mapstructure:"nav_timeout_seconds"`
	OpTimeoutSec    int `mapstructure:"op_timeout_seconds"`
	FetchTimeoutSec int `mapstructure:"fetch_timeout_seconds"`
}

// AssetsConfig controls the per-image pipeline.
type AssetsConfig struct {
	Concurrency int     `mapstructure:"concurrency"`
	PerHostRPS  float64 `mapstructure:"per_host_rps"`
	Burst       int     `mapstructure:"burst"`
	Prefix      string  `mapstructure:"prefix"`
}

// ImagingConfig tunes blur detection and color extraction.
type ImagingConfig struct {
	BlurThreshold float64 `mapstructure:"blur_threshold"`
	VarianceScale float64 `mapstructure:"variance_scale"`
	AnalyzeColors int     `mapstructure:"analyze_colors"`
}

// StorageConfig selects and configures the blob backend.
type StorageConfig struct {
	Backend          string `mapstructure:"backend"`
	GCSBucket        string `mapstructure:"gcs_bucket"`
	LocalDir         string `mapstructure:"local_dir"`
	ScreenshotPrefix string `mapstructure:"screenshot_prefix"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory job store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int    `mapstructure:"max_conns"`
	MinConns int    `mapstructure:"min_conns"`
}

// PubSubConfig holds metadata for completion notifications. An empty project
// disables publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig bounds the in-memory progress table.
type ProgressConfig struct {
	MaxEntries int `mapstructure:"max_entries"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("BRANDKIT")
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
	v.SetDefault("server.timeout_seconds", 30)
	v.SetDefault("crawler.workers", 2)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "brandkit-crawler/0.1")
	v.SetDefault("crawler.max_pages_default", 10)
	v.SetDefault("crawler.max_pages_limit", 100)
	v.SetDefault("crawler.respect_robots", false)
	v.SetDefault("render.viewport_width", 1280)
	v.SetDefault("render.viewport_height", 800)
	v.SetDefault("render.nav_timeout_seconds", 30)
	v.SetDefault("render.op_timeout_seconds", 15)
	v.SetDefault("render.fetch_timeout_seconds", 20)
	v.SetDefault("assets.concurrency", 8)
	v.SetDefault("assets.per_host_rps", 4)
	v.SetDefault("assets.burst", 2)
	v.SetDefault("assets.prefix", "images")
	v.SetDefault("imaging.blur_threshold", 15)
	v.SetDefault("imaging.variance_scale", 20)
	v.SetDefault("imaging.analyze_colors", 5)
	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./blobs")
	v.SetDefault("storage.screenshot_prefix", "screenshots")
	v.SetDefault("progress.max_entries", 1024)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers <= 0 {
		return fmt.Errorf("crawler.workers must be > 0")
	}
	if c.Crawler.MaxPagesDefault <= 0 {
		return fmt.Errorf("crawler.max_pages_default must be > 0")
	}
	if c.Crawler.MaxPagesLimit < c.Crawler.MaxPagesDefault {
		return fmt.Errorf("crawler.max_pages_limit must be >= crawler.max_pages_default")
	}
	switch c.Storage.Backend {
	case "local":
		if c.Storage.LocalDir == "" {
			return fmt.Errorf("storage.local_dir must be set for the local backend")
		}
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case "none":
	default:
		return fmt.Errorf("storage.backend must be local, gcs, or none")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.PubSub.ProjectID != "" && c.PubSub.TopicName == "" {
		return fmt.Errorf("pubsub.topic_name must be set when pubsub.project_id is set")
	}
	return nil
}

// NavTimeout returns the page navigation budget as a duration.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Render.NavTimeoutSec) * time.Second
}

// OpTimeout returns the per-operation page budget as a duration.
func (c Config) OpTimeout() time.Duration {
	return time.Duration(c.Render.OpTimeoutSec) * time.Second
}

// FetchTimeout returns the byte-fetch budget as a duration.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.Render.FetchTimeoutSec) * time.Second
}

// ServerTimeout returns the HTTP handler budget as a duration.
func (c Config) ServerTimeout() time.Duration {
	return time.Duration(c.Server.TimeoutSeconds) * time.Second
}
