// Package config loads and validates pipeline configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all pipeline configuration knobs loaded via Viper.
type Config struct {
	HTTP      HTTPConfig      `mapstructure:"http"`
	Collector CollectorConfig `mapstructure:"collector"`
	Paths     PathsConfig     `mapstructure:"paths"`
	DB        DBConfig        `mapstructure:"db"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// HTTPConfig configures the fetch session and its retry behavior.
type HTTPConfig struct {
	UserAgent        string `mapstructure:"user_agent"`
	TimeoutSeconds   int    `mapstructure:"timeout_seconds"`
	MaxRetries       int    `mapstructure:"max_retries"`
	BackoffInitialMs int    `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int    `mapstructure:"backoff_max_ms"`
}

// CollectorConfig governs the collection loop.
type CollectorConfig struct {
	DelaySeconds  int  `mapstructure:"delay_seconds"`
	SaveSnapshots bool `mapstructure:"save_snapshots"`
}

// PathsConfig sets input and output locations.
type PathsConfig struct {
	URLList   string `mapstructure:"url_list"`
	OutputDir string `mapstructure:"output_dir"`
	LogFile   string `mapstructure:"log_file"`
}

// DBConfig controls the optional Postgres sink. Empty DSN disables it.
type DBConfig struct {
	DSN string `mapstructure:"dsn"`
}

// MetricsConfig controls the Prometheus endpoint served during a run.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GDM")
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
	v.SetDefault("http.user_agent",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 250)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("collector.delay_seconds", 1)
	v.SetDefault("collector.save_snapshots", false)
	v.SetDefault("paths.url_list", "data/urls.txt")
	v.SetDefault("paths.output_dir", "data")
	v.SetDefault("paths.log_file", "")
	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries < 0 {
		return fmt.Errorf("http.max_retries must be >= 0")
	}
	if c.Collector.DelaySeconds < 0 {
		return fmt.Errorf("collector.delay_seconds must be >= 0")
	}
	if c.Paths.URLList == "" {
		return fmt.Errorf("paths.url_list must be set")
	}
	if c.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		return fmt.Errorf("metrics.addr must be set when metrics are enabled")
	}
	return nil
}

// Timeout returns the per-request timeout as a duration.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// Delay returns the minimum inter-request delay as a duration.
func (c Config) Delay() time.Duration {
	return time.Duration(c.Collector.DelaySeconds) * time.Second
}

// BackoffInitial returns the first retry backoff as a duration.
func (c Config) BackoffInitial() time.Duration {
	return time.Duration(c.HTTP.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry backoff ceiling as a duration.
func (c Config) BackoffMax() time.Duration {
	return time.Duration(c.HTTP.BackoffMaxMs) * time.Millisecond
}
