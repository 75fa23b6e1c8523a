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
	Server  ServerConfig  `mapstructure:"server"`
	Crawler CrawlerConfig `mapstructure:"crawler"`
	Sitemap SitemapConfig `mapstructure:"sitemap"`
	Browser BrowserConfig `mapstructure:"browser"`
	DB      DBConfig      `mapstructure:"db"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// CrawlerConfig governs job scheduling and crawl politeness.
type CrawlerConfig struct {
	Workers             int               `mapstructure:"workers"`
	QueueDepth          int               `mapstructure:"queue_depth"`
	UserAgent           string            `mapstructure:"user_agent"`
	Locale              string            `mapstructure:"locale"`
	DefaultDelaySeconds int               `mapstructure:"default_delay_seconds"`
	ClickRetries        int               `mapstructure:"click_retries"`
	DetailWorkers       int               `mapstructure:"detail_workers"`
	Cookies             map[string]string `mapstructure:"cookies"`
}

// SitemapConfig bounds sitemap resolution.
type SitemapConfig struct {
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
	MaxRedirects   int `mapstructure:"max_redirects"`
	MaxNodes       int `mapstructure:"max_nodes"`
}

// BrowserConfig configures the headless browser sessions.
type BrowserConfig struct {
	Headless      bool `mapstructure:"headless"`
	NavTimeoutSec int  `mapstructure:"nav_timeout_seconds"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store.
type DBConfig struct {
	DSN                string `mapstructure:"dsn"`
	MaxConns           int32  `mapstructure:"max_conns"`
	MinConns           int32  `mapstructure:"min_conns"`
	ConnLifetimeMinute int    `mapstructure:"conn_lifetime_minutes"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICECRAWLER")
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
	v.SetDefault("crawler.workers", 0)
	v.SetDefault("crawler.queue_depth", 64)
	v.SetDefault("crawler.user_agent", "shelfwatch-bot/0.1")
	v.SetDefault("crawler.locale", "ro-RO")
	v.SetDefault("crawler.default_delay_seconds", 1)
	v.SetDefault("crawler.click_retries", 10)
	v.SetDefault("crawler.detail_workers", 4)
	v.SetDefault("sitemap.timeout_seconds", 50)
	v.SetDefault("sitemap.max_redirects", 5)
	v.SetDefault("sitemap.max_nodes", 10000)
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout_seconds", 45)
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Crawler.Workers < 0 {
		return fmt.Errorf("crawler.workers must be >= 0")
	}
	if c.Crawler.UserAgent == "" {
		return fmt.Errorf("crawler.user_agent must be set")
	}
	if c.Crawler.DetailWorkers <= 0 {
		return fmt.Errorf("crawler.detail_workers must be > 0")
	}
	if c.Sitemap.TimeoutSeconds <= 0 {
		return fmt.Errorf("sitemap.timeout_seconds must be > 0")
	}
	if c.Sitemap.MaxRedirects <= 0 {
		return fmt.Errorf("sitemap.max_redirects must be > 0")
	}
	return nil
}

// DefaultDelay converts the politeness delay into a duration.
func (c CrawlerConfig) DefaultDelay() time.Duration {
	return time.Duration(c.DefaultDelaySeconds) * time.Second
}

// Timeout converts the sitemap timeout into a duration.
func (c SitemapConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// NavTimeout converts the navigation timeout into a duration.
func (c BrowserConfig) NavTimeout() time.Duration {
	return time.Duration(c.NavTimeoutSec) * time.Second
}

// ConnLifetime converts the pool lifetime into a duration.
func (c DBConfig) ConnLifetime() time.Duration {
	return time.Duration(c.ConnLifetimeMinute) * time.Minute
}
