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
crawler:
  workers: 6
  queue_depth: 128
  user_agent: shelfwatch-agent
  locale: de-DE
  default_delay_seconds: 2
  click_retries: 5
  detail_workers: 8
  cookies:
    consent: accepted
sitemap:
  timeout_seconds: 30
  max_redirects: 3
  max_nodes: 500
browser:
  headless: false
  nav_timeout_seconds: 20
db:
  dsn: postgres://localhost/pricecrawler
logging:
  development: false
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
	if cfg.Crawler.Workers != 6 || cfg.Crawler.Locale != "de-DE" {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.Cookies["consent"] != "accepted" {
		t.Fatalf("expected cookies to load: %+v", cfg.Crawler.Cookies)
	}
	if cfg.Sitemap.MaxRedirects != 3 || cfg.Sitemap.MaxNodes != 500 {
		t.Fatalf("expected sitemap overrides to apply: %+v", cfg.Sitemap)
	}
	if cfg.Browser.Headless {
		t.Fatal("expected browser.headless override to apply")
	}
	if cfg.DB.DSN != "postgres://localhost/pricecrawler" {
		t.Fatalf("expected db dsn to load, got %q", cfg.DB.DSN)
	}
	if got := cfg.Sitemap.Timeout(); got != 30*time.Second {
		t.Fatalf("expected sitemap timeout 30s, got %v", got)
	}
	if got := cfg.Crawler.DefaultDelay(); got != 2*time.Second {
		t.Fatalf("expected default delay 2s, got %v", got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Crawler.UserAgent != "shelfwatch-bot/0.1" {
		t.Fatalf("unexpected default user agent %q", cfg.Crawler.UserAgent)
	}
	if cfg.Sitemap.Timeout() != 50*time.Second {
		t.Fatalf("unexpected default sitemap timeout %v", cfg.Sitemap.Timeout())
	}
	if !cfg.Browser.Headless {
		t.Fatal("expected headless browsing by default")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Server: ServerConfig{Port: 8080},
		Crawler: CrawlerConfig{
			UserAgent:     "shelfwatch-bot/0.1",
			DetailWorkers: 4,
		},
		Sitemap: SitemapConfig{TimeoutSeconds: 50, MaxRedirects: 5},
	}

	tests := []struct {
		name string
		cfg  Config
		want string
	}{
		{
			name: "invalid port",
			cfg: func() Config {
				c := base
				c.Server.Port = 0
				return c
			}(),
			want: "server.port",
		},
		{
			name: "missing user agent",
			cfg: func() Config {
				c := base
				c.Crawler.UserAgent = ""
				return c
			}(),
			want: "crawler.user_agent",
		},
		{
			name: "invalid detail workers",
			cfg: func() Config {
				c := base
				c.Crawler.DetailWorkers = 0
				return c
			}(),
			want: "crawler.detail_workers",
		},
		{
			name: "invalid sitemap timeout",
			cfg: func() Config {
				c := base
				c.Sitemap.TimeoutSeconds = 0
				return c
			}(),
			want: "sitemap.timeout_seconds",
		},
		{
			name: "invalid redirect budget",
			cfg: func() Config {
				c := base
				c.Sitemap.MaxRedirects = 0
				return c
			}(),
			want: "sitemap.max_redirects",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
