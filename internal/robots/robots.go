// Package robots retrieves and interprets robots.txt for a domain, producing
// the crawl rules a job is created with.
package robots

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

const (
	fetchTimeout = 10 * time.Second
	maxBodyBytes = 1 << 20
)

// Defaults supply the rules used when robots.txt is unreachable or silent.
type Defaults struct {
	UserAgent  string
	CrawlDelay time.Duration
}

// Client fetches robots.txt and extracts sitemap URLs and the crawl delay.
type Client struct {
	httpClient *http.Client
	defaults   Defaults
	logger     *zap.Logger
}

// NewClient builds a Client with the given defaults.
func NewClient(defaults Defaults, logger *zap.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: fetchTimeout},
		defaults:   defaults,
		logger:     logger,
	}
}

// Rules resolves the robot rules for a homepage URL. An unreachable or
// unparseable robots.txt falls back to the configured defaults rather than
// failing the submission.
func (c *Client) Rules(ctx context.Context, homepage string) catalog.RobotRules {
	rules := catalog.RobotRules{
		UserAgent:  c.defaults.UserAgent,
		CrawlDelay: c.defaults.CrawlDelay,
	}

	data, err := c.fetch(ctx, homepage)
	if err != nil {
		c.logger.Warn("robots.txt unavailable, using defaults",
			zap.String("homepage", homepage), zap.Error(err))
		return rules
	}

	rules.Sitemaps = append(rules.Sitemaps, data.Sitemaps...)
	if group := data.FindGroup(c.defaults.UserAgent); group != nil && group.CrawlDelay > 0 {
		rules.CrawlDelay = group.CrawlDelay
	}
	return rules
}

func (c *Client) fetch(ctx context.Context, homepage string) (*robotstxt.RobotsData, error) {
	parsed, err := url.Parse(homepage)
	if err != nil {
		return nil, fmt.Errorf("parse homepage: %w", err)
	}
	robotsURL := url.URL{
		Scheme: parsed.Scheme,
		Host:   parsed.Host,
		Path:   "/robots.txt",
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	req.Header.Set("User-Agent", c.defaults.UserAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			c.logger.Debug("close robots body", zap.Error(cerr))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}
