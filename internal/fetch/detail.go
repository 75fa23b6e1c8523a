// Package fetch loads single-product detail pages over plain HTTP. Detail
// pages do not need JavaScript, so they bypass the browser session and go
// through colly with per-domain pacing.
package fetch

import (
	"context"
	"fmt"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/shelfwatch/price-crawler/internal/extract"
)

// Config controls the detail fetcher.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	// Delay is the minimum spacing between consecutive detail fetches
	// against the same site.
	Delay time.Duration
}

// DetailFetcher retrieves and parses product detail pages.
type DetailFetcher struct {
	base    *colly.Collector
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewDetailFetcher builds a fetcher for one crawl session.
func NewDetailFetcher(cfg Config, logger *zap.Logger) *DetailFetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
	)
	c.AllowURLRevisit = true
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	limit := rate.Inf
	if cfg.Delay > 0 {
		limit = rate.Every(cfg.Delay)
	}
	return &DetailFetcher{
		base:    c,
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger,
	}
}

// FetchDocument retrieves one detail page and returns it sanitized. The
// politeness limiter is honored before the request goes out.
func (f *DetailFetcher) FetchDocument(ctx context.Context, rawURL string) (*goquery.Document, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("detail fetch pacing: %w", err)
	}

	var (
		doc      *goquery.Document
		parseErr error
		fetchErr error
	)
	c := f.base.Clone()
	c.OnResponse(func(r *colly.Response) {
		doc, parseErr = extract.ParseDocument(string(r.Body))
	})
	c.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("visit detail page %s: %w", rawURL, err)
	}
	c.Wait()

	switch {
	case fetchErr != nil:
		return nil, fmt.Errorf("fetch detail page %s: %w", rawURL, fetchErr)
	case parseErr != nil:
		return nil, fmt.Errorf("parse detail page %s: %w", rawURL, parseErr)
	case doc == nil:
		return nil, fmt.Errorf("empty response for detail page %s", rawURL)
	}
	return doc, nil
}
