// Package sitemap flattens sitemap-index trees into discovered page records.
// Resolution is tolerant of cross-protocol redirects and gzip-compressed
// bodies, and a node cap bounds pathological index trees.
package sitemap

import (
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/antchfx/xmlquery"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/metrics"
)

const (
	defaultTimeout      = 50 * time.Second
	defaultMaxRedirects = 5
	defaultMaxNodes     = 10_000
	maxBodyBytes        = 50 << 20
)

// Config controls resolver behavior.
type Config struct {
	UserAgent    string
	Timeout      time.Duration
	MaxRedirects int
	MaxNodes     int
}

func (c Config) withDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = defaultTimeout
	}
	if c.MaxRedirects <= 0 {
		c.MaxRedirects = defaultMaxRedirects
	}
	if c.MaxNodes <= 0 {
		c.MaxNodes = defaultMaxNodes
	}
	return c
}

// Resolver expands a set of sitemap URLs breadth-first, upserting one SITEMAP
// page record per leaf URL. It holds no state between runs.
type Resolver struct {
	client *http.Client
	cfg    Config
	pages  catalog.PageStore
	clock  catalog.Clock
	logger *zap.Logger
}

// NewResolver builds a Resolver. Redirects are followed manually because the
// default client will not cross protocols (http to https) on its own.
func NewResolver(cfg Config, pages catalog.PageStore, clock catalog.Clock, logger *zap.Logger) *Resolver {
	cfg = cfg.withDefaults()
	return &Resolver{
		client: &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		cfg:    cfg,
		pages:  pages,
		clock:  clock,
		logger: logger,
	}
}

// Resolve drains the sitemap queue seeded with the given URLs and returns the
// number of leaf page records upserted. A single unreachable or looping
// sitemap URL is logged and skipped; only store failures abort resolution.
func (r *Resolver) Resolve(ctx context.Context, seeds []string) (int, error) {
	queue := append([]string{}, seeds...)
	discovered := 0
	processed := 0

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return discovered, fmt.Errorf("sitemap resolution canceled: %w", err)
		}
		if processed >= r.cfg.MaxNodes {
			r.logger.Warn("sitemap node cap reached, abandoning remaining queue",
				zap.Int("cap", r.cfg.MaxNodes),
				zap.Int("remaining", len(queue)))
			break
		}

		front := queue[0]
		queue = queue[1:]
		processed++

		body, err := r.fetch(ctx, front)
		if err != nil {
			r.logger.Warn("could not retrieve sitemap", zap.String("url", front), zap.Error(err))
			continue
		}
		metrics.SitemapFetches.Inc()

		children, leaves, err := parse(body)
		if err != nil {
			r.logger.Warn("could not parse sitemap", zap.String("url", front), zap.Error(err))
			continue
		}

		if len(children) > 0 {
			queue = append(queue, children...)
			continue
		}

		pages := make([]catalog.Page, 0, len(leaves))
		now := r.clock.Now()
		for _, leaf := range leaves {
			pages = append(pages, catalog.Page{
				URL:          leaf,
				ReferrerURL:  "sitemap",
				Type:         catalog.PageTypeSitemap,
				DiscoveredAt: now,
			})
		}
		if len(pages) == 0 {
			continue
		}
		r.logger.Info("discovered urls from sitemap",
			zap.String("sitemap", front),
			zap.Int("count", len(pages)))
		if err := r.pages.UpsertPages(ctx, pages); err != nil {
			return discovered, fmt.Errorf("upsert sitemap pages: %w", err)
		}
		discovered += len(pages)
		metrics.PagesDiscovered.Add(float64(len(pages)))
	}
	return discovered, nil
}

// fetch retrieves one sitemap URL, following up to MaxRedirects redirect hops
// manually and transparently gunzipping the body.
func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	current := rawURL
	for hop := 0; hop < r.cfg.MaxRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current, nil)
		if err != nil {
			return nil, fmt.Errorf("new sitemap request: %w", err)
		}
		req.Header.Set("User-Agent", r.cfg.UserAgent)

		resp, err := r.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("fetch sitemap: %w", err)
		}

		if isRedirect(resp.StatusCode) {
			location := resp.Header.Get("Location")
			drainAndClose(resp, r.logger)
			if location == "" {
				return nil, fmt.Errorf("redirect without location from %s", current)
			}
			next, err := resolveLocation(current, location)
			if err != nil {
				return nil, err
			}
			current = next
			continue
		}

		body, err := readBody(resp)
		drainAndClose(resp, r.logger)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("sitemap fetch returned status %d", resp.StatusCode)
		}
		return body, nil
	}
	metrics.RedirectAbandons.Inc()
	return nil, &catalog.RedirectLoopError{URL: rawURL, Hops: r.cfg.MaxRedirects}
}

func isRedirect(status int) bool {
	return status == http.StatusMovedPermanently ||
		status == http.StatusFound ||
		status == http.StatusSeeOther
}

func resolveLocation(current, location string) (string, error) {
	base, err := url.Parse(current)
	if err != nil {
		return "", fmt.Errorf("parse current url: %w", err)
	}
	ref, err := url.Parse(location)
	if err != nil {
		return "", fmt.Errorf("parse redirect location: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func readBody(resp *http.Response) ([]byte, error) {
	var reader io.Reader = io.LimitReader(resp.Body, maxBodyBytes)
	if isGzipped(resp) {
		gz, err := gzip.NewReader(reader)
		if err != nil {
			return nil, fmt.Errorf("open gzip sitemap: %w", err)
		}
		defer gz.Close()
		reader = gz
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("read sitemap body: %w", err)
	}
	return body, nil
}

func isGzipped(resp *http.Response) bool {
	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	return encoding == "gzip" || encoding == "x-gzip" ||
		strings.HasPrefix(contentType, "application/gzip") ||
		strings.HasPrefix(contentType, "application/x-gzip")
}

// parse classifies the document as a sitemap index (returning child sitemap
// URLs) or a urlset (returning leaf page URLs).
func parse(body []byte) (children, leaves []string, err error) {
	doc, err := xmlquery.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, nil, fmt.Errorf("parse sitemap xml: %w", err)
	}
	if xmlquery.FindOne(doc, "//*[local-name()='sitemapindex']") != nil {
		for _, node := range xmlquery.Find(doc, "//*[local-name()='sitemapindex']/*[local-name()='sitemap']/*[local-name()='loc']") {
			if loc := strings.TrimSpace(node.InnerText()); loc != "" {
				children = append(children, loc)
			}
		}
		return children, nil, nil
	}
	if xmlquery.FindOne(doc, "//*[local-name()='urlset']") != nil {
		for _, node := range xmlquery.Find(doc, "//*[local-name()='urlset']/*[local-name()='url']/*[local-name()='loc']") {
			if loc := strings.TrimSpace(node.InnerText()); loc != "" {
				leaves = append(leaves, loc)
			}
		}
		return nil, leaves, nil
	}
	return nil, nil, fmt.Errorf("document is neither a sitemap index nor a urlset")
}

func drainAndClose(resp *http.Response, logger *zap.Logger) {
	if _, err := io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)); err != nil {
		logger.Debug("drain sitemap body", zap.Error(err))
	}
	if err := resp.Body.Close(); err != nil {
		logger.Debug("close sitemap body", zap.Error(err))
	}
}
