package orchestrator

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/traverse"
)

// SitemapResolver walks sitemap indexes and records leaf page URLs.
type SitemapResolver interface {
	Resolve(ctx context.Context, seeds []string) (int, error)
}

// SitemapStrategy crawls a domain by resolving its sitemap tree.
type SitemapStrategy struct {
	resolver SitemapResolver
	logger   *zap.Logger
}

// NewSitemapStrategy builds the sitemap crawl strategy.
func NewSitemapStrategy(resolver SitemapResolver, logger *zap.Logger) *SitemapStrategy {
	return &SitemapStrategy{resolver: resolver, logger: logger}
}

// Crawl resolves every sitemap URL known for the job.
func (s *SitemapStrategy) Crawl(ctx context.Context, job catalog.Job) error {
	seeds := job.SitemapURLs()
	pages, err := s.resolver.Resolve(ctx, seeds)
	if err != nil {
		return fmt.Errorf("resolve sitemaps for %s: %w", job.Domain, err)
	}
	s.logger.Info("sitemap crawl complete",
		zap.String("job_id", job.ID),
		zap.String("domain", job.Domain),
		zap.Int("pages", pages))
	return nil
}

// RendererFactory opens a fresh browser session for one job.
type RendererFactory func(ctx context.Context) (catalog.Renderer, error)

// PaginationStrategy crawls a domain by driving a browser through the "next
// page" links of each seed shelf.
type PaginationStrategy struct {
	newRenderer RendererFactory
	pages       catalog.PageStore
	miner       traverse.ShelfMiner
	details     traverse.DetailLoader
	clock       catalog.Clock
	cookies     map[string]string
	clickRetry  int
	logger      *zap.Logger
}

// NewPaginationStrategy builds the pagination crawl strategy. The cookies map
// is installed into every session unless the job disallows it.
func NewPaginationStrategy(
	newRenderer RendererFactory,
	pages catalog.PageStore,
	miner traverse.ShelfMiner,
	details traverse.DetailLoader,
	clock catalog.Clock,
	cookies map[string]string,
	clickRetry int,
	logger *zap.Logger,
) *PaginationStrategy {
	return &PaginationStrategy{
		newRenderer: newRenderer,
		pages:       pages,
		miner:       miner,
		details:     details,
		clock:       clock,
		cookies:     cookies,
		clickRetry:  clickRetry,
		logger:      logger,
	}
}

// Crawl opens one browser session and traverses every seed to exhaustion. A
// seed that fails mid-traversal does not stop the remaining ones; the job
// fails only when no seed could be traversed at all.
func (p *PaginationStrategy) Crawl(ctx context.Context, job catalog.Job) error {
	seeds := job.Seeds
	if len(seeds) == 0 {
		seeds = []string{job.Homepage}
	}

	renderer, err := p.newRenderer(ctx)
	if err != nil {
		return fmt.Errorf("open browser session for %s: %w", job.Domain, err)
	}
	defer func() {
		if closeErr := renderer.Close(ctx); closeErr != nil {
			p.logger.Warn("closing browser session failed", zap.Error(closeErr))
		}
	}()

	traversal := traverse.New(renderer, p.pages, p.miner, p.details, p.clock, traverse.Config{
		PolitenessDelay: job.RobotRules.CrawlDelay,
		ClickRetries:    p.clickRetry,
		Cookies:         p.cookies,
		DisallowCookies: job.DisallowCookies,
	}, p.logger)

	succeeded := 0
	var lastErr error
	for _, seed := range seeds {
		stats, err := traversal.Run(ctx, job.Domain, seed)
		if err != nil {
			lastErr = err
			p.logger.Warn("seed traversal failed",
				zap.String("job_id", job.ID),
				zap.String("seed", seed),
				zap.Error(err))
			continue
		}
		succeeded++
		p.logger.Info("seed traversal complete",
			zap.String("job_id", job.ID),
			zap.String("seed", seed),
			zap.Int("shelves", stats.Shelves),
			zap.Int("products", stats.Products),
			zap.Int("inserted", stats.Mined.Inserted),
			zap.Int("updated", stats.Mined.Updated))
	}
	if succeeded == 0 && lastErr != nil {
		return fmt.Errorf("no seed could be traversed for %s: %w", job.Domain, lastErr)
	}
	return nil
}
