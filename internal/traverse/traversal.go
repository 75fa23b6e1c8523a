// Package traverse drives a rendered browser session across the "next page"
// links of a product shelf, emitting discovered pages and feeding the
// extraction pipeline. Traversal is strictly sequential within a job: one
// browser session per domain, one page at a time, a politeness pause between
// page advances.
package traverse

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/extract"
	"github.com/shelfwatch/price-crawler/internal/metrics"
	"github.com/shelfwatch/price-crawler/internal/reconcile"
)

const defaultClickRetries = 10

// ShelfMiner consumes the candidate batch of one shelf page.
type ShelfMiner interface {
	MineShelf(ctx context.Context, batch reconcile.ShelfBatch) (reconcile.Counts, error)
}

// DetailLoader fetches an already-discovered product URL as a parsed document.
type DetailLoader interface {
	FetchDocument(ctx context.Context, url string) (*goquery.Document, error)
}

// Config controls traversal behavior for one job.
type Config struct {
	// PolitenessDelay is applied before and after each page advance.
	PolitenessDelay time.Duration
	// ClickRetries bounds attempts against transient click interception.
	ClickRetries int
	// Cookies are installed into the session before the first navigation
	// unless DisallowCookies is set.
	Cookies         map[string]string
	DisallowCookies bool
}

// Stats summarizes one traversal run.
type Stats struct {
	Shelves  int
	Products int
	Mined    reconcile.Counts
}

// Traversal walks one paginated shelf to exhaustion.
type Traversal struct {
	renderer catalog.Renderer
	pages    catalog.PageStore
	miner    ShelfMiner
	details  DetailLoader
	clock    catalog.Clock
	pause    pauseController
	cfg      Config
	logger   *zap.Logger
}

// New builds a Traversal around a live renderer session.
func New(
	renderer catalog.Renderer,
	pages catalog.PageStore,
	miner ShelfMiner,
	details DetailLoader,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Traversal {
	if cfg.ClickRetries <= 0 {
		cfg.ClickRetries = defaultClickRetries
	}
	return &Traversal{
		renderer: renderer,
		pages:    pages,
		miner:    miner,
		details:  details,
		clock:    clock,
		pause:    &timerPauseController{},
		cfg:      cfg,
		logger:   logger,
	}
}

// Run follows pagination links starting from the seed until no next-page
// control remains. Per-shelf failures are contained; only seed navigation and
// store failures abort the run.
func (t *Traversal) Run(ctx context.Context, domain, seed string) (Stats, error) {
	var stats Stats

	if !t.cfg.DisallowCookies {
		for name, value := range t.cfg.Cookies {
			if err := t.renderer.AddCookie(ctx, domain, name, value); err != nil {
				t.logger.Warn("could not install cookie", zap.String("name", name), zap.Error(err))
			}
		}
	}

	t.logger.Info("following pagination links", zap.String("seed", seed))
	if err := t.renderer.Navigate(ctx, seed); err != nil {
		return stats, err
	}

	previousShelfURL := ""
	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		shelfURL, productURLs, batch, err := t.fetchShelf(ctx, domain, previousShelfURL)
		if err != nil {
			return stats, err
		}
		stats.Shelves++
		stats.Products += len(productURLs)

		counts, err := t.miner.MineShelf(ctx, batch)
		if err != nil {
			t.logger.Warn("mining shelf failed", zap.String("shelf", shelfURL), zap.Error(err))
		}
		stats.Mined.Inserted += counts.Inserted
		stats.Mined.Updated += counts.Updated
		stats.Mined.Skipped += counts.Skipped

		previousShelfURL = shelfURL
		if !t.advance(ctx) {
			break
		}
	}

	t.logger.Info("pagination exhausted",
		zap.Int("shelves", stats.Shelves),
		zap.Int("products", stats.Products))
	return stats, nil
}

// fetchShelf reads the current rendered page, emits its page records in
// visitation order, and assembles the extraction batch.
func (t *Traversal) fetchShelf(ctx context.Context, domain, previousShelfURL string) (string, []string, reconcile.ShelfBatch, error) {
	html, err := t.renderer.PageSource(ctx)
	if err != nil {
		return "", nil, reconcile.ShelfBatch{}, err
	}
	shelfURL, err := t.renderer.CurrentURL(ctx)
	if err != nil {
		return "", nil, reconcile.ShelfBatch{}, err
	}

	doc, err := extract.ParseDocument(html)
	if err != nil {
		return "", nil, reconcile.ShelfBatch{}, err
	}
	discoveredAt := t.clock.Now()

	entries := extract.SelectEntries(doc)
	var (
		kept        []*goquery.Selection
		productURLs []string
	)
	for _, entry := range entries {
		link, err := extract.EntryLink(entry, shelfURL)
		if err != nil {
			t.logger.Warn("entry without usable link", zap.String("shelf", shelfURL), zap.Error(err))
			continue
		}
		kept = append(kept, entry)
		productURLs = append(productURLs, link)
	}
	t.logger.Info("got product urls", zap.String("shelf", shelfURL), zap.Int("count", len(productURLs)))

	pages := make([]catalog.Page, 0, len(productURLs)+1)
	pages = append(pages, catalog.Page{
		URL:          shelfURL,
		ReferrerURL:  previousShelfURL,
		Type:         catalog.PageTypeShelf,
		DiscoveredAt: discoveredAt,
	})
	for _, productURL := range productURLs {
		pages = append(pages, catalog.Page{
			URL:          productURL,
			ReferrerURL:  shelfURL,
			Type:         catalog.PageTypeProduct,
			DiscoveredAt: discoveredAt,
		})
	}
	if err := t.pages.UpsertPages(ctx, pages); err != nil {
		return "", nil, reconcile.ShelfBatch{}, err
	}
	metrics.PagesDiscovered.Add(float64(len(pages)))

	batch := reconcile.ShelfBatch{
		Domain:     domain,
		Entries:    kept,
		EntryURLs:  productURLs,
		DetailDocs: t.loadDetails(ctx, productURLs),
		ObservedAt: discoveredAt,
	}
	return shelfURL, productURLs, batch, nil
}

// loadDetails fetches the detail document for each discovered product URL. An
// unreachable detail page skips that candidate's enrichment only.
func (t *Traversal) loadDetails(ctx context.Context, productURLs []string) map[string]*goquery.Document {
	docs := make(map[string]*goquery.Document, len(productURLs))
	if t.details == nil {
		return docs
	}
	for _, u := range productURLs {
		doc, err := t.details.FetchDocument(ctx, u)
		if err != nil {
			t.logger.Warn("could not fetch detail page", zap.String("url", u), zap.Error(err))
			continue
		}
		docs[u] = doc
	}
	return docs
}

// advance clicks the next-page control if one exists and is enabled. Click
// interception is retried a bounded number of times; persistent failure is
// treated as the end of pagination, not a fatal error.
func (t *Traversal) advance(ctx context.Context) bool {
	control, err := t.renderer.FindNextPageControl(ctx)
	if err != nil {
		t.logger.Warn("looking for next-page control failed", zap.Error(err))
		return false
	}
	if control == nil || control.Disabled() {
		return false
	}

	t.pause.Pause(ctx, t.cfg.PolitenessDelay)
	for attempt := 0; attempt < t.cfg.ClickRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return false
		}
		if err := t.renderer.Click(ctx, control); err != nil {
			t.logger.Warn("next-page click failed, retrying",
				zap.Int("attempt", attempt+1), zap.Error(err))
			continue
		}
		t.pause.Pause(ctx, t.cfg.PolitenessDelay)
		return true
	}
	t.logger.Warn("giving up on next-page control after retries",
		zap.Int("retries", t.cfg.ClickRetries))
	return false
}
