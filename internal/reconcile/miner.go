package reconcile

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/extract"
	"github.com/shelfwatch/price-crawler/internal/metrics"
)

// ShelfBatch carries everything extracted from one already-fetched shelf
// page: the entry fragments, their product URLs, and the detail documents
// that were fetched alongside. Mining a batch makes no further requests to
// the live site.
type ShelfBatch struct {
	Domain     string
	Entries    []*goquery.Selection
	EntryURLs  []string
	DetailDocs map[string]*goquery.Document
	ObservedAt time.Time
}

// Counts summarizes one mining pass.
type Counts struct {
	Inserted int
	Updated  int
	Skipped  int
}

// Miner drives the extraction and reconciliation pipeline over shelf batches.
// Candidates within a batch are independent units of work and run
// concurrently, bounded by the configured worker count.
type Miner struct {
	heuristic  *extract.HeuristicalStrategy
	generator  *extract.Generator
	reconciler *Reconciler
	sites      catalog.SiteStore
	workers    int
	logger     *zap.Logger
}

// NewMiner builds a Miner. A nil generator disables wrapper learning.
func NewMiner(
	heuristic *extract.HeuristicalStrategy,
	generator *extract.Generator,
	reconciler *Reconciler,
	sites catalog.SiteStore,
	workers int,
	logger *zap.Logger,
) *Miner {
	if workers <= 0 {
		workers = 1
	}
	return &Miner{
		heuristic:  heuristic,
		generator:  generator,
		reconciler: reconciler,
		sites:      sites,
		workers:    workers,
		logger:     logger,
	}
}

// MineShelf extracts and reconciles every entry of one shelf batch. A failure
// on one entry never rolls back or blocks its siblings. After the first
// successful pass on a site without a wrapper, a wrapper is generated and
// stored exactly once.
func (m *Miner) MineShelf(ctx context.Context, batch ShelfBatch) (Counts, error) {
	site, err := m.reconciler.ResolveSite(ctx, batch.Domain)
	if err != nil {
		return Counts{}, err
	}
	strategy := extract.ForSite(site, m.heuristic)

	var (
		mu     sync.Mutex
		counts Counts
		wg     sync.WaitGroup
		sem    = make(chan struct{}, m.workers)
	)
	for i, entry := range batch.Entries {
		wg.Add(1)
		sem <- struct{}{}
		go func(entry *goquery.Selection, entryURL string) {
			defer wg.Done()
			defer func() { <-sem }()
			result := m.mineEntry(ctx, strategy, site, batch, entry, entryURL)
			mu.Lock()
			switch result {
			case ResultInserted:
				counts.Inserted++
			case ResultUpdated:
				counts.Updated++
			default:
				counts.Skipped++
			}
			mu.Unlock()
		}(entry, batch.EntryURLs[i])
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return counts, err
	}
	m.maybeGenerateWrapper(ctx, site, batch, counts)
	return counts, nil
}

// mineEntry processes one candidate; its empty return marks a skip.
func (m *Miner) mineEntry(
	ctx context.Context,
	strategy extract.Strategy,
	site catalog.Site,
	batch ShelfBatch,
	entry *goquery.Selection,
	entryURL string,
) Result {
	detail := batch.DetailDocs[entryURL]
	product := strategy.ExtractProduct(entry, detail)

	var price *catalog.PricePoint
	pp, err := strategy.ExtractPricePoint(entry, batch.ObservedAt, site.ID)
	switch {
	case err == nil:
		price = &pp
	case errors.Is(err, catalog.ErrNoPrice):
		metrics.PriceParseFailures.Inc()
		m.logger.Warn("keeping product without price observation",
			zap.String("url", entryURL), zap.Error(err))
	default:
		m.logger.Warn("price extraction failed", zap.String("url", entryURL), zap.Error(err))
	}

	result, err := m.reconciler.Reconcile(ctx, product, price)
	if err != nil {
		m.logger.Warn("could not reconcile entry", zap.String("url", entryURL), zap.Error(err))
		return ""
	}
	return result
}

// maybeGenerateWrapper learns an extraction template for the site after its
// first successful pass. The wrapper field is written at most once.
func (m *Miner) maybeGenerateWrapper(ctx context.Context, site catalog.Site, batch ShelfBatch, counts Counts) {
	if m.generator == nil || site.Wrapper != nil {
		return
	}
	if counts.Inserted+counts.Updated == 0 || len(batch.Entries) == 0 {
		return
	}

	var detail *goquery.Document
	for _, u := range batch.EntryURLs {
		if d, ok := batch.DetailDocs[u]; ok && d != nil {
			detail = d
			break
		}
	}
	wrapper, err := m.generator.Generate(batch.Entries, detail)
	if err != nil {
		m.logger.Warn("wrapper generation failed", zap.String("domain", site.Domain), zap.Error(err))
		return
	}

	// re-read so a wrapper written by a concurrent pass is not clobbered
	current, err := m.sites.FindSiteByDomain(ctx, site.Domain)
	if err != nil || current.Wrapper != nil {
		return
	}
	current.Wrapper = &wrapper
	if err := m.sites.SaveSite(ctx, current); err != nil {
		m.logger.Warn("could not persist wrapper", zap.String("domain", site.Domain), zap.Error(err))
		return
	}
	m.logger.Info("generated wrapper for site",
		zap.String("domain", site.Domain),
		zap.String("signature", wrapper.Signature))
}
