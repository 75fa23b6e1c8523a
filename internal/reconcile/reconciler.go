// Package reconcile turns repeated product observations into price time
// series. Each extracted candidate is resolved against persisted state by
// ISBN, or by normalized title when no ISBN is known, and merged
// non-destructively.
package reconcile

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/metrics"
)

// Result reports whether a candidate created a product or updated one.
type Result string

// Reconciliation outcomes.
const (
	ResultInserted Result = "inserted"
	ResultUpdated  Result = "updated"
)

// Reconciler merges extracted candidates into the product store, one atomic
// unit of work per candidate.
type Reconciler struct {
	products catalog.ProductStore
	sites    catalog.SiteStore
	ids      catalog.IDGenerator
	logger   *zap.Logger
}

// NewReconciler builds a Reconciler.
func NewReconciler(products catalog.ProductStore, sites catalog.SiteStore, ids catalog.IDGenerator, logger *zap.Logger) *Reconciler {
	return &Reconciler{
		products: products,
		sites:    sites,
		ids:      ids,
		logger:   logger,
	}
}

// ResolveSite looks up or lazily creates the site record for a domain. It
// must run before any wrapper-generation decision for the same batch.
func (r *Reconciler) ResolveSite(ctx context.Context, domain string) (catalog.Site, error) {
	site, err := r.sites.FindSiteByDomain(ctx, domain)
	if err == nil {
		return site, nil
	}
	if err != catalog.ErrSiteNotFound {
		return catalog.Site{}, fmt.Errorf("find site %s: %w", domain, err)
	}
	id, err := r.ids.NewID()
	if err != nil {
		return catalog.Site{}, fmt.Errorf("new site id: %w", err)
	}
	site = catalog.Site{ID: id, Domain: domain}
	if err := r.sites.SaveSite(ctx, site); err != nil {
		return catalog.Site{}, fmt.Errorf("save site %s: %w", domain, err)
	}
	r.logger.Info("created site", zap.String("domain", domain), zap.String("site_id", id))
	return site, nil
}

// Reconcile resolves one candidate against persisted state. No match inserts
// the candidate with its observation appended; a match merges attributes and
// appends the observation. A nil price keeps the product without adding an
// observation.
func (r *Reconciler) Reconcile(ctx context.Context, candidate catalog.Product, price *catalog.PricePoint) (Result, error) {
	if candidate.Title == "" && candidate.ISBN == "" {
		return "", fmt.Errorf("candidate has neither title nor isbn")
	}

	matches, err := r.products.FindProductByISBNOrTitle(ctx, candidate.ISBN, catalog.NormalizeTitle(candidate.Title))
	if err != nil {
		return "", fmt.Errorf("find product: %w", err)
	}

	if len(matches) == 0 {
		id, err := r.ids.NewID()
		if err != nil {
			return "", fmt.Errorf("new product id: %w", err)
		}
		candidate.ID = id
		if price != nil {
			candidate.PricePoints = append(candidate.PricePoints, *price)
		}
		if err := r.products.SaveProduct(ctx, candidate); err != nil {
			return "", fmt.Errorf("save product: %w", err)
		}
		metrics.ProductsInserted.Inc()
		r.logger.Info("saved new product", zap.String("title", candidate.Title), zap.String("isbn", candidate.ISBN))
		return ResultInserted, nil
	}

	if len(matches) > 1 {
		// data-quality anomaly: identity key should be unique
		r.logger.Warn("multiple products match one identity key, using first",
			zap.String("isbn", candidate.ISBN),
			zap.String("title", candidate.Title),
			zap.Int("matches", len(matches)))
	}

	merged := merge(matches[0], candidate, price)
	if err := r.products.MergeProduct(ctx, merged); err != nil {
		return "", fmt.Errorf("merge product: %w", err)
	}
	metrics.ProductsUpdated.Inc()
	r.logger.Info("updated product", zap.String("product_id", merged.ID), zap.String("title", merged.Title))
	return ResultUpdated, nil
}

// merge combines an existing product with a fresh candidate. Attributes are
// unioned or filled in, never destructively overwritten; price points are
// appended without same-day deduplication so every observation is kept.
func merge(existing, candidate catalog.Product, price *catalog.PricePoint) catalog.Product {
	existing.Authors = unionAuthors(existing.Authors, candidate.Authors)
	if existing.ISBN == "" {
		existing.ISBN = candidate.ISBN
	}
	if existing.Description == "" {
		existing.Description = candidate.Description
	}
	if price != nil {
		existing.PricePoints = append(existing.PricePoints, *price)
	}
	return existing
}

func unionAuthors(existing, incoming []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, a := range existing {
		seen[a] = struct{}{}
	}
	for _, a := range incoming {
		if _, ok := seen[a]; ok {
			continue
		}
		seen[a] = struct{}{}
		existing = append(existing, a)
	}
	return existing
}
