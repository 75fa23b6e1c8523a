package extract

import (
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// Strategy turns one catalog-entry DOM fragment, plus its optional detail
// page, into a candidate product and price observation.
//
// ExtractPricePoint returns catalog.ErrNoPrice when the price text cannot be
// parsed; the entry's product is still usable without an observation.
type Strategy interface {
	ExtractProduct(entry *goquery.Selection, detail *goquery.Document) catalog.Product
	ExtractPricePoint(entry *goquery.Selection, observedDate time.Time, siteID string) (catalog.PricePoint, error)
	ExtractProductAttributes(detail *goquery.Document) map[string]string
	ExtractProductDescription(detail *goquery.Document) string
}

// Kind names the strategy variant selected for a site.
type Kind int

// Strategy variants. The pipeline resolves the variant once per site: a site
// without a learned wrapper uses heuristics, one with a wrapper uses it.
const (
	KindHeuristic Kind = iota
	KindWrapper
)

// SelectKind maps persisted site state to the strategy variant.
func SelectKind(site catalog.Site) Kind {
	if site.Wrapper != nil {
		return KindWrapper
	}
	return KindHeuristic
}

// ForSite returns the strategy to use for the given site, falling back to the
// heuristic strategy when the site's wrapper cannot serve.
func ForSite(site catalog.Site, heuristic *HeuristicalStrategy) Strategy {
	if SelectKind(site) == KindWrapper {
		return NewWrapperStrategy(*site.Wrapper, heuristic)
	}
	return heuristic
}
