package extract

import (
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// Wrapper rule names. A rule maps a logical field to the CSS selector the
// aligner derived for this site.
const (
	RuleTitle       = "title"
	RulePrice       = "price"
	RuleDescription = "description"
)

// WrapperStrategy applies a learned site-specific template instead of generic
// heuristics. Fields without a rule, or whose rule selects nothing, fall back
// to the heuristic strategy so a partial wrapper still extracts.
type WrapperStrategy struct {
	wrapper  catalog.WebWrapper
	fallback *HeuristicalStrategy
}

// NewWrapperStrategy builds a strategy around the site's wrapper template.
func NewWrapperStrategy(wrapper catalog.WebWrapper, fallback *HeuristicalStrategy) *WrapperStrategy {
	return &WrapperStrategy{
		wrapper:  wrapper,
		fallback: fallback,
	}
}

// ExtractProduct extracts via the wrapper's title rule, delegating detail-page
// enrichment to the heuristic attribute miner.
func (s *WrapperStrategy) ExtractProduct(entry *goquery.Selection, detail *goquery.Document) catalog.Product {
	product := s.fallback.ExtractProduct(entry, detail)
	if title := s.ruleText(entry, RuleTitle); title != "" {
		product.Title = title
	}
	if detail != nil {
		if sel, ok := s.wrapper.Rules[RuleDescription]; ok {
			if desc := strings.TrimSpace(detail.Find(sel).First().Text()); desc != "" {
				product.Description = desc
			}
		}
	}
	return product
}

// ExtractPricePoint parses the price selected by the wrapper's price rule.
func (s *WrapperStrategy) ExtractPricePoint(entry *goquery.Selection, observedDate time.Time, siteID string) (catalog.PricePoint, error) {
	sel, ok := s.wrapper.Rules[RulePrice]
	if !ok {
		return s.fallback.ExtractPricePoint(entry, observedDate, siteID)
	}
	text := strings.TrimSpace(entry.Find(sel).First().Text())
	if text == "" {
		return s.fallback.ExtractPricePoint(entry, observedDate, siteID)
	}
	value, err := s.fallback.parser.Parse(text)
	if err != nil {
		return s.fallback.ExtractPricePoint(entry, observedDate, siteID)
	}
	return catalog.PricePoint{
		Nominal:      value,
		Currency:     s.fallback.parser.Currency(),
		ObservedDate: observedDate.UTC().Truncate(24 * time.Hour),
		SiteID:       siteID,
	}, nil
}

// ExtractProductAttributes delegates to the heuristic miner; attribute blocks
// are not templated.
func (s *WrapperStrategy) ExtractProductAttributes(detail *goquery.Document) map[string]string {
	return s.fallback.ExtractProductAttributes(detail)
}

// ExtractProductDescription prefers the wrapper's description rule.
func (s *WrapperStrategy) ExtractProductDescription(detail *goquery.Document) string {
	if sel, ok := s.wrapper.Rules[RuleDescription]; ok {
		if desc := strings.TrimSpace(detail.Find(sel).First().Text()); desc != "" {
			return desc
		}
	}
	return s.fallback.ExtractProductDescription(detail)
}

func (s *WrapperStrategy) ruleText(entry *goquery.Selection, rule string) string {
	sel, ok := s.wrapper.Rules[rule]
	if !ok {
		return ""
	}
	return strings.TrimSpace(entry.Find(sel).First().Text())
}
