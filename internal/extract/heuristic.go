package extract

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/money"
)

const (
	titleSelector = "[class*='titl'], [class*='nume'], [class*='name']"
	priceSelector = "[class*='pret'], [class*='price']"
	descSelector  = "[class*='descri'], [id*='descri']"
)

// isbn13Pattern matches an ISBN-13 rendered with a consistent delimiter:
// 978/979 followed by four delimiter-separated groups. RE2 has no
// backreferences, so each delimiter gets its own alternative.
var isbn13Pattern = regexp.MustCompile(`97[89](?:-\d{1,5}-\d{1,7}-\d{1,6}-\d| \d{1,5} \d{1,7} \d{1,6} \d)`)

// HeuristicalStrategy extracts products by class-name heuristics: title and
// price nodes are located by partial class matches, attributes are mined from
// the label/value block around the ISBN on the detail page.
type HeuristicalStrategy struct {
	parser *money.Parser
	logger *zap.Logger
}

// NewHeuristicalStrategy builds the strategy for the given locale parser.
func NewHeuristicalStrategy(parser *money.Parser, logger *zap.Logger) *HeuristicalStrategy {
	return &HeuristicalStrategy{
		parser: parser,
		logger: logger,
	}
}

// ExtractProduct builds a candidate from the entry fragment, enriched with
// authors, ISBN, and description from the detail page when one is available.
func (s *HeuristicalStrategy) ExtractProduct(entry *goquery.Selection, detail *goquery.Document) catalog.Product {
	product := catalog.Product{
		Title: strings.TrimSpace(entry.Find(titleSelector).First().Text()),
	}
	if detail == nil {
		return product
	}

	attributes := s.ExtractProductAttributes(detail)
	if len(attributes) == 0 {
		s.logger.Warn("no attributes mined from detail page")
	}
	for key, value := range attributes {
		switch {
		case strings.Contains(key, "ISBN"):
			product.ISBN = value
		case strings.EqualFold(key, "autor") || strings.EqualFold(key, "author") ||
			strings.EqualFold(key, "autori") || strings.EqualFold(key, "authors"):
			product.Authors = appendAuthors(product.Authors, value)
		}
	}
	product.Description = s.ExtractProductDescription(detail)
	return product
}

// ExtractPricePoint parses the entry's price text. A malformed price returns
// catalog.ErrNoPrice; the caller keeps the product without an observation.
func (s *HeuristicalStrategy) ExtractPricePoint(entry *goquery.Selection, observedDate time.Time, siteID string) (catalog.PricePoint, error) {
	text := strings.TrimSpace(entry.Find(priceSelector).First().Text())
	value, err := s.parser.Parse(text)
	if err != nil {
		s.logger.Warn("price tag was ill-formatted", zap.String("text", text), zap.Error(err))
		return catalog.PricePoint{}, fmt.Errorf("%w: %v", catalog.ErrNoPrice, err)
	}
	return catalog.PricePoint{
		Nominal:      value,
		Currency:     s.parser.Currency(),
		ObservedDate: observedDate.UTC().Truncate(24 * time.Hour),
		SiteID:       siteID,
	}, nil
}

// ExtractProductAttributes mines label/value pairs from the detail page. The
// ISBN match anchors the attribute block: its element's siblings are scanned
// for "label: value" text.
func (s *HeuristicalStrategy) ExtractProductAttributes(detail *goquery.Document) map[string]string {
	attributes := make(map[string]string)
	isbn := isbn13Pattern.FindString(detail.Text())
	if isbn == "" {
		return attributes
	}

	anchor := deepestContaining(detail, isbn)
	if anchor == nil {
		return attributes
	}
	if strings.TrimSpace(anchor.Text()) == isbn {
		anchor = anchor.Parent()
	}

	block := anchor.Siblings().AddSelection(anchor)
	block.Each(func(_ int, el *goquery.Selection) {
		parts := strings.SplitN(el.Text(), ":", 2)
		if len(parts) != 2 {
			return
		}
		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])
		if key != "" && value != "" {
			attributes[key] = value
		}
	})
	return attributes
}

// ExtractProductDescription returns the detail page's description text, or ""
// when no description block is recognized.
func (s *HeuristicalStrategy) ExtractProductDescription(detail *goquery.Document) string {
	return strings.TrimSpace(detail.Find(descSelector).First().Text())
}

// deepestContaining returns the last (deepest in document order) element whose
// text contains needle.
func deepestContaining(doc *goquery.Document, needle string) *goquery.Selection {
	var found *goquery.Selection
	doc.Find("*").Each(func(_ int, el *goquery.Selection) {
		if strings.Contains(el.Text(), needle) {
			found = el
		}
	})
	return found
}

func appendAuthors(authors []string, raw string) []string {
	for _, part := range strings.Split(raw, ",") {
		name := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), "."))
		if name == "" {
			continue
		}
		authors = append(authors, name)
	}
	return authors
}
