package extract

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// entrySelector matches elements that look like individual catalog entries: a
// class name containing "produ", an image, and a link.
const entrySelector = "[class*='produ']:has(img):has(a)"

// Sanitize strips style and script elements plus inline style attributes from
// the document. Extraction heuristics key off class names and text; style
// payloads only add noise.
func Sanitize(doc *goquery.Document) {
	doc.Find("style, script").Remove()
	doc.Find("[style]").RemoveAttr("style")
}

// ParseDocument parses an HTML string into a sanitized goquery document.
func ParseDocument(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	Sanitize(doc)
	return doc, nil
}

// SelectEntries returns the catalog-entry elements of a shelf page. An element
// whose subtree contains another matching element is excluded so a container
// and its children are never both selected.
func SelectEntries(doc *goquery.Document) []*goquery.Selection {
	var entries []*goquery.Selection
	doc.Find(entrySelector).Each(func(_ int, s *goquery.Selection) {
		if s.Find(entrySelector).Length() == 0 {
			entries = append(entries, s)
		}
	})
	return entries
}

// EntryLink resolves the first link of a catalog entry against the shelf URL,
// returning an absolute product URL.
func EntryLink(entry *goquery.Selection, shelfURL string) (string, error) {
	href, ok := entry.Find("a[href]").First().Attr("href")
	if !ok {
		return "", fmt.Errorf("entry has no link")
	}
	base, err := url.Parse(shelfURL)
	if err != nil {
		return "", fmt.Errorf("parse shelf url: %w", err)
	}
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return "", fmt.Errorf("parse entry href: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}
