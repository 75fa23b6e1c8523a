package extract

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// RecordAligner derives extraction rules by aligning one detail page against
// one or more shelf entries of the same site. The alignment algorithm is
// deliberately swappable; ClassAligner is the default.
type RecordAligner interface {
	Align(entries []*goquery.Selection, detail *goquery.Document) (map[string]string, error)
}

// Generator derives a WebWrapper for a site. The reconciliation pipeline
// invokes it once per site, after the first successful extraction pass, and
// only when the site has no wrapper yet.
type Generator struct {
	aligner RecordAligner
	clock   catalog.Clock
}

// NewGenerator builds a Generator around the given aligner.
func NewGenerator(aligner RecordAligner, clock catalog.Clock) *Generator {
	return &Generator{
		aligner: aligner,
		clock:   clock,
	}
}

// Generate aligns the detail page against the shelf entries and returns the
// resulting wrapper, keyed by the structural signature of the first entry.
func (g *Generator) Generate(entries []*goquery.Selection, detail *goquery.Document) (catalog.WebWrapper, error) {
	if len(entries) == 0 {
		return catalog.WebWrapper{}, fmt.Errorf("no entries to align")
	}
	rules, err := g.aligner.Align(entries, detail)
	if err != nil {
		return catalog.WebWrapper{}, fmt.Errorf("align records: %w", err)
	}
	return catalog.WebWrapper{
		Signature:   StructuralSignature(entries[0]),
		Rules:       rules,
		GeneratedAt: g.clock.Now(),
	}, nil
}

// StructuralSignature hashes the tag skeleton of a catalog entry. Entries of
// the same template share a signature even when their text differs.
func StructuralSignature(entry *goquery.Selection) string {
	var tags []string
	entry.Find("*").Each(func(_ int, el *goquery.Selection) {
		tags = append(tags, goquery.NodeName(el))
	})
	sum := sha1.Sum([]byte(strings.Join(tags, ">")))
	return hex.EncodeToString(sum[:])
}

// ClassAligner derives wrapper rules from the class names of the nodes the
// heuristics would have picked, pinning them into exact selectors. It keeps
// only fields that resolve consistently across every aligned entry.
type ClassAligner struct{}

// Align implements RecordAligner.
func (ClassAligner) Align(entries []*goquery.Selection, detail *goquery.Document) (map[string]string, error) {
	rules := make(map[string]string)
	if sel := consistentRule(entries, titleSelector); sel != "" {
		rules[RuleTitle] = sel
	}
	if sel := consistentRule(entries, priceSelector); sel != "" {
		rules[RulePrice] = sel
	}
	if detail != nil {
		if node := detail.Find(descSelector).First(); node.Length() > 0 {
			if sel := exactSelector(node); sel != "" {
				rules[RuleDescription] = sel
			}
		}
	}
	if len(rules) == 0 {
		return nil, fmt.Errorf("no alignable fields")
	}
	return rules, nil
}

// consistentRule returns the exact selector of the heuristic match, provided
// every entry resolves the same selector.
func consistentRule(entries []*goquery.Selection, heuristic string) string {
	var rule string
	for _, entry := range entries {
		node := entry.Find(heuristic).First()
		if node.Length() == 0 {
			return ""
		}
		sel := exactSelector(node)
		if sel == "" {
			return ""
		}
		if rule == "" {
			rule = sel
		} else if rule != sel {
			return ""
		}
	}
	return rule
}

// exactSelector builds "tag.class1.class2" for a node.
func exactSelector(node *goquery.Selection) string {
	class, ok := node.Attr("class")
	if !ok {
		return goquery.NodeName(node)
	}
	fields := strings.Fields(class)
	if len(fields) == 0 {
		return goquery.NodeName(node)
	}
	return goquery.NodeName(node) + "." + strings.Join(fields, ".")
}
