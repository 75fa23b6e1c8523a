package extract

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/money"
)

const shelfHTML = `<html><body>
<style>.product { color: red }</style>
<script>console.log("tracking")</script>
<div class="product-grid" style="display:flex">
  <div class="product-card">
    <a href="/carte/enigma-otiliei"><img src="c1.jpg"></a>
    <span class="product-title">Enigma Otiliei</span>
    <span class="product-price">35,50 lei</span>
  </div>
  <div class="product-card">
    <a href="/carte/ion"><img src="c2.jpg"></a>
    <span class="product-title">Ion</span>
    <span class="product-price">2999</span>
  </div>
  <div class="product-card">
    <a href="/carte/morometii"><img src="c3.jpg"></a>
    <span class="product-title">Morometii</span>
    <span class="product-price">indisponibil</span>
  </div>
</div>
</body></html>`

const detailHTML = `<html><body>
<div id="descriere">Un roman fundamental al literaturii romane.</div>
<div class="specs">
  <p>Autor: George Calinescu</p>
  <p>Editura: Litera</p>
  <p>ISBN: 978-606-33-1234-5</p>
</div>
</body></html>`

func newTestStrategy(t *testing.T) *HeuristicalStrategy {
	t.Helper()
	parser, err := money.NewParser("ro-RO")
	require.NoError(t, err)
	return NewHeuristicalStrategy(parser, zap.NewNop())
}

func TestSelectEntriesExcludesNestedContainers(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)

	// product-grid matches the heuristic too but contains nested matches
	entries := SelectEntries(doc)
	require.Len(t, entries, 3)
}

func TestSanitizeStripsStyleAndScript(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)

	require.Zero(t, doc.Find("style").Length())
	require.Zero(t, doc.Find("script").Length())
	require.Zero(t, doc.Find("[style]").Length())
}

func TestEntryLinkResolvesAbsoluteURL(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)
	entries := SelectEntries(doc)
	require.NotEmpty(t, entries)

	link, err := EntryLink(entries[0], "https://www.librarie.example/raft/carte?page=2")
	require.NoError(t, err)
	require.Equal(t, "https://www.librarie.example/carte/enigma-otiliei", link)
}

func TestExtractPricePointParsesLocalePrice(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)
	entries := SelectEntries(doc)
	strategy := newTestStrategy(t)
	observed := time.Date(2026, 8, 30, 15, 4, 5, 0, time.UTC)

	pp, err := strategy.ExtractPricePoint(entries[0], observed, "site-1")
	require.NoError(t, err)
	require.Equal(t, "35.5", pp.Nominal.String())
	require.Equal(t, "RON", pp.Currency)
	require.Equal(t, time.Date(2026, 8, 30, 0, 0, 0, 0, time.UTC), pp.ObservedDate)
	require.Equal(t, "site-1", pp.SiteID)
}

func TestExtractPricePointAppliesCentsCorrection(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)
	entries := SelectEntries(doc)
	strategy := newTestStrategy(t)

	pp, err := strategy.ExtractPricePoint(entries[1], time.Now(), "site-1")
	require.NoError(t, err)
	require.Equal(t, "29.99", pp.Nominal.String())
}

func TestExtractPricePointFailsLocally(t *testing.T) {
	t.Parallel()

	doc, err := ParseDocument(shelfHTML)
	require.NoError(t, err)
	entries := SelectEntries(doc)
	strategy := newTestStrategy(t)

	_, err = strategy.ExtractPricePoint(entries[2], time.Now(), "site-1")
	require.True(t, errors.Is(err, catalog.ErrNoPrice))

	// the product itself still extracts
	product := strategy.ExtractProduct(entries[2], nil)
	require.Equal(t, "Morometii", product.Title)
}

func TestExtractProductEnrichesFromDetailPage(t *testing.T) {
	t.Parallel()

	shelf, err := ParseDocument(shelfHTML)
	require.NoError(t, err)
	detail, err := ParseDocument(detailHTML)
	require.NoError(t, err)
	entries := SelectEntries(shelf)
	strategy := newTestStrategy(t)

	product := strategy.ExtractProduct(entries[0], detail)
	require.Equal(t, "Enigma Otiliei", product.Title)
	require.Equal(t, "978-606-33-1234-5", product.ISBN)
	require.Equal(t, []string{"George Calinescu"}, product.Authors)
	require.Equal(t, "Un roman fundamental al literaturii romane.", product.Description)
}

func TestExtractProductAttributesMinesLabelValuePairs(t *testing.T) {
	t.Parallel()

	detail, err := ParseDocument(detailHTML)
	require.NoError(t, err)
	strategy := newTestStrategy(t)

	attrs := strategy.ExtractProductAttributes(detail)
	require.Equal(t, "978-606-33-1234-5", attrs["ISBN"])
	require.Equal(t, "Litera", attrs["Editura"])
	require.Equal(t, "George Calinescu", attrs["Autor"])
}

func TestExtractProductAttributesWithoutISBN(t *testing.T) {
	t.Parallel()

	detail, err := ParseDocument(`<html><body><p>Editura: Litera</p></body></html>`)
	require.NoError(t, err)
	strategy := newTestStrategy(t)

	require.Empty(t, strategy.ExtractProductAttributes(detail))
}
