package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/extract"
	"github.com/shelfwatch/price-crawler/internal/money"
	"github.com/shelfwatch/price-crawler/internal/store/memory"
)

const minerShelfHTML = `<html><body>
<div class="produs">
  <a href="https://shop.example/carte/a"><img src="a.jpg"></a>
  <span class="titlu">Cartea A</span>
  <span class="pret">10,00 lei</span>
</div>
<div class="produs">
  <a href="https://shop.example/carte/b"><img src="b.jpg"></a>
  <span class="titlu">Cartea B</span>
  <span class="pret">fara pret</span>
</div>
</body></html>`

type tickingClock struct{ now time.Time }

func (c tickingClock) Now() time.Time { return c.now }

func newTestMiner(t *testing.T, store *memory.Store, withGenerator bool) *Miner {
	t.Helper()
	parser, err := money.NewParser("ro-RO")
	require.NoError(t, err)
	heuristic := extract.NewHeuristicalStrategy(parser, zap.NewNop())

	var generator *extract.Generator
	if withGenerator {
		generator = extract.NewGenerator(extract.ClassAligner{}, tickingClock{now: time.Now().UTC()})
	}
	reconciler := NewReconciler(store, store, &seqIDs{}, zap.NewNop())
	return NewMiner(heuristic, generator, reconciler, store, 4, zap.NewNop())
}

func shelfBatch(t *testing.T) ShelfBatch {
	t.Helper()
	doc, err := extract.ParseDocument(minerShelfHTML)
	require.NoError(t, err)
	entries := extract.SelectEntries(doc)
	require.Len(t, entries, 2)

	urls := make([]string, 0, len(entries))
	for _, entry := range entries {
		u, err := extract.EntryLink(entry, "https://shop.example/raft")
		require.NoError(t, err)
		urls = append(urls, u)
	}
	return ShelfBatch{
		Domain:     "shop.example",
		Entries:    entries,
		EntryURLs:  urls,
		DetailDocs: map[string]*goquery.Document{},
		ObservedAt: time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC),
	}
}

func TestMineShelfReconcilesAllEntries(t *testing.T) {
	t.Parallel()

	store := memory.New()
	miner := newTestMiner(t, store, false)

	counts, err := miner.MineShelf(context.Background(), shelfBatch(t))
	require.NoError(t, err)
	require.Equal(t, 2, counts.Inserted)
	require.Zero(t, counts.Skipped)

	// entry B had no parseable price but the product is still kept
	require.Equal(t, 2, store.CountProducts())
}

func TestMineShelfGeneratesWrapperOnce(t *testing.T) {
	t.Parallel()

	store := memory.New()
	miner := newTestMiner(t, store, true)
	ctx := context.Background()

	_, err := miner.MineShelf(ctx, shelfBatch(t))
	require.NoError(t, err)

	site, err := store.FindSiteByDomain(ctx, "shop.example")
	require.NoError(t, err)
	require.NotNil(t, site.Wrapper)
	firstGenerated := site.Wrapper.GeneratedAt

	_, err = miner.MineShelf(ctx, shelfBatch(t))
	require.NoError(t, err)

	site, err = store.FindSiteByDomain(ctx, "shop.example")
	require.NoError(t, err)
	require.Equal(t, firstGenerated, site.Wrapper.GeneratedAt, "wrapper is generated at most once")
}

func TestMineShelfSiteResolutionHappensFirst(t *testing.T) {
	t.Parallel()

	store := memory.New()
	miner := newTestMiner(t, store, false)

	_, err := miner.MineShelf(context.Background(), shelfBatch(t))
	require.NoError(t, err)

	site, err := store.FindSiteByDomain(context.Background(), "shop.example")
	require.NoError(t, err)

	product, ok := store.GetProduct("id-2")
	require.True(t, ok)
	if len(product.PricePoints) > 0 {
		require.Equal(t, site.ID, product.PricePoints[0].SiteID)
	}
}
