package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

func TestUpsertPagesKeepsEarliestDiscovery(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()
	early := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)

	require.NoError(t, store.UpsertPages(ctx, []catalog.Page{{
		URL:          "https://shop.example/p/1",
		Type:         catalog.PageTypeSitemap,
		ReferrerURL:  "sitemap",
		DiscoveredAt: early,
	}}))
	require.NoError(t, store.UpsertPages(ctx, []catalog.Page{{
		URL:          "https://shop.example/p/1",
		Type:         catalog.PageTypeProduct,
		ReferrerURL:  "https://shop.example/shelf",
		DiscoveredAt: late,
	}}))

	page, ok := store.GetPage("https://shop.example/p/1")
	require.True(t, ok)
	require.Equal(t, early, page.DiscoveredAt, "first-seen timestamp must survive re-upserts")
	require.Equal(t, catalog.PageTypeProduct, page.Type, "page type may be refreshed")
	require.Equal(t, "https://shop.example/shelf", page.ReferrerURL)
}

func TestGetActiveJobByDomain(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	_, err := store.GetActiveJobByDomain(ctx, "shop.example")
	require.ErrorIs(t, err, catalog.ErrNoActiveJob)

	require.NoError(t, store.UpsertJob(ctx, catalog.Job{
		ID:     "job-1",
		Domain: "shop.example",
		Status: catalog.JobStatusRunning,
	}))
	job, err := store.GetActiveJobByDomain(ctx, "shop.example")
	require.NoError(t, err)
	require.Equal(t, "job-1", job.ID)

	require.NoError(t, store.UpsertJob(ctx, catalog.Job{
		ID:     "job-1",
		Domain: "shop.example",
		Status: catalog.JobStatusFinished,
	}))
	_, err = store.GetActiveJobByDomain(ctx, "shop.example")
	require.ErrorIs(t, err, catalog.ErrNoActiveJob)
}

func TestFindProductPrefersISBN(t *testing.T) {
	t.Parallel()

	store := New()
	ctx := context.Background()

	require.NoError(t, store.SaveProduct(ctx, catalog.Product{
		ID:    "p1",
		Title: "Enigma Otiliei",
		ISBN:  "978-606-33-1234-5",
	}))
	require.NoError(t, store.SaveProduct(ctx, catalog.Product{
		ID:    "p2",
		Title: "Enigma  Otiliei",
	}))

	byISBN, err := store.FindProductByISBNOrTitle(ctx, "978-606-33-1234-5", "")
	require.NoError(t, err)
	require.Len(t, byISBN, 1)
	require.Equal(t, "p1", byISBN[0].ID)

	byTitle, err := store.FindProductByISBNOrTitle(ctx, "", "enigma otiliei")
	require.NoError(t, err)
	require.Len(t, byTitle, 2, "title match is whitespace-normalized")
}
