package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/reconcile"
	"github.com/shelfwatch/price-crawler/internal/store/memory"
)

type fakeResolver struct {
	seeds []string
	pages int
	err   error
}

func (r *fakeResolver) Resolve(ctx context.Context, seeds []string) (int, error) {
	r.seeds = seeds
	return r.pages, r.err
}

func TestSitemapStrategyResolvesAllKnownSitemaps(t *testing.T) {
	t.Parallel()

	resolver := &fakeResolver{pages: 12}
	strat := NewSitemapStrategy(resolver, zap.NewNop())

	job := catalog.Job{
		ID:     "job-1",
		Domain: "example.com",
		RobotRules: catalog.RobotRules{
			Sitemaps: []string{"https://example.com/sitemap.xml"},
		},
		AdditionalMaps: []string{"https://example.com/products.xml"},
	}
	require.NoError(t, strat.Crawl(context.Background(), job))
	require.ElementsMatch(t, []string{
		"https://example.com/sitemap.xml",
		"https://example.com/products.xml",
	}, resolver.seeds)
}

func TestSitemapStrategyPropagatesResolverFailure(t *testing.T) {
	t.Parallel()

	strat := NewSitemapStrategy(&fakeResolver{err: errors.New("store unavailable")}, zap.NewNop())
	err := strat.Crawl(context.Background(), catalog.Job{Domain: "example.com"})
	require.ErrorContains(t, err, "store unavailable")
}

// emptyShelfRenderer serves a single shelf with no product entries and no
// pagination control.
type emptyShelfRenderer struct {
	navigated []string
	closed    bool
}

func (r *emptyShelfRenderer) Navigate(ctx context.Context, url string) error {
	r.navigated = append(r.navigated, url)
	return nil
}

func (r *emptyShelfRenderer) CurrentURL(ctx context.Context) (string, error) {
	return r.navigated[len(r.navigated)-1], nil
}

func (r *emptyShelfRenderer) PageSource(ctx context.Context) (string, error) {
	return "<html><body><p>nothing here</p></body></html>", nil
}

func (r *emptyShelfRenderer) FindNextPageControl(ctx context.Context) (catalog.NextControl, error) {
	return nil, nil
}

func (r *emptyShelfRenderer) Click(ctx context.Context, control catalog.NextControl) error {
	return errors.New("no control to click")
}

func (r *emptyShelfRenderer) AddCookie(ctx context.Context, domain, name, value string) error {
	return nil
}

func (r *emptyShelfRenderer) Close(ctx context.Context) error {
	r.closed = true
	return nil
}

type noopMiner struct{}

func (noopMiner) MineShelf(ctx context.Context, batch reconcile.ShelfBatch) (reconcile.Counts, error) {
	return reconcile.Counts{}, nil
}

func TestPaginationStrategyDefaultsSeedsToHomepage(t *testing.T) {
	t.Parallel()

	renderer := &emptyShelfRenderer{}
	strat := NewPaginationStrategy(
		func(ctx context.Context) (catalog.Renderer, error) { return renderer, nil },
		memory.New(),
		noopMiner{},
		nil,
		fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)},
		nil,
		1,
		zap.NewNop(),
	)

	job := catalog.Job{ID: "job-1", Domain: "example.com", Homepage: "https://books.example.com"}
	require.NoError(t, strat.Crawl(context.Background(), job))
	require.Equal(t, []string{"https://books.example.com"}, renderer.navigated)
	require.True(t, renderer.closed)
}

func TestPaginationStrategyFailsWhenSessionCannotOpen(t *testing.T) {
	t.Parallel()

	strat := NewPaginationStrategy(
		func(ctx context.Context) (catalog.Renderer, error) { return nil, errors.New("chrome not found") },
		memory.New(),
		noopMiner{},
		nil,
		fixedClock{now: time.Now()},
		nil,
		1,
		zap.NewNop(),
	)

	err := strat.Crawl(context.Background(), catalog.Job{Domain: "example.com", Homepage: "https://books.example.com"})
	require.ErrorContains(t, err, "chrome not found")
}
