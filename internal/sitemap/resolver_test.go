package sitemap

import (
	"compress/gzip"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/store/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func urlset(urls ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range urls {
		body += fmt.Sprintf("<url><loc>%s</loc></url>", u)
	}
	return body + "</urlset>"
}

func index(sitemaps ...string) string {
	body := `<?xml version="1.0" encoding="UTF-8"?><sitemapindex xmlns="http://www.sitemaps.org/schemas/sitemap/0.9">`
	for _, u := range sitemaps {
		body += fmt.Sprintf("<sitemap><loc>%s</loc></sitemap>", u)
	}
	return body + "</sitemapindex>"
}

func newResolver(t *testing.T, store catalog.PageStore) *Resolver {
	t.Helper()
	return NewResolver(Config{
		UserAgent:    "shelfwatch-bot/1.0",
		Timeout:      5 * time.Second,
		MaxRedirects: 5,
	}, store, fixedClock{now: time.Unix(1700000000, 0).UTC()}, zap.NewNop())
}

func TestResolveFlattensThreeLevelIndex(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/root.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, index(server.URL+"/mid.xml"))
	})
	mux.HandleFunc("/mid.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, index(server.URL+"/leaf.xml"))
	})
	mux.HandleFunc("/leaf.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, urlset(
			"https://shop.example/p/1",
			"https://shop.example/p/2",
			"https://shop.example/p/3",
		))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	store := memory.New()
	resolver := newResolver(t, store)

	count, err := resolver.Resolve(context.Background(), []string{server.URL + "/root.xml"})
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.Equal(t, 3, store.CountPages(catalog.PageTypeSitemap))

	page, ok := store.GetPage("https://shop.example/p/1")
	require.True(t, ok)
	require.Equal(t, "sitemap", page.ReferrerURL)
	require.Equal(t, catalog.PageTypeSitemap, page.Type)
}

func TestResolveFollowsRedirectsAndGzip(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/moved.xml", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "shelfwatch-bot/1.0", r.Header.Get("User-Agent"))
		http.Redirect(w, r, server.URL+"/real.xml.gz", http.StatusMovedPermanently)
	})
	mux.HandleFunc("/real.xml.gz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/gzip")
		gz := gzip.NewWriter(w)
		fmt.Fprint(gz, urlset("https://shop.example/p/9"))
		require.NoError(t, gz.Close())
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	store := memory.New()
	resolver := newResolver(t, store)

	count, err := resolver.Resolve(context.Background(), []string{server.URL + "/moved.xml"})
	require.NoError(t, err)
	require.Equal(t, 1, count)
	_, ok := store.GetPage("https://shop.example/p/9")
	require.True(t, ok)
}

func TestResolveAbandonsRedirectLoopsWithoutBlockingSiblings(t *testing.T) {
	t.Parallel()

	hops := 0
	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/loop.xml", func(w http.ResponseWriter, r *http.Request) {
		hops++
		http.Redirect(w, r, server.URL+"/loop.xml", http.StatusFound)
	})
	mux.HandleFunc("/good.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, urlset("https://shop.example/p/1"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	store := memory.New()
	resolver := newResolver(t, store)

	count, err := resolver.Resolve(context.Background(), []string{
		server.URL + "/loop.xml",
		server.URL + "/good.xml",
	})
	require.NoError(t, err, "a looping sitemap must not abort resolution")
	require.Equal(t, 1, count)
	require.Equal(t, 5, hops, "abandoned after exactly MaxRedirects hops")
}

func TestResolveCapsQueueProcessing(t *testing.T) {
	t.Parallel()

	var server *httptest.Server
	mux := http.NewServeMux()
	mux.HandleFunc("/self.xml", func(w http.ResponseWriter, _ *http.Request) {
		// pathological: an index that references itself forever
		fmt.Fprint(w, index(server.URL+"/self.xml"))
	})
	server = httptest.NewServer(mux)
	defer server.Close()

	store := memory.New()
	resolver := NewResolver(Config{
		UserAgent: "shelfwatch-bot/1.0",
		Timeout:   5 * time.Second,
		MaxNodes:  7,
	}, store, fixedClock{now: time.Now()}, zap.NewNop())

	count, err := resolver.Resolve(context.Background(), []string{server.URL + "/self.xml"})
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestResolveSkipsMalformedSitemaps(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/junk.xml", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, "<html><body>not a sitemap</body></html>")
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	store := memory.New()
	resolver := newResolver(t, store)

	count, err := resolver.Resolve(context.Background(), []string{server.URL + "/junk.xml"})
	require.NoError(t, err)
	require.Zero(t, count)
}
