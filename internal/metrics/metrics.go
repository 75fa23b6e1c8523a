// Package metrics registers the Prometheus instruments shared across
// subsystems.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsStarted counts crawl jobs that entered the running state.
	JobsStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_jobs_started_total",
		Help: "The total number of crawl jobs started.",
	})
	// JobsFailed counts crawl jobs that ended in the failed state.
	JobsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_jobs_failed_total",
		Help: "The total number of crawl jobs that failed.",
	})
	// PagesDiscovered counts page records emitted by traversal and sitemap resolution.
	PagesDiscovered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_pages_discovered_total",
		Help: "The total number of page records discovered and upserted.",
	})
	// SitemapFetches counts sitemap documents fetched successfully.
	SitemapFetches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_sitemap_fetches_total",
		Help: "The total number of sitemap documents fetched.",
	})
	// RedirectAbandons counts sitemap URLs dropped after exhausting the redirect budget.
	RedirectAbandons = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_sitemap_redirect_abandons_total",
		Help: "The total number of sitemap URLs abandoned due to redirect loops.",
	})
	// ProductsInserted counts products created on first observation.
	ProductsInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_products_inserted_total",
		Help: "The total number of new products inserted.",
	})
	// ProductsUpdated counts products merged with a fresh observation.
	ProductsUpdated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_products_updated_total",
		Help: "The total number of existing products updated.",
	})
	// PriceParseFailures counts entries whose price text could not be parsed.
	PriceParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "crawler_price_parse_failures_total",
		Help: "The total number of entries with unparseable price text.",
	})
)
