package catalog

import (
	"context"
	"time"
)

// JobStore persists job metadata. GetActiveJobByDomain backs the
// one-running-job-per-domain invariant and must query durable state, not
// process memory, since jobs run across worker goroutines and processes.
type JobStore interface {
	UpsertJob(ctx context.Context, job Job) error
	GetJobByID(ctx context.Context, id string) (Job, error)
	GetActiveJobByDomain(ctx context.Context, domain string) (Job, error)
	ListActiveJobs(ctx context.Context) ([]Job, error)
}

// PageStore persists discovered pages. UpsertPages is idempotent on URL and
// keeps the earliest DiscoveredAt while refreshing referrer and page type.
type PageStore interface {
	UpsertPages(ctx context.Context, pages []Page) error
}

// ProductStore persists products and their price history. SaveProduct inserts
// a new product; MergeProduct replaces the stored record for an existing ID.
type ProductStore interface {
	FindProductByISBNOrTitle(ctx context.Context, isbn, normalizedTitle string) ([]Product, error)
	SaveProduct(ctx context.Context, product Product) error
	MergeProduct(ctx context.Context, product Product) error
}

// SiteStore persists per-domain site state, including learned wrappers.
type SiteStore interface {
	FindSiteByDomain(ctx context.Context, domain string) (Site, error)
	SaveSite(ctx context.Context, site Site) error
}

// Store aggregates every persistence capability the engine needs.
type Store interface {
	JobStore
	PageStore
	ProductStore
	SiteStore
}

// NextControl is an opaque handle to a pagination "next" element found in the
// rendered page.
type NextControl interface {
	Disabled() bool
}

// Renderer is a live browser session bound to one domain. Traversal owns
// exactly one session at a time; implementations need not be safe for
// concurrent use.
type Renderer interface {
	Navigate(ctx context.Context, url string) error
	CurrentURL(ctx context.Context) (string, error)
	PageSource(ctx context.Context) (string, error)
	FindNextPageControl(ctx context.Context) (NextControl, error)
	Click(ctx context.Context, control NextControl) error
	AddCookie(ctx context.Context, domain, name, value string) error
	Close(ctx context.Context) error
}

// Clock returns the current time; injected so tests control timestamps.
type Clock interface {
	Now() time.Time
}

// IDGenerator produces identifiers for jobs, sites, and products.
type IDGenerator interface {
	NewID() (string, error)
}
