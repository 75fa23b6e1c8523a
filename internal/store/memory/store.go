// Package memory provides an in-memory Store implementation for development
// and testing.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/shelfwatch/price-crawler/internal/catalog"
)

// Store keeps all records in process memory behind one mutex. Upsert
// semantics mirror the Postgres implementation.
type Store struct {
	mu       sync.RWMutex
	jobs     map[string]catalog.Job
	pages    map[string]catalog.Page
	products map[string]catalog.Product
	sites    map[string]catalog.Site
}

// New constructs an empty Store.
func New() *Store {
	return &Store{
		jobs:     make(map[string]catalog.Job),
		pages:    make(map[string]catalog.Page),
		products: make(map[string]catalog.Product),
		sites:    make(map[string]catalog.Site),
	}
}

// UpsertJob inserts or replaces the job record.
func (s *Store) UpsertJob(_ context.Context, job catalog.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
	return nil
}

// GetJobByID fetches a job by ID.
func (s *Store) GetJobByID(_ context.Context, id string) (catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	if !ok {
		return catalog.Job{}, catalog.ErrJobNotFound
	}
	return job, nil
}

// GetActiveJobByDomain returns the pending or running job for the domain.
func (s *Store) GetActiveJobByDomain(_ context.Context, domain string) (catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		if job.Domain == domain && !job.Status.Terminal() {
			return job, nil
		}
	}
	return catalog.Job{}, catalog.ErrNoActiveJob
}

// ListActiveJobs returns every non-terminal job, ordered by submission time.
func (s *Store) ListActiveJobs(_ context.Context) ([]catalog.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var active []catalog.Job
	for _, job := range s.jobs {
		if !job.Status.Terminal() {
			active = append(active, job)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].SubmittedAt.Before(active[j].SubmittedAt)
	})
	return active, nil
}

// UpsertPages inserts or refreshes page records keyed by URL, keeping the
// earliest discovery timestamp.
func (s *Store) UpsertPages(_ context.Context, pages []catalog.Page) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, page := range pages {
		existing, ok := s.pages[page.URL]
		if ok && existing.DiscoveredAt.Before(page.DiscoveredAt) {
			page.DiscoveredAt = existing.DiscoveredAt
		}
		s.pages[page.URL] = page
	}
	return nil
}

// GetPage returns the stored page record for a URL, if any.
func (s *Store) GetPage(url string) (catalog.Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	page, ok := s.pages[url]
	return page, ok
}

// CountPages returns the number of stored page records, optionally filtered
// by page type.
func (s *Store) CountPages(pageType catalog.PageType) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, page := range s.pages {
		if pageType == "" || page.Type == pageType {
			count++
		}
	}
	return count
}

// FindProductByISBNOrTitle returns products matching the ISBN, or the
// normalized title when no ISBN is given.
func (s *Store) FindProductByISBNOrTitle(_ context.Context, isbn, normalizedTitle string) ([]catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matches []catalog.Product
	for _, product := range s.products {
		if isbn != "" {
			if product.ISBN == isbn {
				matches = append(matches, product)
			}
			continue
		}
		if catalog.NormalizeTitle(product.Title) == normalizedTitle {
			matches = append(matches, product)
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].ID < matches[j].ID })
	return matches, nil
}

// SaveProduct inserts a product record.
func (s *Store) SaveProduct(_ context.Context, product catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

// MergeProduct replaces the stored record for an existing product ID.
func (s *Store) MergeProduct(_ context.Context, product catalog.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[product.ID] = product
	return nil
}

// GetProduct returns the stored product by ID.
func (s *Store) GetProduct(id string) (catalog.Product, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	product, ok := s.products[id]
	return product, ok
}

// CountProducts returns the number of stored products.
func (s *Store) CountProducts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.products)
}

// FindSiteByDomain returns the site record for a domain.
func (s *Store) FindSiteByDomain(_ context.Context, domain string) (catalog.Site, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	site, ok := s.sites[domain]
	if !ok {
		return catalog.Site{}, catalog.ErrSiteNotFound
	}
	return site, nil
}

// SaveSite inserts or replaces the site record.
func (s *Store) SaveSite(_ context.Context, site catalog.Site) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sites[site.Domain] = site
	return nil
}
