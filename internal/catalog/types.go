package catalog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// JobStatus represents the lifecycle state of a crawl job.
type JobStatus string

// Job status values persisted in the job store. A job is terminal once it
// reaches JobStatusFinished or JobStatusFailed.
const (
	JobStatusPending  JobStatus = "pending"
	JobStatusRunning  JobStatus = "running"
	JobStatusFinished JobStatus = "finished"
	JobStatusFailed   JobStatus = "failed"
)

// Terminal reports whether the status can no longer change.
func (s JobStatus) Terminal() bool {
	return s == JobStatusFinished || s == JobStatusFailed
}

// JobType distinguishes job kinds in the store. Only crawl jobs exist today.
type JobType string

// JobTypeCrawl is the only job type the engine schedules.
const JobTypeCrawl JobType = "crawl"

// RobotRules captures what robots.txt told us about a domain, falling back to
// configured defaults when robots.txt was unreachable.
type RobotRules struct {
	Sitemaps   []string      `json:"sitemaps"`
	CrawlDelay time.Duration `json:"crawl_delay"`
	UserAgent  string        `json:"user_agent"`
}

// Job represents the metadata persisted for each submitted crawl request.
// Only the orchestrator mutates status and timestamps.
type Job struct {
	ID              string     `json:"id"`
	Type            JobType    `json:"type"`
	Domain          string     `json:"domain"`
	Homepage        string     `json:"homepage"`
	Seeds           []string   `json:"seeds"`
	AdditionalMaps  []string   `json:"additional_sitemaps,omitempty"`
	DisallowCookies bool       `json:"disallow_cookies"`
	RobotRules      RobotRules `json:"robot_rules"`
	Status          JobStatus  `json:"status"`
	SubmittedAt     time.Time  `json:"submitted_at"`
	StartedAt       *time.Time `json:"started_at,omitempty"`
	EndedAt         *time.Time `json:"ended_at,omitempty"`
	ErrorText       string     `json:"error_text,omitempty"`
}

// SitemapURLs returns the union of robots-discovered and caller-provided
// sitemap URLs, deduplicated, preserving first-seen order.
func (j Job) SitemapURLs() []string {
	seen := make(map[string]struct{}, len(j.RobotRules.Sitemaps)+len(j.AdditionalMaps))
	out := make([]string, 0, len(j.RobotRules.Sitemaps)+len(j.AdditionalMaps))
	for _, u := range append(append([]string{}, j.RobotRules.Sitemaps...), j.AdditionalMaps...) {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}

// PageType classifies a discovered page.
type PageType string

// Page type values.
const (
	PageTypeShelf   PageType = "shelf"
	PageTypeProduct PageType = "product"
	PageTypeSitemap PageType = "sitemap"
)

// Page is one discovered URL. Pages are keyed by URL; re-upserting keeps the
// earliest DiscoveredAt while allowing the referrer and type to be refreshed.
type Page struct {
	URL          string    `json:"url"`
	ReferrerURL  string    `json:"referrer_url,omitempty"`
	Type         PageType  `json:"page_type"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// Site is the per-domain state. The wrapper is set at most once unless
// explicitly regenerated.
type Site struct {
	ID      string      `json:"id"`
	Domain  string      `json:"domain"`
	Wrapper *WebWrapper `json:"wrapper,omitempty"`
}

// WebWrapper is a learned, site-specific extraction template keyed by the
// structural signature of one catalog entry. Rules map a logical field name
// to a CSS selector derived by aligning a detail page against shelf entries.
type WebWrapper struct {
	Signature   string            `json:"signature"`
	Rules       map[string]string `json:"rules"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// PricePoint is one dated observation of a product's price. Immutable once
// created; owned by the Product it was observed for.
type PricePoint struct {
	Nominal      decimal.Decimal `json:"nominal_value"`
	Currency     string          `json:"currency"`
	ObservedDate time.Time       `json:"observed_date"`
	SiteID       string          `json:"site_id"`
}

// Product is a catalog item tracked over time. Two observations with equal
// non-empty ISBNs denote the same product; absent an ISBN, equality of the
// normalized title is the fallback identity key.
type Product struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	ISBN        string       `json:"isbn,omitempty"`
	Authors     []string     `json:"authors"`
	Description string       `json:"description,omitempty"`
	PricePoints []PricePoint `json:"pricepoints"`
}

// NormalizeTitle produces the fallback identity key for products without an
// ISBN: lowercased, whitespace-collapsed title text.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
