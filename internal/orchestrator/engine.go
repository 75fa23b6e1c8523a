// Package orchestrator owns the crawl job lifecycle: it validates and admits
// submissions, enforces the one-active-job-per-domain rule, selects the crawl
// strategy for each job, and fans jobs out to a bounded worker pool.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"runtime"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/net/publicsuffix"

	"github.com/shelfwatch/price-crawler/internal/catalog"
	"github.com/shelfwatch/price-crawler/internal/metrics"
)

// Strategy executes one admitted job against its domain.
type Strategy interface {
	Crawl(ctx context.Context, job catalog.Job) error
}

// RobotsSource resolves the robots.txt policy for a homepage.
type RobotsSource interface {
	Rules(ctx context.Context, homepage string) catalog.RobotRules
}

// Config controls the engine.
type Config struct {
	// Workers bounds concurrent jobs. Zero means 2x the CPU count.
	Workers int
	// QueueSize bounds jobs admitted but not yet started.
	QueueSize int
}

// SubmitRequest is one crawl submission.
type SubmitRequest struct {
	Homepage           string
	Seeds              []string
	AdditionalSitemaps []string
	DisallowCookies    bool
}

// Engine admits jobs and runs them on a worker pool.
type Engine struct {
	store      catalog.Store
	robots     RobotsSource
	sitemap    Strategy
	pagination Strategy
	ids        catalog.IDGenerator
	clock      catalog.Clock
	cfg        Config
	queue      chan string
	logger     *zap.Logger

	// admitMu serializes the conflict check against job insertion so two
	// concurrent submissions for one domain cannot both pass.
	admitMu sync.Mutex
}

// New builds an Engine.
func New(
	store catalog.Store,
	robots RobotsSource,
	sitemap Strategy,
	pagination Strategy,
	ids catalog.IDGenerator,
	clock catalog.Clock,
	cfg Config,
	logger *zap.Logger,
) *Engine {
	if cfg.Workers <= 0 {
		cfg.Workers = 2 * runtime.NumCPU()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &Engine{
		store:      store,
		robots:     robots,
		sitemap:    sitemap,
		pagination: pagination,
		ids:        ids,
		clock:      clock,
		cfg:        cfg,
		queue:      make(chan string, cfg.QueueSize),
		logger:     logger,
	}
}

// Submit validates a submission, admits it as a pending job, and schedules it.
// A malformed homepage or a seed outside the homepage's host is rejected with
// a ConfigurationError; a second submission for a domain with a live job is
// rejected with an ActiveJobConflictError carrying that job.
func (e *Engine) Submit(ctx context.Context, req SubmitRequest) (catalog.Job, error) {
	homepage, err := parseHomepage(req.Homepage)
	if err != nil {
		return catalog.Job{}, err
	}
	if err := validateSeeds(homepage, req.Seeds); err != nil {
		return catalog.Job{}, err
	}
	domain := registrableDomain(homepage.Hostname())

	id, err := e.ids.NewID()
	if err != nil {
		return catalog.Job{}, fmt.Errorf("generate job id: %w", err)
	}

	// Robots resolution can block on the network, so it happens before the
	// admission lock. A submission that then loses the conflict check just
	// discards the fetched rules.
	rules := e.robots.Rules(ctx, homepage.String())

	e.admitMu.Lock()
	defer e.admitMu.Unlock()

	active, err := e.store.GetActiveJobByDomain(ctx, domain)
	switch {
	case err == nil:
		return catalog.Job{}, &catalog.ActiveJobConflictError{Domain: domain, Active: active}
	case !errors.Is(err, catalog.ErrNoActiveJob):
		return catalog.Job{}, fmt.Errorf("check active job for %s: %w", domain, err)
	}

	job := catalog.Job{
		ID:              id,
		Type:            catalog.JobTypeCrawl,
		Domain:          domain,
		Homepage:        homepage.String(),
		Seeds:           append([]string(nil), req.Seeds...),
		AdditionalMaps:  append([]string(nil), req.AdditionalSitemaps...),
		DisallowCookies: req.DisallowCookies,
		RobotRules:      rules,
		Status:          catalog.JobStatusPending,
		SubmittedAt:     e.clock.Now(),
	}
	if err := e.store.UpsertJob(ctx, job); err != nil {
		return catalog.Job{}, fmt.Errorf("persist job %s: %w", job.ID, err)
	}

	select {
	case e.queue <- job.ID:
	default:
		job.Status = catalog.JobStatusFailed
		job.ErrorText = "job queue is full"
		if upsertErr := e.store.UpsertJob(ctx, job); upsertErr != nil {
			e.logger.Error("could not mark overflowed job failed",
				zap.String("job_id", job.ID), zap.Error(upsertErr))
		}
		return catalog.Job{}, fmt.Errorf("job queue is full")
	}

	e.logger.Info("job admitted",
		zap.String("job_id", job.ID),
		zap.String("domain", job.Domain),
		zap.Int("sitemaps", len(job.SitemapURLs())))
	return job, nil
}

// Run starts the worker pool and blocks until the context finishes.
func (e *Engine) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < e.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			e.work(ctx)
		}()
	}
	<-ctx.Done()
	wg.Wait()
}

func (e *Engine) work(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case jobID := <-e.queue:
			e.runJob(ctx, jobID)
		}
	}
}

// runJob moves a job through its lifecycle. The RUNNING transition is
// persisted before any network activity so the conflict check observes it.
func (e *Engine) runJob(ctx context.Context, jobID string) {
	job, err := e.store.GetJobByID(ctx, jobID)
	if err != nil {
		e.logger.Error("could not load queued job", zap.String("job_id", jobID), zap.Error(err))
		return
	}

	now := e.clock.Now()
	job.Status = catalog.JobStatusRunning
	job.StartedAt = &now
	if err := e.store.UpsertJob(ctx, job); err != nil {
		e.logger.Error("could not mark job running", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	metrics.JobsStarted.Inc()
	e.logger.Info("job started", zap.String("job_id", job.ID), zap.String("domain", job.Domain))

	crawlErr := e.selectStrategy(job).Crawl(ctx, job)

	ended := e.clock.Now()
	job.EndedAt = &ended
	if crawlErr != nil {
		job.Status = catalog.JobStatusFailed
		job.ErrorText = crawlErr.Error()
		metrics.JobsFailed.Inc()
		e.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(crawlErr))
	} else {
		job.Status = catalog.JobStatusFinished
		e.logger.Info("job finished", zap.String("job_id", job.ID), zap.String("domain", job.Domain))
	}
	if err := e.store.UpsertJob(ctx, job); err != nil {
		e.logger.Error("could not persist terminal job status",
			zap.String("job_id", job.ID), zap.Error(err))
	}
}

// selectStrategy picks the crawl strategy once per job: sitemap resolution
// when any sitemap URL is known, pagination traversal otherwise.
func (e *Engine) selectStrategy(job catalog.Job) Strategy {
	if len(job.SitemapURLs()) > 0 {
		return e.sitemap
	}
	return e.pagination
}

func parseHomepage(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, &catalog.ConfigurationError{Reason: "homepage is not a valid URL", Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &catalog.ConfigurationError{Reason: fmt.Sprintf("homepage %q must be an absolute http(s) URL", raw)}
	}
	return u, nil
}

func validateSeeds(homepage *url.URL, seeds []string) error {
	for _, seed := range seeds {
		u, err := url.Parse(seed)
		if err != nil {
			return &catalog.ConfigurationError{Reason: fmt.Sprintf("seed %q is not a valid URL", seed), Err: err}
		}
		if !strings.EqualFold(u.Hostname(), homepage.Hostname()) {
			return &catalog.ConfigurationError{
				Reason: fmt.Sprintf("seed %q is outside homepage host %q", seed, homepage.Hostname()),
			}
		}
	}
	return nil
}

// registrableDomain collapses a hostname to its registrable domain, so
// www.books.example.com and books.example.com share one active-job slot.
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	domain, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		return host
	}
	return domain
}
