package catalog

import (
	"errors"
	"fmt"
)

// ErrJobNotFound is returned by job stores when no job matches.
var ErrJobNotFound = errors.New("job not found")

// ErrNoActiveJob is returned by GetActiveJobByDomain when the domain has no
// pending or running job.
var ErrNoActiveJob = errors.New("no active job for domain")

// ErrSiteNotFound is returned by site stores when the domain is unknown.
var ErrSiteNotFound = errors.New("site not found")

// ErrNoPrice marks an entry whose price text could not be parsed. The product
// is still kept; only the price observation is dropped.
var ErrNoPrice = errors.New("no parseable price")

// ActiveJobConflictError reports that a domain already has a non-terminal job.
// It carries the conflicting job so callers can poll it instead of
// resubmitting.
type ActiveJobConflictError struct {
	Domain string
	Active Job
}

func (e *ActiveJobConflictError) Error() string {
	return fmt.Sprintf("job %s is already active on domain %s", e.Active.ID, e.Domain)
}

// RedirectLoopError reports that a single sitemap URL exceeded the redirect
// budget. Resolution of sibling sitemap URLs continues.
type RedirectLoopError struct {
	URL  string
	Hops int
}

func (e *RedirectLoopError) Error() string {
	return fmt.Sprintf("exceeded %d redirects resolving %s", e.Hops, e.URL)
}

// ConfigurationError is fatal at job setup time and flips the job to failed
// before it starts running.
type ConfigurationError struct {
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("configuration: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("configuration: %s", e.Reason)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }
