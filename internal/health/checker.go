package health

import (
	"sync"

	"github.com/giantswarm/1mcp/internal/upstream"
)

// DetailLevel controls how much a detailed health response exposes.
type DetailLevel string

const (
	DetailFull    DetailLevel = "full"
	DetailBasic   DetailLevel = "basic"
	DetailMinimal DetailLevel = "minimal"
)

// Aggregate is the overall status computed from every upstream's state.
type Aggregate string

const (
	Healthy   Aggregate = "healthy"
	Degraded  Aggregate = "degraded"
	Unhealthy Aggregate = "unhealthy"
)

// Checker holds everything needed to answer liveness, readiness, and
// detailed health queries without owning the components it reports on.
// Constructed once at startup and wired to the live connection manager and
// aggregator; every method is safe for concurrent use.
type Checker struct {
	detail DetailLevel

	statuses func() map[string]upstream.Status

	mu           sync.RWMutex
	aggStarted   bool
	configLoaded bool
	configErr    error
}

// NewChecker constructs a Checker. statuses supplies a live snapshot of
// every upstream's state, matching upstream.Manager.Snapshot.
func NewChecker(detail DetailLevel, statuses func() map[string]upstream.Status) *Checker {
	if detail == "" {
		detail = DetailFull
	}
	return &Checker{detail: detail, statuses: statuses}
}

// MarkConfigLoaded records that the initial configuration load (and
// therefore aggregator construction) succeeded. Readiness stays false
// until this is called.
func (c *Checker) MarkConfigLoaded() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configLoaded = true
	c.configErr = nil
}

// MarkAggregatorStarted records that the aggregator's event loop is
// running and ready to serve capability lookups.
func (c *Checker) MarkAggregatorStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.aggStarted = true
}

// RecordConfigError records a failed config reload. The watcher keeps
// serving the last-good snapshot, so this does not un-ready the process; it
// surfaces in the detailed report until the next successful reload clears
// it via MarkConfigLoaded.
func (c *Checker) RecordConfigError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.configErr = err
}

// Ready reports whether configuration has loaded and the aggregator has
// started — the gate for the readiness endpoint.
func (c *Checker) Ready() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.configLoaded && c.aggStarted
}

// Report is the detailed health payload.
type Report struct {
	Status      Aggregate               `json:"status"`
	DetailLevel DetailLevel             `json:"detail_level"`
	Servers     map[string]ServerStatus `json:"servers,omitempty"`
	ConfigError string                  `json:"config_error,omitempty"`
}

// ServerStatus is one upstream's state in a detailed health report.
type ServerStatus struct {
	State            string `json:"state"`
	RetryCount       int    `json:"retry_count,omitempty"`
	Error            string `json:"error,omitempty"`
	AuthorizationURL string `json:"authorization_url,omitempty"`
}
