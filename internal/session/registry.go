package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/giantswarm/1mcp/pkg/logging"
)

// DefaultSessionTimeout is how long an inbound session may sit idle before
// the cleanup sweep reclaims it.
const DefaultSessionTimeout = 30 * time.Minute

// DefaultMaxSessions bounds concurrent sessions as a DoS guard.
const DefaultMaxSessions = 10000

// SessionLimitExceededError is returned when the registry is at capacity.
type SessionLimitExceededError struct {
	Limit   int
	Current int
}

func (e *SessionLimitExceededError) Error() string {
	return fmt.Sprintf("session limit exceeded: %d/%d sessions", e.Current, e.Limit)
}

// Registry owns every InboundSession's lifecycle: creation, lookup, idle
// cleanup, and disconnect.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*InboundSession

	timeout     time.Duration
	maxSessions int

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewRegistry creates a Registry and starts its background idle-session
// sweep. Call Stop to release the sweep goroutine.
func NewRegistry(timeout time.Duration, maxSessions int) *Registry {
	if timeout <= 0 {
		timeout = DefaultSessionTimeout
	}
	if maxSessions <= 0 {
		maxSessions = DefaultMaxSessions
	}
	r := &Registry{
		sessions:    make(map[string]*InboundSession),
		timeout:     timeout,
		maxSessions: maxSessions,
		stop:        make(chan struct{}),
	}
	r.wg.Add(1)
	go r.cleanupLoop()
	return r
}

// Add registers a freshly constructed session, enforcing the concurrent
// session limit.
func (r *Registry) Add(s *InboundSession) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.sessions) >= r.maxSessions {
		return &SessionLimitExceededError{Limit: r.maxSessions, Current: len(r.sessions)}
	}
	r.sessions[s.ID] = s
	logging.Debug("SessionRegistry", "session %s created (total %d)", logging.TruncateID(s.ID), len(r.sessions))
	return nil
}

// Get returns the session for id, touching its activity timestamp.
func (r *Registry) Get(id string) (*InboundSession, bool) {
	r.mu.RLock()
	s, ok := r.sessions[id]
	r.mu.RUnlock()
	if ok {
		s.Touch()
	}
	return s, ok
}

// Remove deletes a session, e.g. on transport disconnect.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	_, existed := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()
	if existed {
		logging.Debug("SessionRegistry", "session %s removed", logging.TruncateID(id))
	}
}

// All returns a snapshot of every currently registered session. Used by
// InvalidateAll and by reverse-request session selection.
func (r *Registry) All() []*InboundSession {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*InboundSession, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	return out
}

// InvalidateAll bumps every session's admission cache generation, called
// when the aggregate upstream set changes.
func (r *Registry) InvalidateAll() {
	for _, s := range r.All() {
		s.InvalidateAdmission()
	}
}

// Stop halts the idle-session cleanup sweep.
func (r *Registry) Stop() {
	close(r.stop)
	r.wg.Wait()
}

func (r *Registry) cleanupLoop() {
	defer r.wg.Done()
	period := r.timeout / 4
	if period <= 0 {
		period = time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.sweepIdle()
		}
	}
}

func (r *Registry) sweepIdle() {
	cutoff := time.Now().Add(-r.timeout)

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.sessions {
		if s.idleSince().Before(cutoff) {
			delete(r.sessions, id)
			logging.Debug("SessionRegistry", "session %s reclaimed after %s idle", logging.TruncateID(id), r.timeout)
		}
	}
}
