// Package session implements per-inbound-client state: the scope/tag
// filter each session was created with, and which upstreams that filter
// currently admits.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/giantswarm/1mcp/pkg/tagfilter"
)

// ReverseRequester lets the router route an upstream-originated
// server→client request (sampling/createMessage, elicitation/elicit,
// roots/list) through whichever inbound transport this session is bound to.
// No inbound transport in this module sets it, so it stays nil unless a
// caller assigns one.
type ReverseRequester interface {
	Request(ctx context.Context, method string, params any) (result any, err error)
}

// MaxSessionIDLength bounds an externally supplied session id, mirroring
// the same DoS concern the teacher's session registry guards against.
const MaxSessionIDLength = 256

// InboundSession is one connected MCP client: a stdio pipe, a streamable
// HTTP session, or a legacy SSE stream. It owns a single inbound transport
// instance and never outlives it.
type InboundSession struct {
	ID         string
	Tags       map[string]struct{} // derived from OAuth scopes, or the universe of configured tags when auth is disabled
	Filter     tagfilter.Expr      // parsed tag-filter query expression; nil means admit-all
	FilterExpr string

	EnablePagination bool
	PresetName       string
	ClientID         string // "anonymous" when auth is disabled
	CreatedAt        time.Time
	LastActivity     time.Time

	Reverse ReverseRequester // nil unless assigned; no inbound transport here sets it

	mu         sync.RWMutex
	generation uint64          // bumped by InvalidateAdmission whenever the upstream set changes
	admitted   map[string]bool // upstream name -> last-computed admission verdict, valid for `generation`
}

// New constructs an InboundSession. filterExpr may be empty, meaning
// admit-all (modulo the scope check). tags is the caller's authorized tag
// set: the OAuth scope-derived set, or the universe of configured tags when
// auth is disabled.
func New(clientID string, tags map[string]struct{}, filterExpr string, enablePagination bool) (*InboundSession, error) {
	var expr tagfilter.Expr
	if filterExpr != "" {
		parsed, err := tagfilter.Parse(filterExpr)
		if err != nil {
			return nil, fmt.Errorf("parse tag-filter: %w", err)
		}
		expr = parsed
	}

	now := time.Now()
	return &InboundSession{
		ID:               newSessionID(),
		Tags:             tags,
		Filter:           expr,
		FilterExpr:       filterExpr,
		EnablePagination: enablePagination,
		ClientID:         clientID,
		CreatedAt:        now,
		LastActivity:     now,
		admitted:         make(map[string]bool),
	}, nil
}

func newSessionID() string {
	return uuid.NewString()
}

// ValidateSessionID reports whether an externally supplied session id (e.g.
// on a streamable HTTP Mcp-Session-Id header) is acceptable.
func ValidateSessionID(id string) error {
	if id == "" {
		return fmt.Errorf("session id must not be empty")
	}
	if len(id) > MaxSessionIDLength {
		return fmt.Errorf("session id exceeds maximum length of %d", MaxSessionIDLength)
	}
	return nil
}

// Touch records activity, used by the registry's idle-session sweep.
func (s *InboundSession) Touch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.LastActivity = time.Now()
}

func (s *InboundSession) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.LastActivity
}

// InvalidateAdmission bumps the session's generation counter, discarding
// its cached per-upstream admission verdicts. Called by the router whenever
// the aggregate upstream set changes.
func (s *InboundSession) InvalidateAdmission() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.generation++
	s.admitted = make(map[string]bool)
}

// Admits reports whether this session's filter and scope admit an upstream
// with the given tags. The verdict is cached per upstream name until the
// next InvalidateAdmission call, per the spec's "computed once per session
// and cached until upstream set changes" rule.
func (s *InboundSession) Admits(upstream string, upstreamTags map[string]struct{}) bool {
	s.mu.RLock()
	if verdict, ok := s.admitted[upstream]; ok {
		s.mu.RUnlock()
		return verdict
	}
	s.mu.RUnlock()

	verdict := s.evaluate(upstreamTags)

	s.mu.Lock()
	s.admitted[upstream] = verdict
	s.mu.Unlock()

	return verdict
}

func (s *InboundSession) evaluate(upstreamTags map[string]struct{}) bool {
	if s.Filter != nil && !s.Filter.Eval(upstreamTags) {
		return false
	}
	if s.Tags == nil {
		return true // auth disabled: universe of tags authorizes everything the filter lets through
	}
	for tag := range upstreamTags {
		if _, ok := s.Tags[tag]; ok {
			return true
		}
	}
	// An untagged upstream has no tag requiring authorization; admit it
	// once the filter itself (evaluated above) has already let it through.
	return len(upstreamTags) == 0
}
