package router

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/1mcp/internal/session"
)

// reverseBus tracks, per upstream, which inbound session most recently
// issued a request to it — the routing policy for server→client requests
// (sampling/createMessage, elicitation/elicit, roots/list) an upstream
// issues back at the proxy.
type reverseBus struct {
	mu          sync.Mutex
	lastTouched map[string]string // upstream -> session id
}

func newReverseBus() *reverseBus {
	return &reverseBus{lastTouched: make(map[string]string)}
}

func (b *reverseBus) touch(upstreamName string, sess *session.InboundSession) {
	b.mu.Lock()
	b.lastTouched[upstreamName] = sess.ID
	b.mu.Unlock()
}

// pick selects the session that should service a reverse-direction request
// from upstreamName: the most recently touched session for it, if that
// session is still registered and admits the upstream; otherwise the oldest
// registered session that admits it; otherwise false.
func (r *Router) pickReverseSession(upstreamName string) (*session.InboundSession, bool) {
	r.reverse.mu.Lock()
	lastID := r.reverse.lastTouched[upstreamName]
	r.reverse.mu.Unlock()

	if lastID != "" {
		if sess, ok := r.sessions.Get(lastID); ok && r.admits(sess, upstreamName) {
			return sess, true
		}
	}

	var oldest *session.InboundSession
	for _, sess := range r.sessions.All() {
		if !r.admits(sess, upstreamName) {
			continue
		}
		if oldest == nil || sess.CreatedAt.Before(oldest.CreatedAt) {
			oldest = sess
		}
	}
	if oldest == nil {
		return nil, false
	}
	return oldest, true
}

// HandleReverseRequest services an upstream-issued server→client request by
// routing it to the session picked by pickReverseSession. If no session
// admits the upstream, the caller should fail the request back to the
// upstream with MethodNotFound, per spec.
func (r *Router) HandleReverseRequest(ctx context.Context, upstreamName, method string, params any) (any, error) {
	sess, ok := r.pickReverseSession(upstreamName)
	if !ok || sess.Reverse == nil {
		return nil, &InvalidParamsError{Reason: "no inbound session available to service " + method}
	}
	rctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return sess.Reverse.Request(rctx, method, params)
}
