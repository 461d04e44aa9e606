package aggregator

import (
	"context"
	"sync"
	"time"

	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// upstreamSource is the subset of *upstream.Manager the aggregator depends
// on. Narrowing to an interface keeps this package testable without a real
// connection manager driving real transports.
type upstreamSource interface {
	ReadyClients() map[string]*upstream.ReadyClient
	Events() <-chan upstream.StateChange
}

// Aggregator watches an upstream.Manager's state-change stream and keeps a
// Registry of namespace-qualified capabilities in sync with it. It is the
// sole writer of the Registry it owns.
type Aggregator struct {
	registry *Registry
	manager  upstreamSource

	coalesceWindow time.Duration
	listChanged    chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAggregator creates an Aggregator over manager's event stream, using
// window for list_changed coalescing (DefaultCoalesceWindow if zero).
func NewAggregator(manager upstreamSource, window time.Duration) *Aggregator {
	return &Aggregator{
		registry:       NewRegistry(),
		manager:        manager,
		coalesceWindow: window,
		listChanged:    make(chan struct{}, 1),
	}
}

// Registry returns the underlying capability registry.
func (a *Aggregator) Registry() *Registry {
	return a.registry
}

// ListChanged returns the coalesced notification channel: one signal per
// burst of upstream capability changes, suitable for driving the router's
// outbound notifications/list_changed to inbound sessions.
func (a *Aggregator) ListChanged() <-chan struct{} {
	return a.listChanged
}

// Start begins consuming manager.Events() and seeds the registry from any
// upstreams already Ready.
func (a *Aggregator) Start(ctx context.Context) {
	a.ctx, a.cancel = context.WithCancel(ctx)

	for name, rc := range a.manager.ReadyClients() {
		if err := a.registry.Put(a.ctx, name, rc.Client); err != nil {
			logging.Warn("Aggregator", "initial sync failed for upstream %s: %v", name, err)
		}
	}

	c := newCoalescer(a.coalesceWindow, a.registry.Updates(), a.listChanged)
	a.wg.Add(2)
	go func() {
		defer a.wg.Done()
		c.run(a.ctx.Done())
	}()
	go func() {
		defer a.wg.Done()
		a.consumeEvents()
	}()
}

// Stop halts the aggregator's goroutines. It does not touch the underlying
// upstream.Manager.
func (a *Aggregator) Stop() {
	if a.cancel != nil {
		a.cancel()
	}
	a.wg.Wait()
}

func (a *Aggregator) consumeEvents() {
	for {
		select {
		case <-a.ctx.Done():
			return
		case sc, ok := <-a.manager.Events():
			if !ok {
				return
			}
			a.handleStateChange(sc)
		}
	}
}

func (a *Aggregator) handleStateChange(sc upstream.StateChange) {
	switch sc.State {
	case upstream.Ready:
		ready := a.manager.ReadyClients()
		rc, ok := ready[sc.Upstream]
		if !ok {
			return
		}
		if err := a.registry.Put(a.ctx, sc.Upstream, rc.Client); err != nil {
			logging.Warn("Aggregator", "failed to register upstream %s: %v", sc.Upstream, err)
		}
	case upstream.Cancelled, upstream.Failed:
		a.registry.Remove(sc.Upstream)
	}
}

// RefreshUpstream re-fetches one upstream's capability lists, e.g. in
// response to a tools/list_changed notification forwarded from it.
func (a *Aggregator) RefreshUpstream(ctx context.Context, name string) error {
	return a.registry.Refresh(ctx, name)
}
