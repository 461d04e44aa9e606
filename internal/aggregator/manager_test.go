package aggregator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/upstream"
)

// fakeSource is an in-process upstreamSource double driven directly by
// tests, bypassing the real connection manager's transports entirely.
type fakeSource struct {
	mu     sync.Mutex
	ready  map[string]*upstream.ReadyClient
	events chan upstream.StateChange
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		ready:  make(map[string]*upstream.ReadyClient),
		events: make(chan upstream.StateChange, 16),
	}
}

func (f *fakeSource) ReadyClients() map[string]*upstream.ReadyClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]*upstream.ReadyClient, len(f.ready))
	for k, v := range f.ready {
		out[k] = v
	}
	return out
}

func (f *fakeSource) Events() <-chan upstream.StateChange { return f.events }

func (f *fakeSource) markReady(name string, client *stubClient) {
	f.mu.Lock()
	f.ready[name] = &upstream.ReadyClient{Upstream: name, Client: client}
	f.mu.Unlock()
	f.events <- upstream.StateChange{Upstream: name, State: upstream.Ready}
}

func TestAggregator_SeedsFromAlreadyReadyUpstreams(t *testing.T) {
	src := newFakeSource()
	src.ready["docs"] = &upstream.ReadyClient{Upstream: "docs", Client: &stubClient{tools: []mcp.Tool{{Name: "search"}}}}

	agg := NewAggregator(src, 10*time.Millisecond)
	agg.Start(context.Background())
	defer agg.Stop()

	require.Eventually(t, func() bool {
		return len(agg.Registry().Snapshot().Tools) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestAggregator_RegistersOnReadyEvent(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(src, 10*time.Millisecond)
	agg.Start(context.Background())
	defer agg.Stop()

	src.markReady("docs", &stubClient{tools: []mcp.Tool{{Name: "search"}}})

	require.Eventually(t, func() bool {
		_, ok := agg.Registry().Get("docs")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestAggregator_DeregistersOnFailedOrCancelled(t *testing.T) {
	src := newFakeSource()
	src.markReady("docs", &stubClient{})

	agg := NewAggregator(src, 10*time.Millisecond)
	agg.Start(context.Background())
	defer agg.Stop()

	require.Eventually(t, func() bool {
		_, ok := agg.Registry().Get("docs")
		return ok
	}, time.Second, 5*time.Millisecond)

	src.events <- upstream.StateChange{Upstream: "docs", State: upstream.Failed}

	require.Eventually(t, func() bool {
		_, ok := agg.Registry().Get("docs")
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestAggregator_CoalescesBurstOfUpdates(t *testing.T) {
	src := newFakeSource()
	agg := NewAggregator(src, 50*time.Millisecond)
	agg.Start(context.Background())
	defer agg.Stop()

	for i := 0; i < 5; i++ {
		src.markReady(string(rune('a'+i)), &stubClient{})
	}

	select {
	case <-agg.ListChanged():
	case <-time.After(time.Second):
		t.Fatal("expected a coalesced list_changed signal")
	}

	select {
	case <-agg.ListChanged():
		t.Fatal("expected only one coalesced signal for the burst")
	case <-time.After(100 * time.Millisecond):
	}
}
