package transport

import (
	"context"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/aggregator"
)

func TestSessionToolFilter_RestrictsToAdmittedUpstream(t *testing.T) {
	rt, sessions := newTestGateRouter(t)
	sess := mustGateSession(t, sessions)
	rt.SetUpstreamTags(snapshotWith("alpha", "beta"))

	filter := sessionToolFilter(rt)
	tools := []mcp.Tool{
		{Name: aggregator.EncodeName("alpha", "do-thing")},
		{Name: aggregator.EncodeName("beta", "do-other")},
		{Name: "not-namespaced"},
	}

	ctx := WithSession(context.Background(), sess)
	got := filter(ctx, tools)

	names := make([]string, 0, len(got))
	for _, tool := range got {
		names = append(names, tool.Name)
	}
	require.ElementsMatch(t, names, []string{
		aggregator.EncodeName("alpha", "do-thing"),
		aggregator.EncodeName("beta", "do-other"),
	})
}

func TestSessionToolFilter_NoSessionPassesThrough(t *testing.T) {
	rt, _ := newTestGateRouter(t)
	filter := sessionToolFilter(rt)
	tools := []mcp.Tool{{Name: "x"}}
	got := filter(context.Background(), tools)
	require.Equal(t, tools, got)
}

func TestCapabilitySyncer_ResyncIsIdempotentOnEmptyRegistry(t *testing.T) {
	rt, _ := newTestGateRouter(t)
	agg := aggregator.NewAggregator(fakeUpstreamSource{}, time.Millisecond)
	srv, syncer := BuildMCPServer(rt, agg)
	require.NotNil(t, srv)

	// A second resync over an unchanged, empty registry should not panic
	// or re-register anything.
	syncer.resync()
}
