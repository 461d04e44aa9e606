package aggregator

import (
	"context"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/upstream"
)

// stubClient is a minimal upstream.Client double for registry tests.
type stubClient struct {
	upstream.Client
	tools     []mcp.Tool
	resources []mcp.Resource
	templates []mcp.ResourceTemplate
	prompts   []mcp.Prompt
}

func (s *stubClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return s.tools, nil }
func (s *stubClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	return s.resources, nil
}
func (s *stubClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return s.templates, nil
}
func (s *stubClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return s.prompts, nil }

func TestRegistry_PutSnapshotsNamespacedCapabilities(t *testing.T) {
	r := NewRegistry()
	client := &stubClient{
		tools:     []mcp.Tool{{Name: "search"}},
		resources: []mcp.Resource{{URI: "file:///a.txt"}, {URI: "notes"}},
		prompts:   []mcp.Prompt{{Name: "summarize"}},
	}

	require.NoError(t, r.Put(context.Background(), "docs", client))

	snap := r.Snapshot()
	require.Len(t, snap.Tools, 1)
	assert.Equal(t, "docs_1mcp_search", snap.Tools[0].Name)

	require.Len(t, snap.Resources, 2)
	var sawScheme, sawPlain bool
	for _, res := range snap.Resources {
		if res.URI == "file:///a.txt?_1mcp_upstream=docs" {
			sawScheme = true
		}
		if res.URI == "docs_1mcp_notes" {
			sawPlain = true
		}
	}
	assert.True(t, sawScheme)
	assert.True(t, sawPlain)

	require.Len(t, snap.Prompts, 1)
	assert.Equal(t, "docs_1mcp_summarize", snap.Prompts[0].Name)
}

func TestRegistry_RemoveDropsUpstream(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Put(context.Background(), "docs", &stubClient{tools: []mcp.Tool{{Name: "x"}}}))
	require.Len(t, r.Snapshot().Tools, 1)

	r.Remove("docs")
	assert.Empty(t, r.Snapshot().Tools)
	_, ok := r.Get("docs")
	assert.False(t, ok)
}

func TestRegistry_UpdatesSignalsOnChange(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Put(context.Background(), "docs", &stubClient{}))

	select {
	case <-r.Updates():
	default:
		t.Fatal("expected an update signal after Put")
	}
}

func TestRegistry_MultipleUpstreamsDoNotCollide(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Put(context.Background(), "a", &stubClient{tools: []mcp.Tool{{Name: "search"}}}))
	require.NoError(t, r.Put(context.Background(), "b", &stubClient{tools: []mcp.Tool{{Name: "search"}}}))

	snap := r.Snapshot()
	names := map[string]bool{}
	for _, tool := range snap.Tools {
		names[tool.Name] = true
	}
	assert.True(t, names["a_1mcp_search"])
	assert.True(t, names["b_1mcp_search"])
}
