package router

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/internal/session"
)

type stubReverseRequester struct {
	lastMethod string
}

func (s *stubReverseRequester) Request(ctx context.Context, method string, params any) (any, error) {
	s.lastMethod = method
	return "ok", nil
}

func TestReverseBus_PicksMostRecentlyTouchedSession(t *testing.T) {
	src := newFakeUpstreamSource()
	r, cleanup := newTestRouter(t, src)
	defer cleanup()

	src.markReady("docs", &fakeClient{})
	time.Sleep(30 * time.Millisecond)
	r.SetUpstreamTags(config.Snapshot{Upstreams: map[string]config.UpstreamDef{"docs": {Name: "docs"}}})

	older := mustSession(t, "a", nil, "")
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.Reverse = &stubReverseRequester{}
	require.NoError(t, r.sessions.Add(older))

	newer := mustSession(t, "b", nil, "")
	newer.Reverse = &stubReverseRequester{}
	require.NoError(t, r.sessions.Add(newer))

	r.reverse.touch("docs", newer)

	result, err := r.HandleReverseRequest(context.Background(), "docs", "sampling/createMessage", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, "sampling/createMessage", newer.Reverse.(*stubReverseRequester).lastMethod)
	assert.Empty(t, older.Reverse.(*stubReverseRequester).lastMethod)
}

func TestReverseBus_FallsBackToOldestAdmittingSession(t *testing.T) {
	src := newFakeUpstreamSource()
	r, cleanup := newTestRouter(t, src)
	defer cleanup()

	src.markReady("docs", &fakeClient{})
	time.Sleep(30 * time.Millisecond)
	r.SetUpstreamTags(config.Snapshot{Upstreams: map[string]config.UpstreamDef{"docs": {Name: "docs"}}})

	older := mustSession(t, "a", nil, "")
	older.CreatedAt = time.Now().Add(-time.Hour)
	older.Reverse = &stubReverseRequester{}
	require.NoError(t, r.sessions.Add(older))

	_, err := r.HandleReverseRequest(context.Background(), "docs", "roots/list", nil)
	require.NoError(t, err)
	assert.Equal(t, "roots/list", older.Reverse.(*stubReverseRequester).lastMethod)
}

func TestReverseBus_NoAdmittingSessionFails(t *testing.T) {
	src := newFakeUpstreamSource()
	r, cleanup := newTestRouter(t, src)
	defer cleanup()

	_, err := r.HandleReverseRequest(context.Background(), "ghost", "roots/list", nil)
	require.Error(t, err)
}
