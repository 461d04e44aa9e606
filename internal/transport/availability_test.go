package transport

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/aggregator"
	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/internal/router"
	"github.com/giantswarm/1mcp/internal/session"
	"github.com/giantswarm/1mcp/internal/upstream"
)

func snapshotWith(names ...string) config.Snapshot {
	upstreams := make(map[string]config.UpstreamDef, len(names))
	for _, n := range names {
		upstreams[n] = config.UpstreamDef{Name: n}
	}
	return config.Snapshot{Upstreams: upstreams}
}

type fakeUpstreamSource struct{}

func (fakeUpstreamSource) ReadyClients() map[string]*upstream.ReadyClient { return nil }
func (fakeUpstreamSource) Events() <-chan upstream.StateChange {
	return make(chan upstream.StateChange)
}

func newTestGateRouter(t *testing.T) (*router.Router, *session.Registry) {
	t.Helper()
	agg := aggregator.NewAggregator(fakeUpstreamSource{}, time.Millisecond)
	sessions := session.NewRegistry(time.Hour, 100)
	return router.New(agg, sessions), sessions
}

func mustGateSession(t *testing.T, sessions *session.Registry) *session.InboundSession {
	t.Helper()
	sess, err := session.New("client", nil, "", false)
	require.NoError(t, err)
	sessions.Add(sess)
	return sess
}

func TestAvailabilityGate_NoSessionPassesThrough(t *testing.T) {
	rt, _ := newTestGateRouter(t)
	gate := NewAvailabilityGate(rt, func() map[string]upstream.Status { return nil })

	called := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
}

func TestAvailabilityGate_AllReadyPassesThrough(t *testing.T) {
	rt, sessions := newTestGateRouter(t)
	sess := mustGateSession(t, sessions)
	rt.SetUpstreamTags(snapshotWith("alpha"))

	gate := NewAvailabilityGate(rt, func() map[string]upstream.Status {
		return map[string]upstream.Status{"alpha": {State: upstream.Ready}}
	})

	called := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
}

func TestAvailabilityGate_NoneReadyNoneLoadingReturns503(t *testing.T) {
	rt, sessions := newTestGateRouter(t)
	sess := mustGateSession(t, sessions)
	rt.SetUpstreamTags(snapshotWith("alpha"))

	gate := NewAvailabilityGate(rt, func() map[string]upstream.Status {
		return map[string]upstream.Status{"alpha": {State: upstream.Failed}}
	})

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAvailabilityGate_NoneReadySomeLoadingReturns202(t *testing.T) {
	rt, sessions := newTestGateRouter(t)
	sess := mustGateSession(t, sessions)
	rt.SetUpstreamTags(snapshotWith("alpha"))

	gate := NewAvailabilityGate(rt, func() map[string]upstream.Status {
		return map[string]upstream.Status{"alpha": {State: upstream.Loading}}
	})

	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
}

func TestAvailabilityGate_PartialReadyAnnotatesHeaders(t *testing.T) {
	rt, sessions := newTestGateRouter(t)
	sess := mustGateSession(t, sessions)
	rt.SetUpstreamTags(snapshotWith("alpha", "beta"))

	gate := NewAvailabilityGate(rt, func() map[string]upstream.Status {
		return map[string]upstream.Status{
			"alpha": {State: upstream.Ready},
			"beta":  {State: upstream.Loading},
		}
	})

	called := false
	handler := gate.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(WithSession(req.Context(), sess))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.True(t, called)
	require.Equal(t, "true", rec.Header().Get("X-MCP-Partial-Availability"))
	require.Equal(t, "1", rec.Header().Get("X-MCP-Available-Count"))
	require.Equal(t, "2", rec.Header().Get("X-MCP-Total-Count"))
}

func TestSanitizeAuthURL_RedactsQuery(t *testing.T) {
	got := sanitizeAuthURL("https://idp.example.com/authorize?client_id=abc&token=secretXYZ")
	require.Contains(t, got, "https://idp.example.com")
	require.NotContains(t, got, "secretXYZ")
}
