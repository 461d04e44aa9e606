package upstream

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/1mcp/internal/config"
)

// fakeClient is the in-process double used to drive worker state transitions
// without a real subprocess or socket.
type fakeClient struct {
	mu sync.Mutex

	serverName string
	initErr    error
	pingErr    error
	closed     bool
	initCalls  int
}

func (f *fakeClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	if f.initErr != nil {
		return nil, f.initErr
	}
	result := &mcp.InitializeResult{
		ProtocolVersion: ProtocolVersion,
		ServerInfo:      mcp.Implementation{Name: f.serverName, Version: "0.0.1"},
	}
	return result, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

func (f *fakeClient) Ping(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

func (f *fakeClient) ListTools(ctx context.Context) ([]mcp.Tool, error) { return nil, nil }
func (f *fakeClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	return nil, nil
}
func (f *fakeClient) ListResources(ctx context.Context) ([]mcp.Resource, error) { return nil, nil }
func (f *fakeClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	return nil, nil
}
func (f *fakeClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	return nil, nil
}
func (f *fakeClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) { return nil, nil }
func (f *fakeClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	return nil, nil
}
func (f *fakeClient) Notify(ctx context.Context, method string, params map[string]any) error {
	return nil
}

func (f *fakeClient) isClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// withFakeClient swaps the package-level client factory for the duration of
// a test and restores it afterward.
func withFakeClient(t *testing.T, build func(def config.UpstreamDef) (Client, error)) {
	t.Helper()
	original := newClient
	newClient = build
	t.Cleanup(func() { newClient = original })
}

func waitForState(t *testing.T, events <-chan StateChange, upstream string, want State, within time.Duration) StateChange {
	t.Helper()
	deadline := time.After(within)
	for {
		select {
		case sc := <-events:
			if sc.Upstream == upstream && sc.State == want {
				return sc
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s to reach state %s", upstream, want)
		}
	}
}

func testDef(name string) config.UpstreamDef {
	return config.UpstreamDef{
		Name:           name,
		Kind:           config.KindStdio,
		Command:        "unused",
		TimeoutSeconds: 1,
	}
}

func TestManager_ReadyTransition(t *testing.T) {
	fc := &fakeClient{serverName: "some-upstream"}
	withFakeClient(t, func(def config.UpstreamDef) (Client, error) { return fc, nil })

	m := NewManager()
	require.NoError(t, m.Start(context.Background(), config.Snapshot{
		Upstreams: map[string]config.UpstreamDef{"a": testDef("a")},
	}))
	defer m.Stop()

	waitForState(t, m.Events(), "a", Ready, 2*time.Second)

	ready := m.ReadyClients()
	require.Contains(t, ready, "a")
	assert.Equal(t, "a", ready["a"].Upstream)
}

func TestManager_CircularDependencyRejected(t *testing.T) {
	fc := &fakeClient{serverName: ProxyName}
	withFakeClient(t, func(def config.UpstreamDef) (Client, error) { return fc, nil })

	m := NewManager()
	require.NoError(t, m.Start(context.Background(), config.Snapshot{
		Upstreams: map[string]config.UpstreamDef{"loop": testDef("loop")},
	}))
	defer m.Stop()

	sc := waitForState(t, m.Events(), "loop", Failed, 2*time.Second)
	var circErr *CircularDependencyError
	assert.ErrorAs(t, sc.LastError, &circErr)
	assert.Empty(t, m.ReadyClients())
}

func TestManager_AwaitingOAuthUnsticksOnCompletion(t *testing.T) {
	authErr := &AuthRequiredError{Upstream: "needs-auth", AuthorizationURL: "https://auth.example/consent"}
	attempt := 0
	withFakeClient(t, func(def config.UpstreamDef) (Client, error) {
		attempt++
		if attempt == 1 {
			return &fakeClient{initErr: authErr}, nil
		}
		return &fakeClient{serverName: "needs-auth-server"}, nil
	})

	m := NewManager()
	require.NoError(t, m.Start(context.Background(), config.Snapshot{
		Upstreams: map[string]config.UpstreamDef{"needs-auth": testDef("needs-auth")},
	}))
	defer m.Stop()

	sc := waitForState(t, m.Events(), "needs-auth", AwaitingOAuth, 2*time.Second)
	assert.Equal(t, authErr.AuthorizationURL, sc.AuthorizationURL)

	m.OAuthCompleted("needs-auth")
	waitForState(t, m.Events(), "needs-auth", Ready, 2*time.Second)
}

func TestManager_RestartOnExitBudgetExhausted(t *testing.T) {
	originalInterval := healthCheckInterval
	healthCheckInterval = 20 * time.Millisecond
	t.Cleanup(func() { healthCheckInterval = originalInterval })

	closes := 0
	var mu sync.Mutex
	withFakeClient(t, func(def config.UpstreamDef) (Client, error) {
		mu.Lock()
		defer mu.Unlock()
		closes++
		return &fakeClient{serverName: fmt.Sprintf("server-%d", closes), pingErr: fmt.Errorf("connection reset")}, nil
	})

	def := testDef("flaky")
	def.RestartOnExit = true
	def.MaxRestarts = 2

	m := NewManager()
	require.NoError(t, m.Start(context.Background(), config.Snapshot{
		Upstreams: map[string]config.UpstreamDef{"flaky": def},
	}))
	defer m.Stop()

	waitForState(t, m.Events(), "flaky", Failed, 5*time.Second)

	mu.Lock()
	defer mu.Unlock()
	assert.GreaterOrEqual(t, closes, 3) // initial connect + 2 restarts
}

func TestManager_ReconfigureAddRemoveChange(t *testing.T) {
	withFakeClient(t, func(def config.UpstreamDef) (Client, error) {
		return &fakeClient{serverName: "server-" + def.Name}, nil
	})

	m := NewManager()
	require.NoError(t, m.Start(context.Background(), config.Snapshot{
		Upstreams: map[string]config.UpstreamDef{"keep": testDef("keep")},
	}))
	defer m.Stop()

	waitForState(t, m.Events(), "keep", Ready, 2*time.Second)

	m.Reconfigure(config.Diff{
		Added: []config.UpstreamDef{testDef("added")},
	})
	waitForState(t, m.Events(), "added", Ready, 2*time.Second)

	m.Reconfigure(config.Diff{
		Removed: []string{"keep"},
	})
	time.Sleep(50 * time.Millisecond)
	ready := m.ReadyClients()
	assert.NotContains(t, ready, "keep")
	assert.Contains(t, ready, "added")
}
