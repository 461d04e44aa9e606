// Package upstream implements the connection manager: lifecycle, retry, and
// restart of heterogeneous upstream MCP servers, each driven by its own
// asynchronous state machine.
package upstream

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// Backoff tuning, grounded on the values the teacher's hand-rolled retry
// loop used for the same purpose.
const (
	InitialBackoff     = 30 * time.Second
	MaxBackoff         = 30 * time.Minute
	BackoffMultiplier  = 2.0
	MaxConnectRetries  = 6
	RestartGracePeriod = 200 * time.Millisecond
)

// Manager drives every configured upstream through its state machine and
// exposes the current set of Ready clients.
type Manager struct {
	mu      sync.RWMutex
	workers map[string]*worker
	ready   map[string]*ReadyClient
	events  chan StateChange
	nextID  atomic.Uint64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager creates an unstarted Manager.
func NewManager() *Manager {
	return &Manager{
		workers: make(map[string]*worker),
		ready:   make(map[string]*ReadyClient),
		events:  make(chan StateChange, 256),
	}
}

// Start launches a worker for every enabled upstream in snap. It is
// idempotent only in the sense that calling it twice on the same Manager is
// an error; use Reconfigure to add/remove/change upstreams afterward.
func (m *Manager) Start(ctx context.Context, snap config.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.ctx != nil {
		return fmt.Errorf("upstream manager already started")
	}
	m.ctx, m.cancel = context.WithCancel(ctx)

	for name, def := range snap.Upstreams {
		if def.Disabled {
			continue
		}
		m.spawnLocked(def)
		_ = name
	}
	return nil
}

// Stop cancels every worker and waits for them to exit. It is idempotent.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

// ReadyClients returns a snapshot of the currently Ready clients, keyed by
// upstream name.
func (m *Manager) ReadyClients() map[string]*ReadyClient {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*ReadyClient, len(m.ready))
	for k, v := range m.ready {
		out[k] = v
	}
	return out
}

// Snapshot returns every configured upstream's current lifecycle state,
// regardless of readiness. Used by the availability gate and health
// endpoints, which need to distinguish Loading/Failed/AwaitingOAuth from an
// upstream that was never configured.
func (m *Manager) Snapshot() map[string]Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]Status, len(m.workers))
	for name, w := range m.workers {
		out[name] = w.status()
	}
	return out
}

// Events returns the state-change stream. Consumers must keep draining it;
// it is buffered but not unbounded.
func (m *Manager) Events() <-chan StateChange {
	return m.events
}

// OAuthCompleted unsticks an upstream's AwaitingOAuth state, prompting an
// immediate retry of the handshake.
func (m *Manager) OAuthCompleted(name string) {
	m.mu.RLock()
	w, ok := m.workers[name]
	m.mu.RUnlock()
	if !ok {
		return
	}
	select {
	case w.oauthDone <- struct{}{}:
	default:
	}
}

// Reconfigure applies a config diff: added upstreams are spawned, removed
// upstreams are cancelled and drained, changed upstreams are restarted with
// their new definition.
func (m *Manager) Reconfigure(diff config.Diff) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, def := range diff.Added {
		if def.Disabled {
			continue
		}
		m.spawnLocked(def)
	}
	for _, name := range diff.Removed {
		m.cancelLocked(name)
	}
	for _, def := range diff.Changed {
		m.cancelLocked(def.Name)
		if !def.Disabled {
			m.spawnLocked(def)
		}
	}
}

func (m *Manager) spawnLocked(def config.UpstreamDef) {
	ctx, cancel := context.WithCancel(m.ctx)
	w := &worker{
		def:       def,
		manager:   m,
		ctx:       ctx,
		cancel:    cancel,
		oauthDone: make(chan struct{}, 1),
		state:     Pending,
	}
	m.workers[def.Name] = w
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		w.run()
	}()
}

func (m *Manager) cancelLocked(name string) {
	w, ok := m.workers[name]
	if !ok {
		return
	}
	w.cancel()
	delete(m.workers, name)
	delete(m.ready, name)
}

func (m *Manager) setReady(name string, rc *ReadyClient) {
	m.mu.Lock()
	m.ready[name] = rc
	m.mu.Unlock()
}

func (m *Manager) clearReady(name string) {
	m.mu.Lock()
	delete(m.ready, name)
	m.mu.Unlock()
}

func (m *Manager) nextClientID() uint64 {
	return m.nextID.Add(1)
}

func (m *Manager) emit(sc StateChange) {
	sc.Timestamp = time.Now()
	select {
	case m.events <- sc:
	default:
		logging.Warn("UpstreamManager", "event channel full, dropping state change for %s", sc.Upstream)
	}
}

// newExponentialBackoff builds the connect-retry backoff policy using the
// constants above.
func newExponentialBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = InitialBackoff
	b.MaxInterval = MaxBackoff
	b.Multiplier = BackoffMultiplier
	b.RandomizationFactor = 0.2
	return b
}
