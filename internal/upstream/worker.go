package upstream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// worker owns one upstream's transport, retry timer, and restart loop. It
// is the sole mutator of its own state; readers of Manager.ReadyClients get
// a snapshot copy.
type worker struct {
	def     config.UpstreamDef
	manager *Manager
	ctx     context.Context
	cancel  context.CancelFunc

	oauthDone chan struct{}

	mu         sync.Mutex
	state      State
	retryCount int
	lastError  error
	authURL    string
	client     Client
	startedAt  time.Time
}

// status returns a point-in-time snapshot of this worker's lifecycle state.
func (w *worker) status() Status {
	w.mu.Lock()
	defer w.mu.Unlock()
	return Status{
		State:            w.state,
		RetryCount:       w.retryCount,
		LastError:        w.lastError,
		AuthorizationURL: w.authURL,
	}
}

func (w *worker) setState(s State, err error, authURL string) {
	w.mu.Lock()
	w.state = s
	w.lastError = err
	if authURL != "" {
		w.authURL = authURL
	}
	retryCount := w.retryCount
	w.mu.Unlock()

	w.manager.emit(StateChange{
		Upstream:         w.def.Name,
		State:            s,
		LastError:        err,
		RetryCount:       retryCount,
		AuthorizationURL: authURL,
		Duration:         time.Since(w.startedAt),
	})
}

// run drives the full Pending -> Loading -> {Ready, AwaitingOAuth, Failed}
// lifecycle, then, once Ready, watches for unexpected transport close and
// applies the restart policy independent of the connect-retry budget.
func (w *worker) run() {
	w.startedAt = time.Now()
	w.setState(Pending, nil, "")

	restartAttempt := 0
	for {
		if w.ctx.Err() != nil {
			w.setState(Cancelled, nil, "")
			return
		}

		rc, err := w.connectWithRetry()
		if err != nil {
			if w.ctx.Err() != nil {
				w.setState(Cancelled, nil, "")
				return
			}
			var authErr *AuthRequiredError
			if errors.As(err, &authErr) {
				w.setState(AwaitingOAuth, err, authErr.AuthorizationURL)
				if !w.waitForOAuthOrCancel() {
					w.setState(Cancelled, nil, "")
					return
				}
				continue // retry the handshake now that OAuth presumably completed
			}
			w.setState(Failed, err, "")
			if !w.waitForReconfigureOrCancel() {
				return
			}
			continue
		}

		w.manager.setReady(w.def.Name, rc)
		w.setState(Ready, nil, "")

		closed := w.waitForClose(rc)
		w.manager.clearReady(w.def.Name)
		if w.ctx.Err() != nil {
			_ = rc.Client.Close()
			w.setState(Cancelled, nil, "")
			return
		}
		if !closed {
			continue
		}

		policy := w.def.RestartPolicyOf()
		if !policy.OnExit {
			w.setState(Failed, errTransportClosed, "")
			if !w.waitForReconfigureOrCancel() {
				return
			}
			continue
		}
		if policy.MaxRestarts > 0 && restartAttempt >= policy.MaxRestarts {
			w.setState(Failed, errRestartBudgetExhausted, "")
			if !w.waitForReconfigureOrCancel() {
				return
			}
			continue
		}
		restartAttempt++
		w.setState(Loading, nil, "")
		delay := time.Duration(policy.DelayMs) * time.Millisecond
		if delay <= 0 {
			delay = RestartGracePeriod
		}
		select {
		case <-time.After(delay):
		case <-w.ctx.Done():
			w.setState(Cancelled, nil, "")
			return
		}
	}
}

var (
	errTransportClosed        = errors.New("upstream transport closed unexpectedly")
	errRestartBudgetExhausted = errors.New("upstream exhausted its restart budget")
)

// connectWithRetry performs the initial connect with exponential backoff up
// to MaxConnectRetries attempts. AuthRequiredError is returned immediately
// without consuming further retries; the caller handles the AwaitingOAuth
// transition.
func (w *worker) connectWithRetry() (*ReadyClient, error) {
	b := newExponentialBackoff()
	var lastErr error

	for attempt := 0; attempt < MaxConnectRetries; attempt++ {
		w.setState(Loading, nil, "")

		client, err := newClient(w.def)
		if err != nil {
			return nil, err // malformed def, not retryable
		}

		ctx, cancel := context.WithTimeout(w.ctx, w.def.Timeout())
		result, err := client.Initialize(ctx)
		cancel()

		if err == nil {
			if result.ServerInfo.Name == ProxyName {
				_ = client.Close()
				return nil, &CircularDependencyError{Upstream: w.def.Name}
			}
			return &ReadyClient{
				Upstream:        w.def.Name,
				ID:              w.manager.nextClientID(),
				Client:          client,
				Capabilities:    result.Capabilities,
				ProtocolVersion: result.ProtocolVersion,
				ServerInfo:      result.ServerInfo,
				ConnectedAt:     time.Now(),
			}, nil
		}

		var authErr *AuthRequiredError
		if errors.As(err, &authErr) {
			return nil, err
		}

		lastErr = err
		w.mu.Lock()
		w.retryCount = attempt + 1
		w.mu.Unlock()

		wait := b.NextBackOff()
		if wait == backoffDone {
			break
		}
		logging.Warn("UpstreamWorker", "connect attempt %d for %s failed: %v; retrying in %s", attempt+1, w.def.Name, err, wait)

		select {
		case <-time.After(wait):
		case <-w.ctx.Done():
			return nil, w.ctx.Err()
		}
	}

	return nil, lastErr
}

// backoffDone mirrors backoff.Stop so this file doesn't need to import the
// library just to compare against it in connectWithRetry's loop guard.
const backoffDone = -1

// waitForOAuthOrCancel blocks until an OAuthCompleted signal or cancellation.
// Returns false if cancelled.
func (w *worker) waitForOAuthOrCancel() bool {
	select {
	case <-w.oauthDone:
		return true
	case <-w.ctx.Done():
		return false
	}
}

// waitForReconfigureOrCancel blocks a Failed worker forever; Failed ->
// Loading only happens via Reconfigure spawning a fresh worker for the same
// name (the old one is cancelled first), so this just waits for that
// cancellation.
func (w *worker) waitForReconfigureOrCancel() bool {
	<-w.ctx.Done()
	return false
}

// healthCheckInterval is how often a Ready worker pings its upstream to
// detect a silently closed transport. Tests shrink it to keep the restart
// state machine fast to exercise.
var healthCheckInterval = 15 * time.Second

// waitForClose blocks until the upstream's transport is observed closed
// (via a failing ping) or the worker is cancelled. Returns true if the
// transport closed (as opposed to cancellation).
func (w *worker) waitForClose(rc *ReadyClient) bool {
	ticker := time.NewTicker(healthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-w.ctx.Done():
			return false
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(w.ctx, 5*time.Second)
			err := rc.Client.Ping(ctx)
			cancel()
			if err != nil {
				logging.Warn("UpstreamWorker", "ping failed for %s, treating transport as closed: %v", w.def.Name, err)
				_ = rc.Client.Close()
				return true
			}
		}
	}
}
