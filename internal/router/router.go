// Package router implements the aggregating protocol router: it translates
// each inbound MCP request into zero-or-more upstream requests, merges
// results, and honors the inbound session's tag filter and OAuth scope.
//
// Capability listings are served from the aggregator's cached, namespaced
// Registry rather than re-fetched from upstreams on every call — the
// aggregator already keeps that cache in sync with the Ready upstream set,
// so a live fan-out here would only duplicate work the connection manager's
// Put/Refresh cycle already does. tools/call, resources/read, and
// prompts/get still forward live, one request to exactly one upstream.
package router

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"golang.org/x/sync/errgroup"

	"github.com/giantswarm/1mcp/internal/aggregator"
	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/internal/session"
	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// ForwardOverhead is subtracted from an inbound request's deadline before
// it is propagated to the upstream call, leaving headroom for the response
// to travel back through the router and inbound transport.
const ForwardOverhead = 50 * time.Millisecond

// ServerName and ServerVersion are this proxy's own advertised identity,
// returned from initialize and used by the connection manager's
// circular-dependency guard (upstream.ProxyName).
const ServerName = upstream.ProxyName
const ServerVersion = "1.0.0"

// Router dispatches inbound MCP requests against the aggregator's capability
// registry, filtered per session, and forwards notifications in both
// directions.
type Router struct {
	registry   *aggregator.Registry
	aggregator *aggregator.Aggregator
	sessions   *session.Registry

	tagsMu sync.RWMutex
	tags   map[string]map[string]struct{}

	reverse *reverseBus

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New builds a Router over an already-constructed Aggregator and session
// Registry.
func New(agg *aggregator.Aggregator, sessions *session.Registry) *Router {
	return &Router{
		registry:   agg.Registry(),
		aggregator: agg,
		sessions:   sessions,
		tags:       make(map[string]map[string]struct{}),
		reverse:    newReverseBus(),
	}
}

// SetUpstreamTags installs the tag set every upstream in snap carries, used
// for session admission decisions, and invalidates every session's
// admission cache since the upstream set or its tags may have changed.
func (r *Router) SetUpstreamTags(snap config.Snapshot) {
	tags := make(map[string]map[string]struct{}, len(snap.Upstreams))
	for name, def := range snap.Upstreams {
		tags[name] = def.TagSet()
	}
	r.tagsMu.Lock()
	r.tags = tags
	r.tagsMu.Unlock()
	r.sessions.InvalidateAll()
}

func (r *Router) tagsOf(upstreamName string) map[string]struct{} {
	r.tagsMu.RLock()
	defer r.tagsMu.RUnlock()
	return r.tags[upstreamName]
}

func (r *Router) admits(sess *session.InboundSession, upstreamName string) bool {
	return sess.Admits(upstreamName, r.tagsOf(upstreamName))
}

// Start launches the background bridge from the aggregator's coalesced
// list_changed signal to every inbound session's admission cache and
// outbound notification.
func (r *Router) Start(ctx context.Context) {
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.bridgeListChanged()
	}()
}

// Stop halts the router's background goroutines.
func (r *Router) Stop() {
	if r.cancel != nil {
		r.cancel()
	}
	r.wg.Wait()
}

// Initialize answers with the proxy's own identity and a fixed capability
// set (list-changed notifications for tools, resources, and prompts; no
// resource subscriptions). The proxy advertises these unconditionally
// rather than computing them from which upstreams are currently Ready,
// since list-changed notifications are a property of this aggregation
// layer itself (the capability union served by the aggregator can change
// the instant any upstream's state changes) and not of any one upstream's
// declared support.
func (r *Router) Initialize() *mcp.InitializeResult {
	return &mcp.InitializeResult{
		ProtocolVersion: upstream.ProtocolVersion,
		ServerInfo:      mcp.Implementation{Name: ServerName, Version: ServerVersion},
		Capabilities: mcp.ServerCapabilities{
			Tools:     &mcp.ToolsCapability{ListChanged: true},
			Resources: &mcp.ResourcesCapability{ListChanged: true, Subscribe: false},
			Prompts:   &mcp.PromptsCapability{ListChanged: true},
		},
	}
}

// Ping fans best-effort pings out to every Ready, session-admitted
// upstream. Individual failures are logged and never surfaced; the method
// unconditionally returns success, per the ping-is-also-a-health-probe
// rule.
func (r *Router) Ping(ctx context.Context, sess *session.InboundSession) {
	names := r.registry.NamesSorted()
	g, gctx := errgroup.WithContext(ctx)
	for _, name := range names {
		name := name
		if !r.admits(sess, name) {
			continue
		}
		state, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		g.Go(func() error {
			pctx, cancel := context.WithTimeout(gctx, 5*time.Second)
			defer cancel()
			if err := state.Client.Ping(pctx); err != nil {
				logging.Debug("Router", "ping to upstream %s failed: %v", name, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// ListTools returns the session-admitted, namespace-qualified tool set,
// paginated if the session opted in.
func (r *Router) ListTools(ctx context.Context, sess *session.InboundSession, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	caps := r.registry.SnapshotAdmitted(func(name string) bool { return r.admits(sess, name) })
	if !sess.EnablePagination {
		return &mcp.ListToolsResult{Tools: caps.Tools}, nil
	}
	page, next, err := paginate(caps.Tools, toolUpstream, string(req.Params.Cursor), DefaultPageSize, r.isReady)
	if err != nil {
		return nil, err
	}
	return &mcp.ListToolsResult{
		Tools:           page,
		PaginatedResult: mcp.PaginatedResult{NextCursor: mcp.Cursor(next)},
	}, nil
}

// ListResources returns the session-admitted, namespace-qualified resource
// set, paginated if the session opted in.
func (r *Router) ListResources(ctx context.Context, sess *session.InboundSession, req mcp.ListResourcesRequest) (*mcp.ListResourcesResult, error) {
	caps := r.registry.SnapshotAdmitted(func(name string) bool { return r.admits(sess, name) })
	if !sess.EnablePagination {
		return &mcp.ListResourcesResult{Resources: caps.Resources}, nil
	}
	page, next, err := paginate(caps.Resources, resourceUpstream, string(req.Params.Cursor), DefaultPageSize, r.isReady)
	if err != nil {
		return nil, err
	}
	return &mcp.ListResourcesResult{
		Resources:       page,
		PaginatedResult: mcp.PaginatedResult{NextCursor: mcp.Cursor(next)},
	}, nil
}

// ListResourceTemplates returns the session-admitted, namespace-qualified
// resource template set, paginated if the session opted in.
func (r *Router) ListResourceTemplates(ctx context.Context, sess *session.InboundSession, req mcp.ListResourceTemplatesRequest) (*mcp.ListResourceTemplatesResult, error) {
	caps := r.registry.SnapshotAdmitted(func(name string) bool { return r.admits(sess, name) })
	if !sess.EnablePagination {
		return &mcp.ListResourceTemplatesResult{ResourceTemplates: caps.Templates}, nil
	}
	page, next, err := paginate(caps.Templates, templateUpstream, string(req.Params.Cursor), DefaultPageSize, r.isReady)
	if err != nil {
		return nil, err
	}
	return &mcp.ListResourceTemplatesResult{
		ResourceTemplates: page,
		PaginatedResult:   mcp.PaginatedResult{NextCursor: mcp.Cursor(next)},
	}, nil
}

// ListPrompts returns the session-admitted, namespace-qualified prompt set,
// paginated if the session opted in.
func (r *Router) ListPrompts(ctx context.Context, sess *session.InboundSession, req mcp.ListPromptsRequest) (*mcp.ListPromptsResult, error) {
	caps := r.registry.SnapshotAdmitted(func(name string) bool { return r.admits(sess, name) })
	if !sess.EnablePagination {
		return &mcp.ListPromptsResult{Prompts: caps.Prompts}, nil
	}
	page, next, err := paginate(caps.Prompts, promptUpstream, string(req.Params.Cursor), DefaultPageSize, r.isReady)
	if err != nil {
		return nil, err
	}
	return &mcp.ListPromptsResult{
		Prompts:         page,
		PaginatedResult: mcp.PaginatedResult{NextCursor: mcp.Cursor(next)},
	}, nil
}

// AdmittedNames returns every configured upstream name this session's
// filter and scope admit, in ascending order. Used by the inbound HTTP
// transport's availability gate, which needs to reason about non-Ready
// upstreams (Loading, Failed, AwaitingOAuth) that never appear in the
// aggregator's Ready-only registry.
func (r *Router) AdmittedNames(sess *session.InboundSession) []string {
	r.tagsMu.RLock()
	all := make([]string, 0, len(r.tags))
	for name := range r.tags {
		all = append(all, name)
	}
	r.tagsMu.RUnlock()

	admitted := all[:0]
	for _, name := range all {
		if r.admits(sess, name) {
			admitted = append(admitted, name)
		}
	}
	sort.Strings(admitted)
	return admitted
}

// AllTags returns the union of every tag carried by any configured upstream,
// used by the authorization core to reject scope requests naming a tag that
// admits nothing.
func (r *Router) AllTags() map[string]struct{} {
	r.tagsMu.RLock()
	defer r.tagsMu.RUnlock()
	union := make(map[string]struct{})
	for _, tags := range r.tags {
		for tag := range tags {
			union[tag] = struct{}{}
		}
	}
	return union
}

func (r *Router) isReady(upstreamName string) bool {
	_, ok := r.registry.Get(upstreamName)
	return ok
}

func toolUpstream(t mcp.Tool) string     { name, _, _ := aggregator.DecodeName(t.Name); return name }
func promptUpstream(p mcp.Prompt) string { name, _, _ := aggregator.DecodeName(p.Name); return name }
func templateUpstream(t mcp.ResourceTemplate) string {
	name, _, _ := aggregator.DecodeName(t.Name)
	return name
}
func resourceUpstream(res mcp.Resource) string {
	name, _, _ := aggregator.DecodeResourceURI(res.URI)
	return name
}

// CallTool de-namespaces req.Params.Name to {upstream, originalName} and
// forwards the call to that single upstream.
func (r *Router) CallTool(ctx context.Context, sess *session.InboundSession, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	upstreamName, original, ok := aggregator.DecodeName(req.Params.Name)
	if !ok {
		return nil, invalidParams("malformed tool name %q", req.Params.Name)
	}
	state, err := r.resolve(sess, upstreamName)
	if err != nil {
		return nil, err
	}
	r.reverse.touch(upstreamName, sess)

	fctx, cancel := withForwardDeadline(ctx)
	defer cancel()

	args, _ := req.Params.Arguments.(map[string]any)
	result, err := state.Client.CallTool(fctx, original, args)
	return result, classifyForwardError(fctx, err)
}

// ReadResource de-namespaces req.Params.URI and forwards the read to the
// owning upstream.
func (r *Router) ReadResource(ctx context.Context, sess *session.InboundSession, req mcp.ReadResourceRequest) (*mcp.ReadResourceResult, error) {
	upstreamName, original, ok := aggregator.DecodeResourceURI(req.Params.URI)
	if !ok {
		return nil, invalidParams("malformed resource uri %q", req.Params.URI)
	}
	state, err := r.resolve(sess, upstreamName)
	if err != nil {
		return nil, err
	}
	r.reverse.touch(upstreamName, sess)

	fctx, cancel := withForwardDeadline(ctx)
	defer cancel()

	result, err := state.Client.ReadResource(fctx, original)
	return result, classifyForwardError(fctx, err)
}

// GetPrompt de-namespaces req.Params.Name and forwards the request to the
// owning upstream.
func (r *Router) GetPrompt(ctx context.Context, sess *session.InboundSession, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
	upstreamName, original, ok := aggregator.DecodeName(req.Params.Name)
	if !ok {
		return nil, invalidParams("malformed prompt name %q", req.Params.Name)
	}
	state, err := r.resolve(sess, upstreamName)
	if err != nil {
		return nil, err
	}
	r.reverse.touch(upstreamName, sess)

	fctx, cancel := withForwardDeadline(ctx)
	defer cancel()

	result, err := state.Client.GetPrompt(fctx, original, req.Params.Arguments)
	return result, classifyForwardError(fctx, err)
}

// resolve looks up the single Ready, session-admitted upstream a namespaced
// call names, failing with InvalidParams otherwise (spec 4.2: "If the
// upstream is not Ready (or not admitted by filter), fail with
// InvalidParams").
func (r *Router) resolve(sess *session.InboundSession, upstreamName string) (*aggregator.UpstreamState, error) {
	if !r.admits(sess, upstreamName) {
		return nil, invalidParams("upstream %q is not available to this session", upstreamName)
	}
	state, ok := r.registry.Get(upstreamName)
	if !ok {
		return nil, invalidParams("upstream %q is not available to this session", upstreamName)
	}
	return state, nil
}

func withForwardDeadline(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline, ok := ctx.Deadline()
	if !ok {
		return context.WithCancel(ctx)
	}
	return context.WithDeadline(ctx, deadline.Add(-ForwardOverhead))
}

func classifyForwardError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &RequestCancelledError{Reason: "upstream deadline exceeded"}
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return &RequestCancelledError{Reason: "request cancelled"}
	}
	return fmt.Errorf("upstream call failed: %w", err)
}

// bridgeListChanged invalidates every inbound session's admission cache
// whenever the aggregator's coalesced capability-change signal fires, so
// the next request each session makes re-evaluates admission against the
// current upstream set rather than a stale cached verdict.
//
// Actual client notification of the change is not done here: no inbound
// transport attaches a session.ReverseRequester (see InboundSession.Reverse
// doc comment), so there is no per-session channel to push a scoped
// notifications/tools/list_changed with params.server on. The only client
// notification that fires in practice is internal/transport's
// capabilitySyncer, which calls the mcp-go server's AddTools/DeleteTools
// (etc.) and lets mcp-go broadcast its own unscoped list_changed to every
// connected client. That broadcast carries no capability data, only a
// signal to refetch, and the refetch itself (tools/list) is already
// filtered per session by sessionToolFilter — so an unadmitted session is
// told "something changed" but never learns what, which falls short of the
// per-session, {server: U}-scoped push ideal but does not leak anything.
func (r *Router) bridgeListChanged() {
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-r.aggregator.ListChanged():
			r.sessions.InvalidateAll()
		}
	}
}

// ForwardClientNotification relays a client-originated notification
// (initialized, roots/list_changed, cancelled, progress) to every upstream
// the session admits, with params augmented by client identity. Failures
// are logged and dropped: notifications never raise.
func (r *Router) ForwardClientNotification(ctx context.Context, sess *session.InboundSession, method string, params map[string]any) {
	augmented := make(map[string]any, len(params)+1)
	for k, v := range params {
		augmented[k] = v
	}
	augmented["client"] = sess.ClientID

	for _, name := range r.registry.NamesSorted() {
		if !r.admits(sess, name) {
			continue
		}
		state, ok := r.registry.Get(name)
		if !ok {
			continue
		}
		if err := state.Client.Notify(ctx, method, augmented); err != nil {
			logging.Debug("Router", "notification %s to upstream %s dropped: %v", method, name, err)
		}
	}
}
