package transport

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/1mcp/internal/aggregator"
	"github.com/giantswarm/1mcp/internal/router"
	"github.com/giantswarm/1mcp/pkg/logging"
)

var errMissingSession = errors.New("no inbound session attached to request context")

// BuildMCPServer wires a mcp-go MCPServer whose registered tools, resources
// and prompts are the full namespace-qualified union across every upstream
// the aggregator currently knows about. Per-session visibility is enforced
// two ways: WithToolFilter narrows tools/list to what the calling session's
// tag filter and scope admit (mirroring the teacher's session-scoped tool
// visibility design), and every call handler re-checks admission through
// rt.CallTool/ReadResource/GetPrompt regardless of what tools/list showed,
// so a stale or bypassed listing can never reach a non-admitted upstream.
//
// Resources and prompts have no equivalent list-filter hook in mcp-go, so
// their listings are not session-narrowed; only the call path is enforced.
// This is a deliberate, reduced-scope tradeoff, not an oversight.
func BuildMCPServer(rt *router.Router, agg *aggregator.Aggregator) (*mcpserver.MCPServer, *capabilitySyncer) {
	srv := mcpserver.NewMCPServer(
		router.ServerName,
		router.ServerVersion,
		mcpserver.WithToolCapabilities(true),
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithPromptCapabilities(true),
		mcpserver.WithToolFilter(sessionToolFilter(rt)),
	)

	syncer := &capabilitySyncer{router: rt, aggregator: agg, server: srv}
	syncer.resync()
	return srv, syncer
}

// Watch blocks, resyncing the server's registered tools/resources/prompts
// every time the aggregator's coalesced list_changed fires, until ctx is
// canceled. Run as a background goroutine alongside the transports, over
// the same syncer BuildMCPServer returned (a fresh syncer would re-derive
// its active-item set from empty and double-register everything already
// added by the initial resync).
func (s *capabilitySyncer) Watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.aggregator.ListChanged():
			s.resync()
		}
	}
}

// capabilitySyncer diffs the aggregator's current merged capability set
// against what is currently registered on the mcp-go server and issues the
// minimal Add/Delete calls, mirroring the teacher's active-item-manager
// pattern for batching registration changes.
type capabilitySyncer struct {
	router     *router.Router
	aggregator *aggregator.Aggregator
	server     *mcpserver.MCPServer

	mu             sync.Mutex
	activeTools    map[string]struct{}
	activeResource map[string]struct{}
	activePrompts  map[string]struct{}
}

func (s *capabilitySyncer) resync() {
	caps := s.aggregator.Registry().Snapshot()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.activeTools == nil {
		s.activeTools = make(map[string]struct{})
		s.activeResource = make(map[string]struct{})
		s.activePrompts = make(map[string]struct{})
	}

	newTools := make(map[string]struct{}, len(caps.Tools))
	var toolsToAdd []mcpserver.ServerTool
	for _, t := range caps.Tools {
		newTools[t.Name] = struct{}{}
		if _, ok := s.activeTools[t.Name]; ok {
			continue
		}
		toolsToAdd = append(toolsToAdd, mcpserver.ServerTool{
			Tool:    t,
			Handler: s.toolHandler(t.Name),
		})
	}
	var toolsToRemove []string
	for name := range s.activeTools {
		if _, ok := newTools[name]; !ok {
			toolsToRemove = append(toolsToRemove, name)
		}
	}
	if len(toolsToRemove) > 0 {
		s.server.DeleteTools(toolsToRemove...)
	}
	if len(toolsToAdd) > 0 {
		s.server.AddTools(toolsToAdd...)
	}
	s.activeTools = newTools

	newPrompts := make(map[string]struct{}, len(caps.Prompts))
	var promptsToAdd []mcpserver.ServerPrompt
	for _, p := range caps.Prompts {
		newPrompts[p.Name] = struct{}{}
		if _, ok := s.activePrompts[p.Name]; ok {
			continue
		}
		promptsToAdd = append(promptsToAdd, mcpserver.ServerPrompt{
			Prompt:  p,
			Handler: s.promptHandler(p.Name),
		})
	}
	var promptsToRemove []string
	for name := range s.activePrompts {
		if _, ok := newPrompts[name]; !ok {
			promptsToRemove = append(promptsToRemove, name)
		}
	}
	if len(promptsToRemove) > 0 {
		s.server.DeletePrompts(promptsToRemove...)
	}
	if len(promptsToAdd) > 0 {
		s.server.AddPrompts(promptsToAdd...)
	}
	s.activePrompts = newPrompts

	newResources := make(map[string]struct{}, len(caps.Resources))
	var resourcesToAdd []mcpserver.ServerResource
	for _, res := range caps.Resources {
		newResources[res.URI] = struct{}{}
		if _, ok := s.activeResource[res.URI]; ok {
			continue
		}
		resourcesToAdd = append(resourcesToAdd, mcpserver.ServerResource{
			Resource: res,
			Handler:  s.resourceHandler(res.URI),
		})
	}
	if len(resourcesToAdd) > 0 {
		s.server.AddResources(resourcesToAdd...)
	}
	for uri := range s.activeResource {
		if _, ok := newResources[uri]; !ok {
			// mcp-go has no batch resource removal, unlike tools/prompts.
			s.server.RemoveResource(uri)
		}
	}
	s.activeResource = newResources

	logging.Debug("Transport", "capability sync: %d tools, %d resources, %d prompts", len(newTools), len(newResources), len(newPrompts))
}

func (s *capabilitySyncer) toolHandler(exposedName string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		sess, ok := SessionFromContext(ctx)
		if !ok {
			return nil, errMissingSession
		}
		req.Params.Name = exposedName
		return s.router.CallTool(ctx, sess, req)
	}
}

func (s *capabilitySyncer) resourceHandler(exposedURI string) mcpserver.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		sess, ok := SessionFromContext(ctx)
		if !ok {
			return nil, errMissingSession
		}
		req.Params.URI = exposedURI
		result, err := s.router.ReadResource(ctx, sess, req)
		if err != nil {
			return nil, err
		}
		return result.Contents, nil
	}
}

func (s *capabilitySyncer) promptHandler(exposedName string) mcpserver.PromptHandlerFunc {
	return func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
		sess, ok := SessionFromContext(ctx)
		if !ok {
			return nil, errMissingSession
		}
		req.Params.Name = exposedName
		return s.router.GetPrompt(ctx, sess, req)
	}
}

// sessionToolFilter returns the WithToolFilter callback that narrows a
// tools/list response to what the requesting session's tag filter and
// OAuth scope admit, per the teacher's session-scoped tool visibility
// design (ADR-006 in the teacher's terms).
func sessionToolFilter(rt *router.Router) mcpserver.ToolFilterFunc {
	return func(ctx context.Context, tools []mcp.Tool) []mcp.Tool {
		sess, ok := SessionFromContext(ctx)
		if !ok {
			return tools
		}
		admitted := make(map[string]struct{})
		for _, name := range rt.AdmittedNames(sess) {
			admitted[name] = struct{}{}
		}
		filtered := tools[:0]
		for _, t := range tools {
			upstreamName, _, ok := aggregator.DecodeName(t.Name)
			if !ok {
				continue
			}
			if _, ok := admitted[upstreamName]; ok {
				filtered = append(filtered, t)
			}
		}
		sort.Slice(filtered, func(i, j int) bool { return filtered[i].Name < filtered[j].Name })
		return filtered
	}
}
