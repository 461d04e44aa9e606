package aggregator

import (
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/1mcp/internal/upstream"
)

// UpstreamState caches one upstream's advertised capabilities behind the
// registry's read-write lock. It is populated from a upstream.ReadyClient
// once that upstream reaches the Ready state, and dropped the moment it
// leaves Ready.
type UpstreamState struct {
	Name        string
	Client      upstream.Client
	ConnectedAt time.Time

	mu        sync.RWMutex
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Templates []mcp.ResourceTemplate
	Prompts   []mcp.Prompt
}

func (s *UpstreamState) setTools(tools []mcp.Tool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Tools = tools
}

func (s *UpstreamState) setResources(resources []mcp.Resource) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Resources = resources
}

func (s *UpstreamState) setTemplates(templates []mcp.ResourceTemplate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Templates = templates
}

func (s *UpstreamState) setPrompts(prompts []mcp.Prompt) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Prompts = prompts
}

func (s *UpstreamState) snapshot() (tools []mcp.Tool, resources []mcp.Resource, templates []mcp.ResourceTemplate, prompts []mcp.Prompt) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Tools, s.Resources, s.Templates, s.Prompts
}

// Capabilities is the fully merged, namespace-qualified view the router
// hands to inbound sessions, before any tag filter is applied.
type Capabilities struct {
	Tools     []mcp.Tool
	Resources []mcp.Resource
	Templates []mcp.ResourceTemplate
	Prompts   []mcp.Prompt
}
