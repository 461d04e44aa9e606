package aggregator

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// Registry holds the aggregated, namespace-qualified capability set for
// every Ready upstream. It is the read path the router serves list requests
// from; the only writer is the Aggregator event loop.
type Registry struct {
	mu        sync.RWMutex
	upstreams map[string]*UpstreamState

	updateChan chan struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		upstreams:  make(map[string]*UpstreamState),
		updateChan: make(chan struct{}, 1),
	}
}

// Put installs or replaces the cached capability set for an upstream that
// just reached Ready. It fetches the upstream's tools, resources, resource
// templates, and prompts.
func (r *Registry) Put(ctx context.Context, name string, client upstream.Client) error {
	state := &UpstreamState{Name: name, Client: client, ConnectedAt: time.Now()}

	if err := r.refresh(ctx, state); err != nil {
		logging.Warn("Aggregator", "partial capability fetch for upstream %s: %v", name, err)
	}

	r.mu.Lock()
	r.upstreams[name] = state
	r.mu.Unlock()
	r.notifyUpdate()

	tools, resources, _, prompts := state.snapshot()
	logging.Info("Aggregator", "upstream %s ready with %d tools, %d resources, %d prompts", name, len(tools), len(resources), len(prompts))
	return nil
}

// Remove drops an upstream's cached capabilities, e.g. when it leaves Ready.
func (r *Registry) Remove(name string) {
	r.mu.Lock()
	_, existed := r.upstreams[name]
	delete(r.upstreams, name)
	r.mu.Unlock()
	if existed {
		r.notifyUpdate()
		logging.Info("Aggregator", "upstream %s removed from aggregate", name)
	}
}

// Refresh re-fetches one upstream's capability lists, used after a
// list_changed notification from that upstream.
func (r *Registry) Refresh(ctx context.Context, name string) error {
	r.mu.RLock()
	state, ok := r.upstreams[name]
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("upstream %s not registered", name)
	}
	if err := r.refresh(ctx, state); err != nil {
		return err
	}
	r.notifyUpdate()
	return nil
}

func (r *Registry) refresh(ctx context.Context, state *UpstreamState) error {
	var errs []error

	tools, err := state.Client.ListTools(ctx)
	if err != nil {
		errs = append(errs, fmt.Errorf("list tools: %w", err))
	} else {
		state.setTools(tools)
	}

	resources, err := state.Client.ListResources(ctx)
	if err != nil {
		state.setResources(nil)
	} else {
		state.setResources(resources)
	}

	templates, err := state.Client.ListResourceTemplates(ctx)
	if err != nil {
		state.setTemplates(nil)
	} else {
		state.setTemplates(templates)
	}

	prompts, err := state.Client.ListPrompts(ctx)
	if err != nil {
		state.setPrompts(nil)
	} else {
		state.setPrompts(prompts)
	}

	if len(errs) > 0 {
		return fmt.Errorf("%v", errs)
	}
	return nil
}

// Snapshot returns the fully merged, namespace-qualified capability set
// across every registered upstream.
func (r *Registry) Snapshot() Capabilities {
	return r.SnapshotAdmitted(nil)
}

// SnapshotAdmitted returns the merged, namespace-qualified capability set
// restricted to upstreams for which admit returns true (nil admits
// everything). Upstreams are visited in name-ascending order so pagination
// cursors over the result remain stable across calls.
func (r *Registry) SnapshotAdmitted(admit func(name string) bool) Capabilities {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.upstreams))
	for name := range r.upstreams {
		if admit == nil || admit(name) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	var out Capabilities
	for _, name := range names {
		state := r.upstreams[name]
		tools, resources, templates, prompts := state.snapshot()

		for _, t := range tools {
			t.Name = EncodeName(name, t.Name)
			out.Tools = append(out.Tools, t)
		}
		for _, res := range resources {
			res.URI = EncodeResourceURI(name, res.URI)
			out.Resources = append(out.Resources, res)
		}
		for _, tpl := range templates {
			tpl.Name = EncodeName(name, tpl.Name)
			out.Templates = append(out.Templates, tpl)
		}
		for _, p := range prompts {
			p.Name = EncodeName(name, p.Name)
			out.Prompts = append(out.Prompts, p)
		}
	}
	return out
}

// NamesSorted returns registered upstream names in ascending order.
func (r *Registry) NamesSorted() []string {
	names := r.Names()
	sort.Strings(names)
	return names
}

// Get returns the cached state for one upstream.
func (r *Registry) Get(name string) (*UpstreamState, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	state, ok := r.upstreams[name]
	return state, ok
}

// Names returns the set of currently registered (Ready) upstream names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.upstreams))
	for name := range r.upstreams {
		names = append(names, name)
	}
	return names
}

func (r *Registry) notifyUpdate() {
	select {
	case r.updateChan <- struct{}{}:
	default:
	}
}

// Updates returns a channel that receives a notification whenever the
// aggregate capability set changes. The Aggregator's coalescer merges these
// into its ListChanged signal.
func (r *Registry) Updates() <-chan struct{} {
	return r.updateChan
}
