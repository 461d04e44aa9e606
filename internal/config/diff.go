package config

import "reflect"

// Diff describes how one Snapshot differs from the one before it, driving
// the upstream connection manager's Reconfigure operation.
type Diff struct {
	Added   []UpstreamDef
	Removed []string
	Changed []UpstreamDef // new definition; the manager restarts these
}

// Empty reports whether the diff carries no changes.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ComputeDiff compares prev to next and returns the set of additions,
// removals, and changed upstream definitions. A zero-value prev (no
// Upstreams) is treated as an empty snapshot, so the initial config load produces an all-Added diff.
func ComputeDiff(prev, next Snapshot) Diff {
	var d Diff

	for name, def := range next.Upstreams {
		old, existed := prev.Upstreams[name]
		if !existed {
			d.Added = append(d.Added, def)
			continue
		}
		if !reflect.DeepEqual(old, def) {
			d.Changed = append(d.Changed, def)
		}
	}

	for name := range prev.Upstreams {
		if _, stillPresent := next.Upstreams[name]; !stillPresent {
			d.Removed = append(d.Removed, name)
		}
	}

	return d
}
