// Package aggregator keeps a namespace-qualified view of every Ready
// upstream's tools, resources, resource templates, and prompts in sync with
// the upstream connection manager's state-change stream.
//
// Exposed names are built with EncodeName/EncodeResourceURI and reversed
// with DecodeName/DecodeResourceURI; the router uses these to dispatch a
// namespaced name back to the upstream that owns it. Capability-set changes
// are coalesced (see coalescer.go) before being signaled on ListChanged, so
// a burst of upstream reconnects produces one list_changed notification
// rather than one per upstream.
package aggregator
