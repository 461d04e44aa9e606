// Package transport implements the three concurrent inbound MCP transports
// (stdio, streamable HTTP, legacy SSE) and the HTTP middleware chain that
// fronts them: rate limiting, bearer-token authorization, tag-filter
// parsing, and the availability gate. Each transport terminates at the
// router.Router, which owns all protocol-level dispatch; this package's job
// is session lifecycle and wire framing, not MCP semantics.
package transport
