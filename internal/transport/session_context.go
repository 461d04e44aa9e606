package transport

import (
	"context"

	"github.com/giantswarm/1mcp/internal/session"
)

// sessionContextKey carries the InboundSession resolved by the HTTP
// middleware chain (or pre-created for stdio) through to every tool,
// resource, and prompt handler registered on the mcp-go server. Handlers
// never consult mcp-go's own per-connection session bookkeeping directly;
// session identity and admission are entirely this package's concern.
type sessionContextKey struct{}

// WithSession attaches sess to ctx for downstream handler lookup.
func WithSession(ctx context.Context, sess *session.InboundSession) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, sess)
}

// SessionFromContext returns the InboundSession attached to ctx, if any.
func SessionFromContext(ctx context.Context) (*session.InboundSession, bool) {
	sess, ok := ctx.Value(sessionContextKey{}).(*session.InboundSession)
	return sess, ok
}
