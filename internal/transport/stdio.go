package transport

import (
	"context"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/1mcp/internal/session"
)

// ServeStdio runs the stdio transport to completion (until ctx is canceled
// or the pipe closes). Stdio has exactly one client and no HTTP layer, so
// there is no rate limiting, bearer auth, or availability gate: a single
// InboundSession is created once with the universe of configured tags
// (auth is never enforced over stdio, per spec) and attached to the base
// context every handler sees.
func ServeStdio(ctx context.Context, mcpServer *mcpserver.MCPServer, sessions *session.Registry) error {
	sess, err := session.New("stdio", nil, "", false)
	if err != nil {
		return err
	}
	if err := sessions.Add(sess); err != nil {
		return err
	}
	defer sessions.Remove(sess.ID)

	ctx = WithSession(ctx, sess)
	stdio := mcpserver.NewStdioServer(mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}
