package upstream

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/1mcp/internal/config"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// ProxyName is this proxy's own advertised server identity, used both when
// initializing upstream connections and to guard against an upstream that
// is, in fact, this same proxy (spec's CircularDependency rule).
const ProxyName = "1mcp"

const ProtocolVersion = "2024-11-05"

// Client is the interface the connection manager and aggregator consume for
// every upstream transport kind. All three transports (stdio, SSE,
// streamable HTTP) implement it identically from the caller's perspective.
type Client interface {
	Initialize(ctx context.Context) (*mcp.InitializeResult, error)
	Close() error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	ListResources(ctx context.Context) ([]mcp.Resource, error)
	ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error)
	ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error)
	ListPrompts(ctx context.Context) ([]mcp.Prompt, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error)
	Ping(ctx context.Context) error

	// Notify sends a client-originated notification (initialized,
	// roots/list_changed, cancelled, progress) to the upstream. Transports
	// that can't send outgoing notifications return an error rather than
	// panicking; the router logs and drops per the notification propagation
	// policy.
	Notify(ctx context.Context, method string, params map[string]any) error
}

// AuthRequiredError is the distinguished Unauthorized(upstream) variant: the
// handshake or first list request failed because the upstream requires
// OAuth, and it handed back an authorization URL the caller must visit.
type AuthRequiredError struct {
	Upstream         string
	AuthorizationURL string
	cause            error
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("upstream %s requires authorization: %v", e.Upstream, e.cause)
}
func (e *AuthRequiredError) Unwrap() error { return e.cause }

// CircularDependencyError is returned when an upstream's advertised server
// name equals this proxy's own name.
type CircularDependencyError struct {
	Upstream string
}

func (e *CircularDependencyError) Error() string {
	return fmt.Sprintf("upstream %s advertises this proxy's own server name, refusing to connect", e.Upstream)
}

type baseClient struct {
	mu        sync.RWMutex
	inner     mcpclient.MCPClient
	connected bool
}

func (b *baseClient) checkConnected() error {
	if !b.connected || b.inner == nil {
		return fmt.Errorf("client not connected")
	}
	return nil
}

func (b *baseClient) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.connected || b.inner == nil {
		return nil
	}
	err := b.inner.Close()
	b.connected = false
	b.inner = nil
	return err
}

func (b *baseClient) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	return result.Tools, nil
}

func (b *baseClient) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := b.inner.CallTool(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call tool %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resources: %w", err)
	}
	return result.Resources, nil
}

func (b *baseClient) ListResourceTemplates(ctx context.Context) ([]mcp.ResourceTemplate, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListResourceTemplates(ctx, mcp.ListResourceTemplatesRequest{})
	if err != nil {
		return nil, fmt.Errorf("list resource templates: %w", err)
	}
	return result.ResourceTemplates, nil
}

func (b *baseClient) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.ReadResourceRequest{}
	req.Params.URI = uri
	result, err := b.inner.ReadResource(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("read resource %s: %w", uri, err)
	}
	return result, nil
}

func (b *baseClient) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	result, err := b.inner.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("list prompts: %w", err)
	}
	return result.Prompts, nil
}

func (b *baseClient) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return nil, err
	}
	req := mcp.GetPromptRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	result, err := b.inner.GetPrompt(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("get prompt %s: %w", name, err)
	}
	return result, nil
}

func (b *baseClient) Ping(ctx context.Context) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	return b.inner.Ping(ctx)
}

// notifier is implemented by mcp-go transports that can send an outgoing
// JSON-RPC notification without expecting a response. Not every MCPClient
// implementation necessarily satisfies it, so Notify degrades to an error
// instead of a type-assertion panic.
type notifier interface {
	SendNotification(ctx context.Context, notification mcp.JSONRPCNotification) error
}

func (b *baseClient) Notify(ctx context.Context, method string, params map[string]any) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if err := b.checkConnected(); err != nil {
		return err
	}
	n, ok := b.inner.(notifier)
	if !ok {
		return fmt.Errorf("upstream transport does not support outgoing notifications")
	}
	notif := mcp.JSONRPCNotification{
		JSONRPC: mcp.JSONRPC_VERSION,
		Notification: mcp.Notification{
			Method: method,
			Params: mcp.NotificationParams{AdditionalFields: params},
		},
	}
	return n.SendNotification(ctx, notif)
}

func initRequest() mcp.InitializeRequest {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = ProtocolVersion
	req.Params.ClientInfo = mcp.Implementation{Name: ProxyName, Version: "1.0.0"}
	req.Params.Capabilities = mcp.ClientCapabilities{}
	return req
}

// NewClient builds a Client for def using the transport factory appropriate
// to its kind. It does not connect; call Initialize to perform the
// handshake.
func NewClient(def config.UpstreamDef) (Client, error) {
	switch def.Kind {
	case config.KindStdio:
		return &stdioClient{def: def}, nil
	case config.KindSSE:
		return &sseClient{def: def}, nil
	case config.KindHTTP:
		return &streamableHTTPClient{def: def}, nil
	default:
		return nil, fmt.Errorf("unsupported upstream kind %q", def.Kind)
	}
}

// newClient is the factory the connection manager's workers call through.
// Tests in this package swap it out for one that returns an in-process fake,
// so the state machine can be exercised without a real subprocess or socket.
var newClient = NewClient

type stdioClient struct {
	baseClient
	def config.UpstreamDef
}

func (c *stdioClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	envStrings := make([]string, 0, len(c.def.Env))
	for k, v := range c.def.Env {
		envStrings = append(envStrings, fmt.Sprintf("%s=%s", k, v))
	}

	logging.Debug("UpstreamClient", "spawning stdio upstream %s: %s %v", c.def.Name, c.def.Command, c.def.Args)
	inner, err := mcpclient.NewStdioMCPClient(c.def.Command, envStrings, c.def.Args...)
	if err != nil {
		return nil, fmt.Errorf("spawn stdio client: %w", err)
	}

	initCtx := ctx
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		initCtx, cancel = context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
	}

	result, err := inner.Initialize(initCtx, initRequest())
	if err != nil {
		_ = inner.Close()
		return nil, classifyInitError(c.def.Name, err)
	}

	c.inner = inner
	c.connected = true
	return result, nil
}

type sseClient struct {
	baseClient
	def config.UpstreamDef
}

func (c *sseClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var opts []transport.ClientOption
	if len(c.def.Headers) > 0 {
		opts = append(opts, transport.WithHeaders(c.def.Headers))
	}

	inner, err := mcpclient.NewSSEMCPClient(c.def.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create SSE client: %w", err)
	}
	if err := inner.Start(ctx); err != nil {
		return nil, fmt.Errorf("start SSE transport: %w", err)
	}

	result, err := inner.Initialize(ctx, initRequest())
	if err != nil {
		_ = inner.Close()
		return nil, classifyInitError(c.def.Name, err)
	}

	c.inner = inner
	c.connected = true
	return result, nil
}

type streamableHTTPClient struct {
	baseClient
	def config.UpstreamDef
}

func (c *streamableHTTPClient) Initialize(ctx context.Context) (*mcp.InitializeResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var opts []transport.StreamableHTTPCOption
	if len(c.def.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(c.def.Headers))
	}

	inner, err := mcpclient.NewStreamableHttpClient(c.def.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("create streamable HTTP client: %w", err)
	}

	result, err := inner.Initialize(ctx, initRequest())
	if err != nil {
		_ = inner.Close()
		return nil, classifyInitError(c.def.Name, err)
	}

	c.inner = inner
	c.connected = true
	return result, nil
}

// classifyInitError recognizes an upstream's 401-with-authorization-url
// response and converts it to AuthRequiredError so the state machine can
// transition to AwaitingOAuth instead of Failed. mcp-go surfaces OAuth
// challenges as a plain error whose message embeds the authorization URL;
// this is the same shape the upstream's own HTTP layer returns it in.
func classifyInitError(upstream string, err error) error {
	msg := err.Error()
	if url, ok := extractAuthorizationURL(msg); ok {
		return &AuthRequiredError{Upstream: upstream, AuthorizationURL: url, cause: err}
	}
	return fmt.Errorf("initialize: %w", err)
}

func extractAuthorizationURL(msg string) (string, bool) {
	const marker = "authorization_url="
	idx := strings.Index(msg, marker)
	if idx < 0 {
		return "", false
	}
	rest := msg[idx+len(marker):]
	if end := strings.IndexAny(rest, " \t\n"); end >= 0 {
		rest = rest[:end]
	}
	if rest == "" {
		return "", false
	}
	return rest, true
}
