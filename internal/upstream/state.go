package upstream

import (
	"time"

	"github.com/mark3labs/mcp-go/mcp"
)

// State is the per-upstream lifecycle state. Valid transitions are
// enumerated in Manager's worker loop; observers only ever see
// state-machine-valid orderings for a given upstream.
type State int

const (
	Pending State = iota
	Loading
	AwaitingOAuth
	Ready
	Failed
	Cancelled
)

func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Loading:
		return "loading"
	case AwaitingOAuth:
		return "awaiting_oauth"
	case Ready:
		return "ready"
	case Failed:
		return "failed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Status is a point-in-time view of one upstream's worker state, used by the
// availability gate and the health endpoints. Unlike ReadyClient, it is
// available regardless of whether the upstream is currently Ready.
type Status struct {
	State            State
	RetryCount       int
	LastError        error
	AuthorizationURL string
}

// StateChange is one observed transition for a single upstream.
type StateChange struct {
	Upstream         string
	State            State
	LastError        error
	RetryCount       int
	AuthorizationURL string
	Timestamp        time.Time
	Duration         time.Duration
}

// ReadyClient is a live handshake with a remote MCP server: its advertised
// capabilities, protocol version, and a monotonically assigned internal id.
// It is owned by the connection manager; the aggregator holds a read-only
// reference.
type ReadyClient struct {
	Upstream        string
	ID              uint64
	Client          Client
	Capabilities    mcp.ServerCapabilities
	ProtocolVersion string
	ServerInfo      mcp.Implementation
	ConnectedAt     time.Time
}
