package transport

import (
	"net/http"

	"github.com/giantswarm/1mcp/internal/session"
)

// McpSessionIDHeader is the streamable-HTTP session correlation header, per
// the MCP streamable HTTP transport spec.
const McpSessionIDHeader = "Mcp-Session-Id"

// StreamableSessionMiddleware resolves or mints the InboundSession for a
// streamable HTTP connection from the Mcp-Session-Id header, attaching it
// to the request context for every downstream handler (availability gate,
// mcp-go handler, tool/resource/prompt callbacks).
//
// A DELETE removes the session from the registry before forwarding, so the
// client's explicit close is honored here rather than left to mcp-go's own
// bookkeeping.
func StreamableSessionMiddleware(sessions *session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(McpSessionIDHeader)

			if r.Method == http.MethodDelete {
				if id != "" {
					sessions.Remove(id)
				}
				next.ServeHTTP(w, r)
				return
			}

			var sess *session.InboundSession
			if id != "" {
				if err := session.ValidateSessionID(id); err != nil {
					http.Error(w, `{"error":"invalid_session_id"}`, http.StatusBadRequest)
					return
				}
				existing, ok := sessions.Get(id)
				if !ok {
					http.Error(w, `{"error":"session_not_found"}`, http.StatusNotFound)
					return
				}
				sess = existing
			} else {
				info := tokenInfoFromContext(r.Context())
				params, err := parseSessionParams(r)
				if err != nil {
					http.Error(w, `{"error":"invalid_request","error_description":"`+err.Error()+`"}`, http.StatusBadRequest)
					return
				}
				created, err := session.New(info.ClientID, info.Tags, params.FilterExpr, params.EnablePagination)
				if err != nil {
					http.Error(w, `{"error":"invalid_request","error_description":"`+err.Error()+`"}`, http.StatusBadRequest)
					return
				}
				created.PresetName = params.PresetName
				if err := sessions.Add(created); err != nil {
					http.Error(w, `{"error":"session_limit_exceeded"}`, http.StatusServiceUnavailable)
					return
				}
				sess = created
				w.Header().Set(McpSessionIDHeader, sess.ID)
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}

// SSESessionMiddleware creates the InboundSession once, at GET /sse
// connection-open time, from that request's query params and token info,
// and attaches it to the founding request's context. mcp-go's SSE server
// reuses that context for every subsequent tool-call handler invocation on
// the same connection; the per-POST "sessionId" query parameter on
// /messages is an mcp-go-internal wire-correlation id, opaque to this
// package, and is not used for session identity here.
func SSESessionMiddleware(sessions *session.Registry) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			info := tokenInfoFromContext(r.Context())
			params, err := parseSessionParams(r)
			if err != nil {
				http.Error(w, `{"error":"invalid_request","error_description":"`+err.Error()+`"}`, http.StatusBadRequest)
				return
			}
			sess, err := session.New(info.ClientID, info.Tags, params.FilterExpr, params.EnablePagination)
			if err != nil {
				http.Error(w, `{"error":"invalid_request","error_description":"`+err.Error()+`"}`, http.StatusBadRequest)
				return
			}
			sess.PresetName = params.PresetName
			if err := sessions.Add(sess); err != nil {
				http.Error(w, `{"error":"session_limit_exceeded"}`, http.StatusServiceUnavailable)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithSession(r.Context(), sess)))
		})
	}
}
