package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/giantswarm/1mcp/internal/router"
	"github.com/giantswarm/1mcp/internal/upstream"
	"github.com/giantswarm/1mcp/pkg/logging"
)

// AvailabilityGate inspects the session-admitted upstream set before a
// request is routed. AllowPartial controls whether a mixed Ready/non-Ready
// set proceeds with advisory headers or is treated like "none Ready".
type AvailabilityGate struct {
	router       *router.Router
	statuses     func() map[string]upstream.Status
	AllowPartial bool
}

// NewAvailabilityGate builds a gate over router's admission logic and a
// live status snapshot function (normally upstream.Manager.Snapshot).
func NewAvailabilityGate(rt *router.Router, statuses func() map[string]upstream.Status) *AvailabilityGate {
	return &AvailabilityGate{router: rt, statuses: statuses, AllowPartial: true}
}

type serverLoadingDetail struct {
	Name             string `json:"name"`
	State            string `json:"state"`
	AuthorizationURL string `json:"authorizationUrl,omitempty"`
}

// Middleware rejects or annotates a request based on the admitted upstream
// set's readiness, per the availability gate response matrix.
func (g *AvailabilityGate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, ok := SessionFromContext(r.Context())
		if !ok {
			next.ServeHTTP(w, r)
			return
		}

		admitted := g.router.AdmittedNames(sess)
		if len(admitted) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		statuses := g.statuses()
		var ready, loading int
		details := make([]serverLoadingDetail, 0, len(admitted))
		for _, name := range admitted {
			st, known := statuses[name]
			if !known {
				continue
			}
			switch st.State {
			case upstream.Ready:
				ready++
			case upstream.Loading, upstream.Pending:
				loading++
				details = append(details, serverLoadingDetail{Name: name, State: st.State.String()})
			default:
				details = append(details, serverLoadingDetail{
					Name:             name,
					State:            st.State.String(),
					AuthorizationURL: sanitizeAuthURL(st.AuthorizationURL),
				})
			}
		}

		switch {
		case ready == len(admitted):
			next.ServeHTTP(w, r)
		case ready > 0 && g.AllowPartial:
			w.Header().Set("X-MCP-Partial-Availability", "true")
			w.Header().Set("X-MCP-Available-Count", strconv.Itoa(ready))
			w.Header().Set("X-MCP-Total-Count", strconv.Itoa(len(admitted)))
			w.Header().Set("X-MCP-Loading-Count", strconv.Itoa(loading))
			next.ServeHTTP(w, r)
		case loading > 0:
			writeJSON(w, http.StatusAccepted, map[string]any{
				"error":      "servers_loading",
				"retryAfter": 30,
				"servers":    details,
			})
		default:
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"error":   "service_unavailable",
				"servers": details,
			})
		}
	})
}

func sanitizeAuthURL(raw string) string {
	return logging.Sanitize(raw)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
