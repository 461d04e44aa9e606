package health

import (
	"encoding/json"
	"net/http"
)

// RegisterRoutes mounts the three health endpoints on mux, unauthenticated,
// matching the teacher's own convention of serving a liveness-style probe
// outside the auth middleware chain.
func (c *Checker) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health/live", c.handleLive)
	mux.HandleFunc("GET /health/ready", c.handleReady)
	mux.HandleFunc("GET /health", c.handleDetailed)
}

func (c *Checker) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

func (c *Checker) handleReady(w http.ResponseWriter, r *http.Request) {
	if !c.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (c *Checker) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := c.Compute()
	status := http.StatusOK
	if report.Status == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, report)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
