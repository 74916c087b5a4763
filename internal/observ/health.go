package observ

import (
	"encoding/json"
	"net/http"
	"time"
)

var (
	startTime = time.Now()
	version   = "dev" // Set via build flags
)

// SetVersion sets the version string for health reports
func SetVersion(v string) {
	version = v
}

func Version() string {
	return version
}

// StatusSource produces a read-only view of the worker state. Implementations
// must not take locks that the trading loop holds.
type StatusSource interface {
	StatusSnapshot() any
}

type healthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Uptime    string `json:"uptime"`
	Version   string `json:"version"`
	Worker    any    `json:"worker,omitempty"`
}

// HealthHandler answers liveness probes with the current worker snapshot.
func HealthHandler(src StatusSource) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			Version:   version,
		}
		if src != nil {
			resp.Worker = src.StatusSnapshot()
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	})
}

// NewMux wires /health, /healthz, /status and /metrics.
func NewMux(src StatusSource) *http.ServeMux {
	mux := http.NewServeMux()
	h := HealthHandler(src)
	mux.Handle("/health", h)
	mux.Handle("/healthz", h)
	mux.Handle("/status", h)
	mux.Handle("/metrics", Handler())
	mux.Handle("/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"service": "tradebot",
			"version": version,
		})
	}))
	return mux
}
