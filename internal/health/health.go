// Package health provides HTTP liveness and readiness probes for the
// streaming process.
//
//   - /healthz — liveness; returns 200 whenever the process can serve HTTP.
//   - /readyz  — readiness; returns 200 only when every registered check
//     passes, e.g. when the stream session is open.
//
// Responses are JSON with a top-level "status" field ("ok" or "fail") and a
// "checks" map with the outcome of each named check.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Check probes one dependency. It must return nil when healthy and respect
// context cancellation.
type Check func(ctx context.Context) error

// response is the JSON body for both probes.
type response struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime,omitempty"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The check set is fixed at construction
// time, so it is safe for concurrent use.
type Handler struct {
	started time.Time
	checks  map[string]Check
	order   []string
}

// New creates an empty Handler. Register checks with Add before wiring the
// routes.
func New() *Handler {
	return &Handler{
		started: time.Now(),
		checks:  make(map[string]Check),
	}
}

// Add registers a named readiness check. Checks run on each /readyz request
// in registration order.
func (h *Handler) Add(name string, c Check) {
	if _, dup := h.checks[name]; !dup {
		h.order = append(h.order, name)
	}
	h.checks[name] = c
}

// Healthz always reports the process alive, with its uptime.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, response{
		Status: "ok",
		Uptime: time.Since(h.started).Round(time.Second).String(),
	})
}

// Readyz runs every registered check and reports 503 if any fails.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := make(map[string]string, len(h.checks))
	ready := true

	for _, name := range h.order {
		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		err := h.checks[name](ctx)
		cancel()

		if err != nil {
			results[name] = "fail: " + err.Error()
			ready = false
			continue
		}
		results[name] = "ok"
	}

	res := response{Status: "ok", Checks: results}
	code := http.StatusOK
	if !ready {
		res.Status = "fail"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, res)
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"status":"error"}`, http.StatusInternalServerError)
	}
}
