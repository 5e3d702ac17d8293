package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"sync/atomic"
)

// HealthChecker is satisfied by external stores (pgxpool, redis client
// wrappers) that can report connectivity.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	checks map[string]HealthChecker
	ready  atomic.Bool
}

func NewHealthHandler() *HealthHandler {
	h := &HealthHandler{checks: make(map[string]HealthChecker)}
	h.ready.Store(false)
	return h
}

// AddCheck registers a named dependency probed by the readiness endpoint.
// Must be called before the handler starts serving.
func (h *HealthHandler) AddCheck(name string, c HealthChecker) {
	h.checks[name] = c
}

func (h *HealthHandler) SetReady(ready bool) {
	h.ready.Store(ready)
}

type HealthResponse struct {
	Status string `json:"status"`
}

type ReadyResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok"})
}

func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	checks := make(map[string]string)
	allHealthy := true

	if !h.ready.Load() {
		checks["app"] = "not ready"
		allHealthy = false
	} else {
		checks["app"] = "ok"
	}

	for name, c := range h.checks {
		if err := c.Ping(r.Context()); err != nil {
			checks[name] = err.Error()
			allHealthy = false
		} else {
			checks[name] = "ok"
		}
	}

	status := "ok"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ReadyResponse{
		Status: status,
		Checks: checks,
	})
}
