// AngelaMos | 2026
// handler.go

// Package health serves the liveness and readiness endpoints the
// orchestrator scrapes. Readiness is check-driven: the wiring in main
// decides which subsystems gate traffic, so the database, redis, the
// token signing key and the token sweeper all report here.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
)

// Check is one readiness gate. Fn receives a context already bounded
// by the shared check timeout.
type Check struct {
	Name string
	Fn   func(ctx context.Context) error
}

const checkTimeout = 5 * time.Second

type Handler struct {
	checks    []Check
	startedAt time.Time
	shutdown  atomic.Bool
}

func NewHandler(checks ...Check) *Handler {
	return &Handler{
		checks:    checks,
		startedAt: time.Now(),
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Liveness)
	r.Get("/livez", h.Liveness)
	r.Get("/readyz", h.Readiness)
}

// SetShutdown makes both endpoints answer 503 so load balancers stop
// routing here while in-flight requests drain.
func (h *Handler) SetShutdown(down bool) {
	h.shutdown.Store(down)
}

func (h *Handler) Liveness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.writeJSON(w, http.StatusServiceUnavailable, statusBody{
			Status: "shutting_down",
		})
		return
	}

	h.writeJSON(w, http.StatusOK, statusBody{
		Status: "ok",
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func (h *Handler) Readiness(w http.ResponseWriter, r *http.Request) {
	if h.shutdown.Load() {
		h.writeJSON(w, http.StatusServiceUnavailable, statusBody{
			Status: "shutting_down",
		})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
	defer cancel()

	checks := h.runChecks(ctx)

	status := "ok"
	code := http.StatusOK
	for _, check := range checks {
		if !check.Healthy {
			status = "degraded"
			code = http.StatusServiceUnavailable
			break
		}
	}

	h.writeJSON(w, code, readinessBody{
		Status: status,
		Checks: checks,
	})
}

// runChecks fans the checks out so one slow subsystem cannot serialize
// the rest; the shared context caps total wait at checkTimeout.
func (h *Handler) runChecks(ctx context.Context) []CheckResult {
	results := make([]CheckResult, len(h.checks))

	var wg sync.WaitGroup
	for i, check := range h.checks {
		wg.Add(1)
		go func(i int, check Check) {
			defer wg.Done()
			results[i] = runCheck(ctx, check)
		}(i, check)
	}
	wg.Wait()

	return results
}

func runCheck(ctx context.Context, check Check) CheckResult {
	result := CheckResult{
		Name:    check.Name,
		Healthy: true,
	}

	if check.Fn == nil {
		result.Healthy = false
		result.Message = "no check wired"
		return result
	}

	start := time.Now()
	err := check.Fn(ctx)
	result.Latency = time.Since(start).String()

	if err != nil {
		result.Healthy = false
		result.Message = err.Error()
	}

	return result
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.WriteHeader(code)
	//nolint:errcheck // best-effort response
	_ = json.NewEncoder(w).Encode(body)
}

type statusBody struct {
	Status string `json:"status"`
	Uptime string `json:"uptime,omitempty"`
}

type readinessBody struct {
	Status string        `json:"status"`
	Checks []CheckResult `json:"checks"`
}

type CheckResult struct {
	Name    string `json:"name"`
	Healthy bool   `json:"healthy"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}
