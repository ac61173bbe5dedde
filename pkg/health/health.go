// Package health serves liveness and readiness probes.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// readinessTimeout bounds one readiness probe, all checks included.
const readinessTimeout = 5 * time.Second

// Checker reports whether a dependency is usable.
type Checker func(ctx context.Context) error

// Status is the state of the service or of one dependency.
type Status string

const (
	StatusUp       Status = "up"
	StatusDown     Status = "down"
	StatusDegraded Status = "degraded"
)

// Response is the body of both probes.
type Response struct {
	Status    Status                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// CheckResult is the outcome of one Checker.
type CheckResult struct {
	Status     Status `json:"status"`
	Critical   bool   `json:"critical"`
	DurationMS int64  `json:"duration_ms"`
	Error      string `json:"error,omitempty"`
}

type registration struct {
	check    Checker
	critical bool
}

// Handler serves the probes. The catalog backend is critical: without it
// no search can be answered. Cache and event plumbing are not: listings
// are still served, so their failure only degrades the service.
type Handler struct {
	mu       sync.RWMutex
	checkers map[string]registration
	now      func() time.Time
}

// NewHandler returns a Handler with no checks.
func NewHandler() *Handler {
	return &Handler{checkers: make(map[string]registration), now: time.Now}
}

// RegisterCritical adds a check whose failure makes readiness answer 503.
func (h *Handler) RegisterCritical(name string, checker Checker) {
	h.register(name, registration{check: checker, critical: true})
}

// RegisterNonCritical adds a check whose failure reports degraded with 200.
func (h *Handler) RegisterNonCritical(name string, checker Checker) {
	h.register(name, registration{check: checker})
}

func (h *Handler) register(name string, reg registration) {
	h.mu.Lock()
	h.checkers[name] = reg
	h.mu.Unlock()
}

// LivenessHandler answers 200 while the process is serving.
func (h *Handler) LivenessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		writeResponse(w, http.StatusOK, Response{Status: StatusUp, Timestamp: h.now().UTC()})
	}
}

// ReadinessHandler runs every check concurrently and folds the results.
func (h *Handler) ReadinessHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		checks := h.runChecks(ctx)
		overall := summarize(checks)

		status := http.StatusOK
		if overall == StatusDown {
			status = http.StatusServiceUnavailable
		}
		writeResponse(w, status, Response{Status: overall, Timestamp: h.now().UTC(), Checks: checks})
	}
}

func (h *Handler) runChecks(ctx context.Context) map[string]CheckResult {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]CheckResult, len(h.checkers))
	)
	for name, reg := range h.checkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			start := h.now()
			err := reg.check(ctx)

			res := CheckResult{
				Status:     StatusUp,
				Critical:   reg.critical,
				DurationMS: h.now().Sub(start).Milliseconds(),
			}
			if err != nil {
				res.Status, res.Error = StatusDown, err.Error()
			}
			mu.Lock()
			checks[name] = res
			mu.Unlock()
		}()
	}
	wg.Wait()
	return checks
}

// summarize is down if any critical check is down, degraded if only
// non-critical ones are, and up otherwise.
func summarize(checks map[string]CheckResult) Status {
	overall := StatusUp
	for _, res := range checks {
		switch {
		case res.Status != StatusDown:
		case res.Critical:
			return StatusDown
		default:
			overall = StatusDegraded
		}
	}
	return overall
}

func writeResponse(w http.ResponseWriter, status int, resp Response) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}
