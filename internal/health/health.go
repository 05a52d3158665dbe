// Package health serves the liveness and readiness probes.
//
//   - GET /healthz answers 200 while the process can serve HTTP.
//   - GET /readyz runs every registered [Checker] concurrently and answers
//     200 when all required checks pass. Failing optional checks only mark
//     the response "degraded".
//
// During shutdown [Handler.Drain] flips readiness off before the listener
// closes, so load balancers stop routing new requests first.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// checkTimeout bounds a single readiness check.
const checkTimeout = 5 * time.Second

// Response statuses.
const (
	StatusOK       = "ok"
	StatusDegraded = "degraded"
	StatusFail     = "fail"
	StatusDraining = "draining"
)

// Checker probes one dependency.
type Checker struct {
	// Name keys the check in the JSON response, e.g. "postgres".
	Name string

	// Check returns nil when the dependency is healthy. It must honour ctx.
	Check func(ctx context.Context) error

	// Optional checks report but never fail readiness.
	Optional bool
}

// CheckResult is one entry in the readiness response.
type CheckResult struct {
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Report is the JSON body of both probes.
type Report struct {
	Status string                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// Handler serves the probes. It is safe for concurrent use.
type Handler struct {
	mu       sync.RWMutex
	checkers []Checker
	draining atomic.Bool
}

// New returns a Handler with the given checkers.
func New(checkers ...Checker) *Handler {
	h := &Handler{}
	h.Add(checkers...)
	return h
}

// Add registers more checkers.
func (h *Handler) Add(checkers ...Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.checkers = append(h.checkers, checkers...)
}

// Drain makes /readyz answer 503 from now on.
func (h *Handler) Drain() { h.draining.Store(true) }

// Healthz is the liveness probe.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, Report{Status: StatusOK})
}

// Readyz is the readiness probe.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	if h.draining.Load() {
		writeJSON(w, http.StatusServiceUnavailable, Report{Status: StatusDraining})
		return
	}
	rep := h.Check(r.Context())
	status := http.StatusOK
	if rep.Status == StatusFail {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, rep)
}

// Check runs all checkers concurrently and summarises the results.
func (h *Handler) Check(ctx context.Context) Report {
	h.mu.RLock()
	checkers := append([]Checker(nil), h.checkers...)
	h.mu.RUnlock()

	results := make([]CheckResult, len(checkers))
	var g errgroup.Group
	for i, c := range checkers {
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			start := time.Now()
			err := c.Check(cctx)
			res := CheckResult{Status: StatusOK, DurationMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status, res.Error = StatusFail, err.Error()
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()

	rep := Report{Status: StatusOK, Checks: make(map[string]CheckResult, len(checkers))}
	for i, c := range checkers {
		rep.Checks[c.Name] = results[i]
		if results[i].Status == StatusOK {
			continue
		}
		if c.Optional {
			if rep.Status == StatusOK {
				rep.Status = StatusDegraded
			}
			continue
		}
		rep.Status = StatusFail
	}
	return rep
}

// Register adds the probe routes to mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
