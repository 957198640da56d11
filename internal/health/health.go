// Package health serves the liveness and readiness probes.
//
// /healthz answers 200 while the process can serve HTTP. /readyz runs every
// registered [Check] concurrently and answers 200 only when all of them pass;
// the body lists each check as "ok" or "fail: <reason>".
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"
)

const checkTimeout = 3 * time.Second

// ErrNotRunning is reported by [Running] while its loop is down.
var ErrNotRunning = errors.New("health: not running")

// Check probes one dependency.
type Check struct {
	Name  string
	Probe func(ctx context.Context) error
}

// Pinger is a dependency that can report whether it is reachable, such as an
// inventory store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping returns a check that pings p.
func Ping(name string, p Pinger) Check {
	return Check{Name: name, Probe: p.Ping}
}

// Running returns a check that passes while running reports true.
func Running(name string, running func() bool) Check {
	return Check{Name: name, Probe: func(context.Context) error {
		if !running() {
			return ErrNotRunning
		}
		return nil
	}}
}

type report struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// Handler serves the probe endpoints. The check list is fixed at
// construction.
type Handler struct {
	checks []Check
}

// New returns a Handler running checks on every readiness request.
func New(checks ...Check) *Handler {
	return &Handler{checks: append([]Check(nil), checks...)}
}

// Register mounts /healthz and /readyz on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", h.Healthz)
	mux.HandleFunc("GET /readyz", h.Readyz)
}

// Healthz always reports ok.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, report{Status: "ok"})
}

// Readyz reports ok when every check passes within its deadline.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	results := h.Run(r.Context())

	rep := report{Status: "ok", Checks: make(map[string]string, len(results))}
	code := http.StatusOK
	for name, err := range results {
		if err != nil {
			rep.Checks[name] = "fail: " + err.Error()
			rep.Status = "fail"
			code = http.StatusServiceUnavailable
			continue
		}
		rep.Checks[name] = "ok"
	}
	writeJSON(w, code, rep)
}

// Run executes every check concurrently and returns the error of each by
// name (nil for passing checks).
func (h *Handler) Run(ctx context.Context) map[string]error {
	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]error, len(h.checks))
	)
	for _, c := range h.checks {
		wg.Go(func() {
			cctx, cancel := context.WithTimeout(ctx, checkTimeout)
			defer cancel()
			err := c.Probe(cctx)
			if err == nil && cctx.Err() != nil {
				err = cctx.Err()
			}
			mu.Lock()
			results[c.Name] = err
			mu.Unlock()
		})
	}
	wg.Wait()
	return results
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
