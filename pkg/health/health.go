// Package health implements the /livez and /readyz probes of the
// marketplace API.
//
// Probes are registered once during startup and evaluated together on a
// shared ticker. A probe flips unhealthy only after failAfter consecutive
// failures and recovers on the first success, so a short Postgres or Redis
// blip does not knock the API out of the load balancer rotation.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// failAfter is how many consecutive failures a probe tolerates before it
// reports unhealthy.
const failAfter = 3

// CheckFunc probes one dependency. A nil return means healthy.
type CheckFunc func(ctx context.Context) error

// probe is one registered check plus its observed state. The fails counter
// is touched only by the supervisor goroutine; healthy and lastErr are
// published atomically for the HTTP endpoints.
type probe struct {
	name    string
	timeout time.Duration
	check   CheckFunc

	healthy atomic.Bool
	lastErr atomic.Pointer[error]
	fails   int
}

// observe runs the check once and applies the failure threshold. Called
// only from the supervisor goroutine.
func (p *probe) observe(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	err := p.check(ctx)
	p.lastErr.Store(&err)

	if err == nil {
		p.fails = 0
		p.healthy.Store(true)
		return
	}
	p.fails++
	if p.fails >= failAfter {
		p.healthy.Store(false)
	}
}

// failure returns the message to surface for an unhealthy probe.
func (p *probe) failure() string {
	if e := p.lastErr.Load(); e != nil && *e != nil {
		return (*e).Error()
	}
	return "check is unhealthy"
}

// Health evaluates the registered probes and serves the probe endpoints.
// Liveness probes guard the process itself (goroutine leaks, GC stalls);
// readiness probes guard the dependencies checkout cannot run without:
// Postgres, and Redis when the cart cache is enabled.
type Health struct {
	ready atomic.Bool

	// mu guards the probe slices and cancel. Registration happens before
	// Start; the endpoints only snapshot the slices under RLock.
	mu        sync.RWMutex
	liveness  []*probe
	readiness []*probe
	cancel    context.CancelFunc
}

// New returns a Health with no probes. The service starts not ready; call
// SetReady(true) once wiring is complete.
func New() *Health {
	return &Health{}
}

func newProbe(name string, timeout time.Duration, check CheckFunc) *probe {
	p := &probe{name: name, timeout: timeout, check: check}
	// Healthy until the threshold says otherwise, so a slow first check
	// does not fail the deploy.
	p.healthy.Store(true)
	return p
}

// AddLivenessCheck registers a probe for /livez.
func (h *Health) AddLivenessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.liveness = append(h.liveness, newProbe(name, timeout, check))
}

// AddReadinessCheck registers a probe for /readyz.
func (h *Health) AddReadinessCheck(name string, timeout time.Duration, check CheckFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.readiness = append(h.readiness, newProbe(name, timeout, check))
}

// Start launches the supervisor goroutine that evaluates every probe once
// immediately and then on each tick of interval, until ctx is cancelled or
// Stop is called.
func (h *Health) Start(ctx context.Context, interval time.Duration) {
	ctx, cancel := context.WithCancel(ctx)

	h.mu.Lock()
	h.cancel = cancel
	probes := make([]*probe, 0, len(h.liveness)+len(h.readiness))
	probes = append(probes, h.liveness...)
	probes = append(probes, h.readiness...)
	h.mu.Unlock()

	go supervise(ctx, probes, interval)
}

func supervise(ctx context.Context, probes []*probe, interval time.Duration) {
	observeAll := func() {
		for _, p := range probes {
			p.observe(ctx)
		}
	}
	observeAll()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observeAll()
		}
	}
}

// SetReady flips the manual readiness gate. It is set true after startup
// and back to false at the start of graceful shutdown so the load balancer
// drains the instance before connections close.
func (h *Health) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports whether the gate is open and every readiness probe is
// currently passing.
func (h *Health) IsReady() bool {
	if !h.ready.Load() {
		return false
	}

	h.mu.RLock()
	probes := h.readiness
	h.mu.RUnlock()

	for _, p := range probes {
		if !p.healthy.Load() {
			return false
		}
	}
	return true
}

// Stop cancels the supervisor goroutine. Safe to call more than once.
func (h *Health) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.cancel != nil {
		h.cancel()
		h.cancel = nil
	}
}

type statusResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// LiveEndpoint serves /livez: 200 {"status":"ok"} while every liveness
// probe passes, otherwise 503 with the failing probes listed.
func (h *Health) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	probes := make([]*probe, len(h.liveness))
	copy(probes, h.liveness)
	h.mu.RUnlock()

	writeStatus(w, failures(probes))
}

// ReadyEndpoint serves /readyz: 200 only when the manual gate is open and
// every readiness probe passes.
func (h *Health) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	ready := h.ready.Load()

	h.mu.RLock()
	probes := make([]*probe, len(h.readiness))
	copy(probes, h.readiness)
	h.mu.RUnlock()

	failing := failures(probes)
	if !ready {
		failing["_readiness"] = "service is not ready"
	}
	writeStatus(w, failing)
}

func failures(probes []*probe) map[string]string {
	failing := make(map[string]string)
	for _, p := range probes {
		if !p.healthy.Load() {
			failing[p.name] = p.failure()
		}
	}
	return failing
}

func writeStatus(w http.ResponseWriter, failing map[string]string) {
	w.Header().Set("Content-Type", "application/json")

	resp := statusResponse{Status: "ok"}
	code := http.StatusOK
	if len(failing) > 0 {
		resp = statusResponse{Status: "unhealthy", Checks: failing}
		code = http.StatusServiceUnavailable
	}

	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(resp)
}
