package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyDependency() CheckFunc {
	return func(_ context.Context) error { return nil }
}

func downDependency(msg string) CheckFunc {
	return func(_ context.Context) error { return errors.New(msg) }
}

// drive evaluates every registered probe n times, the way the supervisor
// goroutine would, without waiting on a real ticker.
func drive(h *Health, n int) {
	probes := append(append([]*probe{}, h.liveness...), h.readiness...)
	for range n {
		for _, p := range probes {
			p.observe(context.Background())
		}
	}
}

func getStatus(t *testing.T, endpoint http.HandlerFunc) (int, statusResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	endpoint(w, httptest.NewRequest(http.MethodGet, "/", nil))

	var body statusResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w.Code, body
}

func TestLivez_AllProbesPassing(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, healthyDependency())
	drive(h, 1)

	code, body := getStatus(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
	assert.Empty(t, body.Checks)
}

func TestLivez_FailureBelowThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, downDependency("too many goroutines"))
	drive(h, failAfter-1)

	code, _ := getStatus(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusOK, code, "probe must tolerate %d failures", failAfter-1)
}

func TestLivez_FailureAtThreshold(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, downDependency("too many goroutines"))
	drive(h, failAfter)

	code, body := getStatus(t, h.LiveEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "unhealthy", body.Status)
	assert.Equal(t, "too many goroutines", body.Checks["goroutines"])
}

func TestProbe_RecoversOnFirstSuccess(t *testing.T) {
	var mu sync.Mutex
	down := true
	h := New()
	h.AddReadinessCheck("postgres", time.Second, func(_ context.Context) error {
		mu.Lock()
		defer mu.Unlock()
		if down {
			return errors.New("connection refused")
		}
		return nil
	})
	h.SetReady(true)

	drive(h, failAfter)
	assert.False(t, h.IsReady())

	mu.Lock()
	down = false
	mu.Unlock()

	drive(h, 1)
	assert.True(t, h.IsReady(), "one success must restore the probe")
}

func TestReadyz_GateClosedUntilSetReady(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, healthyDependency())
	drive(h, 1)

	code, body := getStatus(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "service is not ready", body.Checks["_readiness"])

	h.SetReady(true)
	code, body = getStatus(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body.Status)
}

func TestReadyz_GateClosesForShutdown(t *testing.T) {
	h := New()
	h.SetReady(true)

	code, _ := getStatus(t, h.ReadyEndpoint)
	require.Equal(t, http.StatusOK, code)

	h.SetReady(false)
	code, _ = getStatus(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestReadyz_OneDependencyDown(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, healthyDependency())
	h.AddReadinessCheck("redis", time.Second, downDependency("connection refused"))
	h.SetReady(true)
	drive(h, failAfter)

	code, body := getStatus(t, h.ReadyEndpoint)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.NotContains(t, body.Checks, "postgres")
	assert.Equal(t, "connection refused", body.Checks["redis"])
	assert.False(t, h.IsReady())
}

func TestStart_EvaluatesProbes(t *testing.T) {
	h := New()
	h.AddReadinessCheck("postgres", time.Second, downDependency("connection refused"))
	h.SetReady(true)

	h.Start(context.Background(), 5*time.Millisecond)
	defer h.Stop()

	assert.Eventually(t, func() bool { return !h.IsReady() },
		time.Second, 5*time.Millisecond, "supervisor must trip the probe")
}

func TestStop_Idempotent(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, healthyDependency())
	h.Start(context.Background(), time.Millisecond)
	h.Stop()
	h.Stop()
}

func TestEndpoints_ConcurrentWithObserve(t *testing.T) {
	h := New()
	h.AddLivenessCheck("goroutines", time.Second, healthyDependency())
	h.AddReadinessCheck("postgres", time.Second, healthyDependency())
	h.SetReady(true)
	h.Start(context.Background(), time.Millisecond)
	defer h.Stop()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				w := httptest.NewRecorder()
				h.LiveEndpoint(w, httptest.NewRequest(http.MethodGet, "/livez", nil))
				w = httptest.NewRecorder()
				h.ReadyEndpoint(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			}
		}()
	}
	wg.Wait()
}

func TestGoroutineCountCheck(t *testing.T) {
	require.NoError(t, GoroutineCountCheck(1_000_000)(context.Background()))
	assert.Error(t, GoroutineCountCheck(0)(context.Background()))
}

func TestGCMaxPauseCheck(t *testing.T) {
	check := GCMaxPauseCheck(time.Hour)
	require.NoError(t, check(context.Background()))
	// Second observation sees no new pauses over the limit either.
	require.NoError(t, check(context.Background()))
}
