package health

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/go-faster/errors"
)

// GoroutineCountCheck reports unhealthy when the process holds more than
// limit goroutines. The checkout path spawns no long-lived goroutines, so
// sustained growth means a leak (usually an abandoned poller or an HTTP
// client without timeouts).
func GoroutineCountCheck(limit int) CheckFunc {
	return func(_ context.Context) error {
		if n := runtime.NumGoroutine(); n > limit {
			return errors.Errorf("%d goroutines, limit %d", n, limit)
		}
		return nil
	}
}

// GCMaxPauseCheck reports unhealthy when a stop-the-world pause since the
// previous observation exceeded limit. Only new pauses are examined, so a
// single historical spike does not keep the probe failing forever. The
// returned CheckFunc keeps state and must be driven from one goroutine,
// which is how Health runs its probes.
func GCMaxPauseCheck(limit time.Duration) CheckFunc {
	var seen int64
	return func(_ context.Context) error {
		var stats debug.GCStats
		debug.ReadGCStats(&stats)

		fresh := stats.NumGC - seen
		if fresh > int64(len(stats.Pause)) {
			fresh = int64(len(stats.Pause))
		}
		seen = stats.NumGC

		// stats.Pause is most recent first.
		for _, pause := range stats.Pause[:fresh] {
			if pause > limit {
				return errors.Errorf("GC pause %s over limit %s", pause, limit)
			}
		}
		return nil
	}
}
