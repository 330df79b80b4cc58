package httpmiddleware

import (
	"context"
	"encoding/json"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Rate limit defaults, matching the MARKET_RATELIMIT_* config defaults.
const (
	defaultRateLimitMax    = 100
	defaultRateLimitWindow = time.Minute
)

// RateLimitConfig configures the per-client sliding window limiter.
type RateLimitConfig struct {
	// Max is the number of requests allowed per window. Zero or negative
	// falls back to defaultRateLimitMax.
	Max int
	// Window is the sliding window length. Zero falls back to
	// defaultRateLimitWindow.
	Window time.Duration
	// KeyFunc derives the limit key from a request. Nil keys on the
	// client IP, honoring X-Forwarded-For from the edge proxy.
	KeyFunc func(*http.Request) string
}

// window holds one client's counts for two adjacent fixed windows; the
// sliding estimate weights the previous window by its remaining overlap.
type window struct {
	prevCount float64
	prevStart time.Time
	currCount float64
	currStart time.Time
}

// verdict is the outcome of charging one request against the limit.
type verdict struct {
	allowed   bool
	remaining int
	reset     time.Time
}

// limiter owns the per-key windows. now is injectable for tests.
type limiter struct {
	max    int
	window time.Duration
	keyFn  func(*http.Request) string
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*window
}

func newLimiter(cfg RateLimitConfig) *limiter {
	l := &limiter{
		max:     cfg.Max,
		window:  cfg.Window,
		keyFn:   cfg.KeyFunc,
		now:     time.Now,
		buckets: make(map[string]*window),
	}
	if l.max <= 0 {
		l.max = defaultRateLimitMax
	}
	if l.window <= 0 {
		l.window = defaultRateLimitWindow
	}
	if l.keyFn == nil {
		l.keyFn = clientIP
	}
	return l
}

// take charges one request against key and returns the verdict.
func (l *limiter) take(key string) verdict {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok {
		b = &window{currStart: now}
		l.buckets[key] = b
	}

	if now.Sub(b.currStart) >= l.window {
		b.prevCount = b.currCount
		b.prevStart = b.currStart
		b.currCount = 0
		b.currStart = now.Truncate(l.window)
		if now.Sub(b.prevStart) >= 2*l.window {
			b.prevCount = 0
		}
	}

	// Weight the previous window by how much of it still overlaps the
	// sliding window ending now.
	overlap := 1.0 - now.Sub(b.currStart).Seconds()/l.window.Seconds()
	if overlap < 0 {
		overlap = 0
	}
	used := b.prevCount*overlap + b.currCount
	reset := b.currStart.Add(l.window)

	if used >= float64(l.max) {
		return verdict{allowed: false, remaining: 0, reset: reset}
	}

	b.currCount++
	remaining := int(float64(l.max) - used - 1)
	if remaining < 0 {
		remaining = 0
	}
	return verdict{allowed: true, remaining: remaining, reset: reset}
}

// evict drops buckets idle for two full windows.
func (l *limiter) evict() {
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if now.Sub(b.currStart) >= 2*l.window {
			delete(l.buckets, key)
		}
	}
}

// RateLimit returns a middleware enforcing a per-client sliding window
// limit across the whole API, including checkout. Refused requests get
// 429 with the API's error envelope; every response carries
// X-RateLimit-Limit, X-RateLimit-Remaining and X-RateLimit-Reset.
//
// This variant never evicts idle clients; use RateLimitWithCleanup in the
// server so the bucket map cannot grow without bound.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware()
}

// RateLimitWithCleanup is RateLimit plus a background goroutine that
// evicts idle clients every two windows, stopping when ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * l.window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				l.evict()
			}
		}
	}()
	return l.middleware()
}

func (l *limiter) middleware() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			v := l.take(l.keyFn(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(l.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(v.remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(v.reset.Unix(), 10))

			if !v.allowed {
				retry := time.Until(v.reset)
				if retry < 0 {
					retry = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the client address: first hop of X-Forwarded-For, then
// X-Real-IP, then the socket peer.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
