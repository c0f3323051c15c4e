package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding window rate limiter.
type RateLimitConfig struct {
	// Max requests per Window for one key.
	Max    int
	Window time.Duration
	// KeyFunc picks the limited key. Defaults to ClientIP.
	KeyFunc func(*http.Request) string
}

// counter approximates a sliding window from two fixed windows: the
// previous count is weighted by how much of it still overlaps.
type counter struct {
	prev      float64
	curr      float64
	currStart time.Time
}

func (c *counter) rotate(now time.Time, window time.Duration) {
	elapsed := now.Sub(c.currStart)
	switch {
	case elapsed >= 2*window:
		c.prev, c.curr = 0, 0
		c.currStart = now.Truncate(window)
	case elapsed >= window:
		c.prev, c.curr = c.curr, 0
		c.currStart = now.Truncate(window)
	}
}

func (c *counter) weighted(now time.Time, window time.Duration) float64 {
	overlap := 1 - now.Sub(c.currStart).Seconds()/window.Seconds()
	return c.prev*max(overlap, 0) + c.curr
}

// limiter is the shared per-key state of one RateLimit middleware.
type limiter struct {
	cfg RateLimitConfig

	mu   sync.Mutex
	keys map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = ClientIP
	}
	return &limiter{cfg: cfg, keys: make(map[string]*counter)}
}

// take consumes one request for key. It returns the requests left, when the
// current window resets, and whether the request may proceed.
func (l *limiter) take(key string, now time.Time) (left int, reset time.Time, ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	c, found := l.keys[key]
	if !found {
		c = &counter{currStart: now}
		l.keys[key] = c
	}
	c.rotate(now, l.cfg.Window)

	used := c.weighted(now, l.cfg.Window)
	reset = c.currStart.Add(l.cfg.Window)
	if used >= float64(l.cfg.Max) {
		return 0, reset, false
	}
	c.curr++
	return max(int(float64(l.cfg.Max)-used-1), 0), reset, true
}

// evict drops keys idle for two full windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.keys {
		if now.Sub(c.currStart) >= 2*l.cfg.Window {
			delete(l.keys, key)
		}
	}
}

// RateLimit limits requests per key. Rejected requests get 429 with
// Retry-After; every response carries X-RateLimit-* headers. Idle keys are
// never evicted, so prefer RateLimitWithCleanup for long-running servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return newLimiter(cfg).middleware
}

// RateLimitWithCleanup is RateLimit plus a goroutine evicting idle keys
// every two windows until ctx is done.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	l := newLimiter(cfg)
	go func() {
		ticker := time.NewTicker(2 * cfg.Window)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				l.evict(now)
			}
		}
	}()
	return l.middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		left, reset, ok := l.take(l.cfg.KeyFunc(r), time.Now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
		h.Set("X-RateLimit-Remaining", strconv.Itoa(left))
		h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))

		if !ok {
			wait := max(time.Until(reset), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// KeyByHeader limits by the value of header, falling back to ClientIP when
// the header is absent.
func KeyByHeader(header string) func(*http.Request) string {
	return func(r *http.Request) string {
		if v := r.Header.Get(header); v != "" {
			return header + ":" + v
		}
		return ClientIP(r)
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
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
