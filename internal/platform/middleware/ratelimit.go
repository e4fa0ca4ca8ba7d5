package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// RateLimitConfig holds per-client rate limiting configuration.
type RateLimitConfig struct {
	// RequestsPerMinute is the sliding window quota for a single client.
	RequestsPerMinute int
	// Window is the sliding window length. Defaults to one minute.
	Window time.Duration
}

// DefaultRateLimitConfig returns default rate limiting settings.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		Window:            time.Minute,
	}
}

// clientWindow tracks request timestamps for one client inside the window.
type clientWindow struct {
	hits []time.Time
}

// slidingWindow holds per-client request histories. Clients whose hits have
// all aged out of the window are dropped from the map during the periodic
// sweep, so the map tracks active clients only.
type slidingWindow struct {
	mu        sync.Mutex
	clients   map[string]*clientWindow
	limit     int
	window    time.Duration
	lastSweep time.Time
}

func newSlidingWindow(cfg RateLimitConfig) *slidingWindow {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return &slidingWindow{
		clients: make(map[string]*clientWindow),
		limit:   cfg.RequestsPerMinute,
		window:  cfg.Window,
	}
}

// allow records a hit for the client and reports whether it is within quota.
// When over quota it returns the seconds until the oldest hit leaves the
// window.
func (s *slidingWindow) allow(key string, now time.Time) (bool, int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := now.Add(-s.window)
	if now.Sub(s.lastSweep) >= s.window {
		s.sweep(cutoff)
		s.lastSweep = now
	}

	cw, ok := s.clients[key]
	if !ok {
		cw = &clientWindow{}
		s.clients[key] = cw
	}

	kept := cw.hits[:0]
	for _, t := range cw.hits {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cw.hits = kept

	if len(cw.hits) >= s.limit {
		retryAfter := int(cw.hits[0].Sub(cutoff)/time.Second) + 1
		return false, retryAfter
	}

	cw.hits = append(cw.hits, now)
	return true, 0
}

// sweep removes clients with no hit inside the window. Caller holds the lock.
func (s *slidingWindow) sweep(cutoff time.Time) {
	for key, cw := range s.clients {
		idle := true
		for _, t := range cw.hits {
			if t.After(cutoff) {
				idle = false
				break
			}
		}
		if idle {
			delete(s.clients, key)
		}
	}
}

// RateLimit returns a per-client sliding window rate limiting middleware.
// Clients are identified by their real IP, honoring forwarded headers when
// the request came through a proxy.
func RateLimit(cfg RateLimitConfig) echo.MiddlewareFunc {
	store := newSlidingWindow(cfg)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := clientKey(c)

			ok, retryAfter := store.allow(key, time.Now())
			if !ok {
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfter))
				c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
				c.Response().Header().Set("X-RateLimit-Remaining", "0")
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":      "rate limit exceeded, please try again later",
					"retryAfter": retryAfter,
				})
			}

			c.Response().Header().Set("X-RateLimit-Limit", strconv.Itoa(cfg.RequestsPerMinute))
			return next(c)
		}
	}
}

// clientKey resolves the client identity from proxy headers, preferring
// CF-Connecting-IP, then echo's RealIP which understands X-Real-IP and
// X-Forwarded-For.
func clientKey(c echo.Context) string {
	if ip := c.Request().Header.Get("CF-Connecting-IP"); ip != "" {
		return ip
	}
	return c.RealIP()
}
