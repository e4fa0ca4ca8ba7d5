package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
)

func rateLimitedHandler(cfg RateLimitConfig) (*echo.Echo, echo.HandlerFunc) {
	e := echo.New()
	mw := RateLimit(cfg)
	return e, mw(func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
}

func TestRateLimit_RequestsWithinLimit(t *testing.T) {
	e, handler := rateLimitedHandler(RateLimitConfig{RequestsPerMinute: 5})

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)

		if err := handler(c); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i+1, rec.Code)
		}
		if got := rec.Header().Get("X-RateLimit-Limit"); got != "5" {
			t.Errorf("request %d: expected X-RateLimit-Limit '5', got %q", i+1, got)
		}
	}
}

func TestRateLimit_ExceedsLimit(t *testing.T) {
	e, handler := rateLimitedHandler(RateLimitConfig{RequestsPerMinute: 2})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rec := httptest.NewRecorder()
		if err := handler(e.NewContext(req, rec)); err != nil {
			t.Fatalf("request %d: expected no error, got %v", i+1, err)
		}
	}

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	if err := handler(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	var body struct {
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("bad response body: %v", err)
	}
	if body.Error == "" {
		t.Error("expected error message in body")
	}
	if body.RetryAfter < 1 {
		t.Errorf("expected retryAfter >= 1, got %d", body.RetryAfter)
	}
}

func TestRateLimit_RetryAfterHeader(t *testing.T) {
	e, handler := rateLimitedHandler(RateLimitConfig{RequestsPerMinute: 1})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	rec = httptest.NewRecorder()
	_ = handler(e.NewContext(req, rec))

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", rec.Code)
	}

	retryAfter := rec.Header().Get("Retry-After")
	if retryAfter == "" {
		t.Fatal("expected Retry-After header to be set")
	}
	retryVal, parseErr := strconv.Atoi(retryAfter)
	if parseErr != nil {
		t.Fatalf("Retry-After header is not a valid integer: %q", retryAfter)
	}
	if retryVal < 1 || retryVal > 61 {
		t.Errorf("expected Retry-After within the window, got %d", retryVal)
	}
	if remaining := rec.Header().Get("X-RateLimit-Remaining"); remaining != "0" {
		t.Errorf("expected X-RateLimit-Remaining '0', got %q", remaining)
	}
}

func TestRateLimit_PerClientIsolation(t *testing.T) {
	e, handler := rateLimitedHandler(RateLimitConfig{RequestsPerMinute: 1})

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		_ = handler(e.NewContext(req, rec))
		return rec
	}

	if rec := send("10.0.0.1"); rec.Code != http.StatusOK {
		t.Fatalf("first client request: expected 200, got %d", rec.Code)
	}
	if rec := send("10.0.0.1"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second client request: expected 429, got %d", rec.Code)
	}
	// A different client has its own window.
	if rec := send("10.0.0.2"); rec.Code != http.StatusOK {
		t.Fatalf("other client request: expected 200, got %d", rec.Code)
	}
}

func TestRateLimit_CFConnectingIPPreferred(t *testing.T) {
	e, handler := rateLimitedHandler(RateLimitConfig{RequestsPerMinute: 1})

	send := func(cfIP string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("CF-Connecting-IP", cfIP)
		req.Header.Set("X-Real-IP", "192.168.0.9")
		rec := httptest.NewRecorder()
		_ = handler(e.NewContext(req, rec))
		return rec
	}

	send("203.0.113.7")
	if rec := send("203.0.113.7"); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 keyed on CF-Connecting-IP, got %d", rec.Code)
	}
	if rec := send("203.0.113.8"); rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for different CF-Connecting-IP, got %d", rec.Code)
	}
}

func TestSlidingWindow_ExpiredHitsFreeQuota(t *testing.T) {
	sw := newSlidingWindow(RateLimitConfig{RequestsPerMinute: 2, Window: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if ok, _ := sw.allow("c", base); !ok {
		t.Fatal("first hit should be allowed")
	}
	if ok, _ := sw.allow("c", base.Add(time.Second)); !ok {
		t.Fatal("second hit should be allowed")
	}
	ok, retryAfter := sw.allow("c", base.Add(2*time.Second))
	if ok {
		t.Fatal("third hit inside window should be rejected")
	}
	if retryAfter < 1 {
		t.Errorf("expected positive retryAfter, got %d", retryAfter)
	}
	// Once the first hit falls out of the window the quota frees up.
	if ok, _ := sw.allow("c", base.Add(61*time.Second)); !ok {
		t.Error("hit after window expiry should be allowed")
	}
}

func TestSlidingWindow_SweepsIdleClients(t *testing.T) {
	sw := newSlidingWindow(RateLimitConfig{RequestsPerMinute: 5, Window: time.Minute})
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 50; i++ {
		key := "client-" + strconv.Itoa(i)
		if ok, _ := sw.allow(key, base.Add(time.Duration(i)*time.Second)); !ok {
			t.Fatalf("client %d: first hit should be allowed", i)
		}
	}
	if got := len(sw.clients); got != 50 {
		t.Fatalf("expected 50 tracked clients, got %d", got)
	}

	// Two minutes later every earlier hit has aged out; the next request
	// triggers the sweep and only its own client remains tracked.
	if ok, _ := sw.allow("client-fresh", base.Add(3*time.Minute)); !ok {
		t.Fatal("fresh hit should be allowed")
	}
	if got := len(sw.clients); got != 1 {
		t.Errorf("expected idle clients to be dropped, %d still tracked", got)
	}
	if _, ok := sw.clients["client-fresh"]; !ok {
		t.Error("expected the active client to stay tracked")
	}
}

func TestRateLimit_DefaultConfig(t *testing.T) {
	cfg := DefaultRateLimitConfig()
	if cfg.RequestsPerMinute != 10 {
		t.Errorf("expected RequestsPerMinute 10, got %d", cfg.RequestsPerMinute)
	}
	if cfg.Window != time.Minute {
		t.Errorf("expected one minute window, got %s", cfg.Window)
	}
}
