package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "http://localhost:9000")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "8000" {
		t.Errorf("expected default port 8000, got %s", cfg.Port)
	}
	if cfg.TickInterval != time.Second {
		t.Errorf("expected default tick interval 1s, got %s", cfg.TickInterval)
	}
	if cfg.PrepReadyDwell != 3*time.Second {
		t.Errorf("expected default prep ready dwell 3s, got %s", cfg.PrepReadyDwell)
	}
	if cfg.TheatreEntryDwell != 8*time.Second {
		t.Errorf("expected default theatre entry dwell 8s, got %s", cfg.TheatreEntryDwell)
	}
	if cfg.DefaultETAMinutes != 15 {
		t.Errorf("expected default ETA 15 minutes, got %d", cfg.DefaultETAMinutes)
	}
	if cfg.RateLimitPerMinute != 10 {
		t.Errorf("expected default rate limit 10/min, got %d", cfg.RateLimitPerMinute)
	}
	if !cfg.IsDev() {
		t.Error("expected default env to be development")
	}
}

func TestLoad_MissingGatewayURL(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "")

	if _, err := Load(); err == nil {
		t.Fatal("expected error when GATEWAY_BASE_URL is unset")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GATEWAY_BASE_URL", "http://gateway:9000")
	t.Setenv("PORT", "9090")
	t.Setenv("TICK_INTERVAL", "250ms")
	t.Setenv("THEATRE_MOVE_DWELL", "10s")
	t.Setenv("CORS_ORIGINS", "http://a.example,http://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Port)
	}
	if cfg.TickInterval != 250*time.Millisecond {
		t.Errorf("expected tick interval 250ms, got %s", cfg.TickInterval)
	}
	if cfg.TheatreMoveDwell != 10*time.Second {
		t.Errorf("expected theatre move dwell 10s, got %s", cfg.TheatreMoveDwell)
	}
	if len(cfg.CORSOrigins) != 2 {
		t.Errorf("expected 2 CORS origins, got %v", cfg.CORSOrigins)
	}
}

func TestValidate(t *testing.T) {
	valid := &Config{
		TickInterval:       time.Second,
		PrepReadyDwell:     3 * time.Second,
		InTransitDwell:     2 * time.Second,
		TheatreMoveDwell:   5 * time.Second,
		TheatreEntryDwell:  8 * time.Second,
		DefaultETAMinutes:  15,
		RateLimitPerMinute: 10,
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("expected valid config, got %v", err)
	}

	zeroTick := *valid
	zeroTick.TickInterval = 0
	if err := zeroTick.Validate(); err == nil {
		t.Error("expected error for zero tick interval")
	}

	negativeDwell := *valid
	negativeDwell.InTransitDwell = -time.Second
	if err := negativeDwell.Validate(); err == nil {
		t.Error("expected error for negative dwell")
	}

	zeroETA := *valid
	zeroETA.DefaultETAMinutes = 0
	if err := zeroETA.Validate(); err == nil {
		t.Error("expected error for zero default ETA")
	}
}
