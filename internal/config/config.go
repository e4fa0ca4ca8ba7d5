package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port               string        `mapstructure:"PORT"`
	Env                string        `mapstructure:"ENV"`
	CORSOrigins        []string      `mapstructure:"CORS_ORIGINS"`
	RateLimitPerMinute int           `mapstructure:"RATE_LIMIT_PER_MINUTE"`
	GatewayBaseURL     string        `mapstructure:"GATEWAY_BASE_URL"`
	GatewayAPIKey      string        `mapstructure:"GATEWAY_API_KEY"`
	GatewayTimeout     time.Duration `mapstructure:"GATEWAY_TIMEOUT"`
	TickInterval       time.Duration `mapstructure:"TICK_INTERVAL"`
	PrepReadyDwell     time.Duration `mapstructure:"PREP_READY_DWELL"`
	InTransitDwell     time.Duration `mapstructure:"IN_TRANSIT_DWELL"`
	TheatreMoveDwell   time.Duration `mapstructure:"THEATRE_MOVE_DWELL"`
	TheatreEntryDwell  time.Duration `mapstructure:"THEATRE_ENTRY_DWELL"`
	DefaultETAMinutes  int           `mapstructure:"DEFAULT_ETA_MINUTES"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults. The dwell and tick values pace the simulated pipeline; they
	// preserve the relative ordering of the stages and are not clinical
	// timings.
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("RATE_LIMIT_PER_MINUTE", 10)
	v.SetDefault("GATEWAY_TIMEOUT", "30s")
	v.SetDefault("TICK_INTERVAL", "1s")
	v.SetDefault("PREP_READY_DWELL", "3s")
	v.SetDefault("IN_TRANSIT_DWELL", "2s")
	v.SetDefault("THEATRE_MOVE_DWELL", "5s")
	v.SetDefault("THEATRE_ENTRY_DWELL", "8s")
	v.SetDefault("DEFAULT_ETA_MINUTES", 15)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("RATE_LIMIT_PER_MINUTE")
	v.BindEnv("GATEWAY_BASE_URL")
	v.BindEnv("GATEWAY_API_KEY")
	v.BindEnv("GATEWAY_TIMEOUT")
	v.BindEnv("TICK_INTERVAL")
	v.BindEnv("PREP_READY_DWELL")
	v.BindEnv("IN_TRANSIT_DWELL")
	v.BindEnv("THEATRE_MOVE_DWELL")
	v.BindEnv("THEATRE_ENTRY_DWELL")
	v.BindEnv("DEFAULT_ETA_MINUTES")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.GatewayBaseURL == "" {
		return nil, fmt.Errorf("GATEWAY_BASE_URL is required")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// Validate checks that the configuration can drive the transition engine.
// Dwell values may be tuned freely, but a non-positive tick or dwell would
// either spin the scheduler or let stages fire immediately out of order.
func (c *Config) Validate() error {
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL must be positive, got %s", c.TickInterval)
	}
	for name, d := range map[string]time.Duration{
		"PREP_READY_DWELL":    c.PrepReadyDwell,
		"IN_TRANSIT_DWELL":    c.InTransitDwell,
		"THEATRE_MOVE_DWELL":  c.TheatreMoveDwell,
		"THEATRE_ENTRY_DWELL": c.TheatreEntryDwell,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive, got %s", name, d)
		}
	}
	if c.DefaultETAMinutes <= 0 {
		return fmt.Errorf("DEFAULT_ETA_MINUTES must be positive, got %d", c.DefaultETAMinutes)
	}
	if c.RateLimitPerMinute <= 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be positive, got %d", c.RateLimitPerMinute)
	}
	return nil
}
