package config

import (
	"time"
)

// RateLimitConfig controls the fixed-window request limiter applied to
// credential-guessing surfaces (login, PIN lookup, attendance mark).
type RateLimitConfig struct {
	Enabled     bool
	MaxRequests int
	Window      time.Duration
	Prefix      string
}

// LoadRateLimitConfig reads limiter settings with conservative
// defaults: 25 requests per minute per client, matching the PIN-lookup
// budget the kiosks were tuned for.
func LoadRateLimitConfig() RateLimitConfig {
	cfg := RateLimitConfig{
		Enabled:     envInt("RATE_LIMIT_ENABLED", 1) != 0,
		MaxRequests: envInt("RATE_LIMIT_MAX_REQUESTS", 25),
		Window:      time.Duration(envInt("RATE_LIMIT_WINDOW_SECONDS", 60)) * time.Second,
		Prefix:      "rl",
	}
	if cfg.MaxRequests < 1 {
		cfg.MaxRequests = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	return cfg
}
