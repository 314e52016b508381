package config

import "time"

// Rate limiter backends.
const (
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// RateLimitConfig configures the sliding-window limiter that gates
// signup, login and password reset. When Backend is redis but no Redis
// server answers at startup, the server falls back to the memory backend.
type RateLimitConfig struct {
	Enabled bool
	Max     int           // attempts allowed per window and key
	Window  time.Duration // sliding window length
	Prefix  string        // Redis key prefix
	Backend string        // redis or memory
}

func loadRateLimit(p *parser) RateLimitConfig {
	c := RateLimitConfig{
		Enabled: p.bool("RATE_LIMIT_ENABLED", true),
		Max:     p.int("RATE_LIMIT_MAX", 5),
		Window:  p.dur("RATE_LIMIT_WINDOW", 15*time.Minute),
		Prefix:  envStr("RATE_LIMIT_PREFIX", "rl"),
		Backend: envStr("RATE_LIMIT_BACKEND", BackendRedis),
	}
	if c.Max < 1 {
		c.Max = 1
	}
	if c.Window <= 0 {
		c.Window = 15 * time.Minute
	}
	return c
}
