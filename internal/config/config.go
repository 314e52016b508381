// Package config loads application configuration from environment
// variables. A .env file in the working directory is read first when it
// exists; variables already set in the environment win over it.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration values. Each field corresponds to
// an environment variable.
type Config struct {
	Env             string        // APP_ENV (dev, test, prod)
	Port            string        // APP_PORT
	DB              DBConfig      // DB_*
	JWTSecret       string        // JWT_SECRET, HMAC key for access tokens
	AccessTTL       time.Duration // ACCESS_TOKEN_TTL_MIN
	BcryptCost      int           // BCRYPT_COST
	ResetCodeTTL    time.Duration // RESET_CODE_TTL
	LogLevel        string        // LOG_LEVEL
	LogFormat       string        // LOG_FORMAT (text or json)
	ShutdownTimeout time.Duration // SHUTDOWN_TIMEOUT
	TrustProxy      bool          // TRUST_PROXY, read client addresses from X-Forwarded-For
	TrustedProxies  []*net.IPNet  // TRUSTED_PROXIES, comma separated CIDRs
	RateLimit       RateLimitConfig
	Redis           RedisConfig
	Notify          NotifyConfig
}

// DBConfig is the MySQL connection target.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// NotifyConfig controls the RabbitMQ notification publisher and the
// worker that drains it.
type NotifyConfig struct {
	Enabled bool
	URL     string // RABBITMQ_URL, falls back to AMQP_URL
	Queue   string
	LogDir  string // where the worker writes delivered notifications
}

// Load reads configuration from the environment. Malformed numbers and
// durations are reported as errors; missing optional values take their
// defaults. Required values are checked by Validate and RequireDB.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	var p parser
	cfg := Config{
		Env:  envStr("APP_ENV", "dev"),
		Port: envStr("APP_PORT", "8080"),
		DB: DBConfig{
			User: os.Getenv("DB_USER"),
			Pass: os.Getenv("DB_PASS"),
			Host: envStr("DB_HOST", "127.0.0.1"),
			Port: envStr("DB_PORT", "3306"),
			Name: os.Getenv("DB_NAME"),
		},
		JWTSecret:       os.Getenv("JWT_SECRET"),
		AccessTTL:       time.Duration(p.int("ACCESS_TOKEN_TTL_MIN", 7*24*60)) * time.Minute,
		BcryptCost:      p.int("BCRYPT_COST", 12),
		ResetCodeTTL:    p.dur("RESET_CODE_TTL", 15*time.Minute),
		LogLevel:        envStr("LOG_LEVEL", "info"),
		LogFormat:       envStr("LOG_FORMAT", "text"),
		ShutdownTimeout: p.dur("SHUTDOWN_TIMEOUT", 10*time.Second),
		TrustProxy:      p.bool("TRUST_PROXY", false),
		TrustedProxies:  p.cidrs("TRUSTED_PROXIES"),
		RateLimit:       loadRateLimit(&p),
		Redis:           loadRedis(&p),
		Notify: NotifyConfig{
			Enabled: p.bool("NOTIFY_ENABLED", true),
			URL:     envStr("RABBITMQ_URL", os.Getenv("AMQP_URL")),
			Queue:   envStr("NOTIFY_QUEUE", "eventdesk.notifications"),
			LogDir:  envStr("NOTIFY_LOG_DIR", "logs"),
		},
	}
	if err := p.err(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RequireDB reports missing database settings.
func (c Config) RequireDB() error {
	var missing []string
	if c.DB.User == "" {
		missing = append(missing, "DB_USER")
	}
	if c.DB.Name == "" {
		missing = append(missing, "DB_NAME")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required env var: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks everything the API server needs.
func (c Config) Validate() error {
	if err := c.RequireDB(); err != nil {
		return err
	}
	if c.JWTSecret == "" {
		return errors.New("missing required env var: JWT_SECRET")
	}
	if len(c.JWTSecret) < 16 && c.Env == "prod" {
		return errors.New("JWT_SECRET must be at least 16 bytes in prod")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST out of range: %d", c.BcryptCost)
	}
	if c.AccessTTL <= 0 {
		return errors.New("ACCESS_TOKEN_TTL_MIN must be positive")
	}
	switch c.RateLimit.Backend {
	case BackendRedis, BackendMemory:
	default:
		return fmt.Errorf("unknown RATE_LIMIT_BACKEND %q", c.RateLimit.Backend)
	}
	return nil
}

// parser collects conversion errors so Load can report all of them at once.
type parser struct {
	errs []error
}

func (p *parser) int(k string, d int) int {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid int for %s: %q", k, v))
		return d
	}
	return n
}

func (p *parser) dur(k string, d time.Duration) time.Duration {
	v := os.Getenv(k)
	if v == "" {
		return d
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid duration for %s: %q", k, v))
		return d
	}
	return dur
}

func (p *parser) bool(k string, d bool) bool {
	switch os.Getenv(k) {
	case "":
		return d
	case "1", "true", "TRUE", "True", "yes", "YES", "on", "ON":
		return true
	case "0", "false", "FALSE", "False", "no", "NO", "off", "OFF":
		return false
	}
	p.errs = append(p.errs, fmt.Errorf("invalid bool for %s: %q", k, os.Getenv(k)))
	return d
}

func (p *parser) cidrs(k string) []*net.IPNet {
	var out []*net.IPNet
	for _, v := range strings.Split(os.Getenv(k), ",") {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		_, n, err := net.ParseCIDR(v)
		if err != nil {
			p.errs = append(p.errs, fmt.Errorf("invalid CIDR in %s: %q", k, v))
			continue
		}
		out = append(out, n)
	}
	return out
}

func (p *parser) err() error { return errors.Join(p.errs...) }

func envStr(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
