// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - New(ctx) builds a Config holding every default.
// - Load(ctx) layers an optional YAML file and PITWALL_* env vars on top.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"net/netip"
	"runtime"
	"strings"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the log handler: text or json.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":9080".
	Addr string `koanf:"addr"`

	// StoreDriver selects the document store: memory or sqlite.
	StoreDriver string `koanf:"store_driver"`

	// SQLitePath is the database file used when StoreDriver is sqlite.
	SQLitePath string `koanf:"sqlite_path"`

	// JobQueueSize bounds the in-memory optimization job queue.
	JobQueueSize int `koanf:"job_queue_size"`

	// WorkerCount sets the number of optimization job workers.
	WorkerCount int `koanf:"worker_count"`

	// IdempotencySize bounds the job idempotency-key cache.
	IdempotencySize int `koanf:"idempotency_size"`

	// TurnParallelism bounds per-turn fan-out inside one optimization.
	// 1 evaluates turns sequentially.
	TurnParallelism int `koanf:"turn_parallelism"`

	// RateLimitRPS and RateLimitBurst configure the per-client API limiter.
	// A non-positive RPS disables rate limiting.
	RateLimitRPS   float64 `koanf:"rate_limit_rps"`
	RateLimitBurst int     `koanf:"rate_limit_burst"`

	// TrustedProxies lists the CIDR prefixes or addresses of reverse proxies
	// whose X-Forwarded-For and X-Real-IP headers name the client. Empty keys
	// the limiter on the connection address only.
	TrustedProxies []string `koanf:"trusted_proxies"`

	// InboxDir is watched for session documents; empty disables the watcher.
	InboxDir string `koanf:"inbox_dir"`

	// MaxBodyBytes caps request bodies.
	MaxBodyBytes int64 `koanf:"max_body_bytes"`
}

// New creates a Config populated with defaults. Context is accepted first to
// follow the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Addr:            ":9080",
		StoreDriver:     "memory",
		SQLitePath:      "pitwall.db",
		JobQueueSize:    1_000,
		WorkerCount:     runtime.NumCPU(),
		IdempotencySize: 10_000,
		TurnParallelism: 4,
		RateLimitRPS:    20,
		RateLimitBurst:  40,
		InboxDir:        "",
		MaxBodyBytes:    4 << 20,
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Addr) == "":
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	case c.StoreDriver != "memory" && c.StoreDriver != "sqlite":
		return fmt.Errorf("%w: unknown store_driver %q", ErrInvalidConfig, c.StoreDriver)
	case c.StoreDriver == "sqlite" && strings.TrimSpace(c.SQLitePath) == "":
		return fmt.Errorf("%w: sqlite_path must not be empty", ErrInvalidConfig)
	case c.LogFormat != "text" && c.LogFormat != "json":
		return fmt.Errorf("%w: unknown log_format %q", ErrInvalidConfig, c.LogFormat)
	case c.MaxBodyBytes <= 0:
		return fmt.Errorf("%w: max_body_bytes must be positive", ErrInvalidConfig)
	}
	for _, p := range c.TrustedProxies {
		if !validProxy(strings.TrimSpace(p)) {
			return fmt.Errorf("%w: trusted_proxies entry %q is not an address or CIDR", ErrInvalidConfig, p)
		}
	}
	return nil
}

func validProxy(entry string) bool {
	if strings.Contains(entry, "/") {
		_, err := netip.ParsePrefix(entry)
		return err == nil
	}
	_, err := netip.ParseAddr(entry)
	return err == nil
}
