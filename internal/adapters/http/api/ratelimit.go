package api

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/okian/pitwall/pkg/metrics"
)

const (
	// staleLimiterTTL is how long a per-client limiter may sit idle before it
	// is dropped.
	staleLimiterTTL = 10 * time.Minute
	cleanupInterval = time.Minute
)

// unlimitedPaths are never rate limited so probes and scrapes keep working.
var unlimitedPaths = map[string]bool{"/healthz": true, "/metrics": true}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter applies a token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*limiterEntry
	rps      rate.Limit
	burst    int
	nowFunc  func() time.Time
	stopOnce sync.Once
	stopCh   chan struct{}

	// trusted peers may name the client in X-Forwarded-For or X-Real-IP.
	trusted []netip.Prefix
}

// LimiterOption configures a RateLimiter.
type LimiterOption func(*RateLimiter)

// WithTrustedProxies makes the limiter key on forwarded client addresses for
// requests whose peer lies in one of prefixes. Requests from any other peer
// are keyed on their connection address and forwarding headers are ignored.
func WithTrustedProxies(prefixes ...netip.Prefix) LimiterOption {
	return func(rl *RateLimiter) {
		rl.trusted = append(rl.trusted, prefixes...)
	}
}

// NewRateLimiter creates a limiter allowing rps requests per second per
// client with the given burst. It starts a background sweep of idle clients;
// call Stop to end it.
func NewRateLimiter(rps float64, burst int, opts ...LimiterOption) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	rl := &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rate.Limit(rps),
		burst:    burst,
		nowFunc:  time.Now,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(rl)
	}
	go rl.cleanupLoop()
	return rl
}

// Stop ends the background sweep. Safe to call multiple times.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCh) })
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-rl.stopCh:
			return
		case <-ticker.C:
			rl.evictStale()
		}
	}
}

func (rl *RateLimiter) evictStale() {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > staleLimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// ClientCount returns the number of tracked clients.
func (rl *RateLimiter) ClientCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Wrap returns an http.Handler that rejects clients over their budget with 429.
func (rl *RateLimiter) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if unlimitedPaths[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}
		if !rl.limiter(rl.clientIP(r)).Allow() {
			metrics.RecordRateLimited(r.URL.Path)
			w.Header().Set("Retry-After", "1")
			writeFailure(w, NewKind("api.rate_limit", ErrRateLimited))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) limiter(client string) *rate.Limiter {
	now := rl.nowFunc()
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, ok := rl.limiters[client]; ok {
		entry.lastSeen = now
		return entry.limiter
	}
	l := rate.NewLimiter(rl.rps, rl.burst)
	rl.limiters[client] = &limiterEntry{limiter: l, lastSeen: now}
	return l
}

// clientIP keys a request on its connection address. Behind a trusted proxy
// it walks X-Forwarded-For from the right and takes the first untrusted hop,
// falling back to X-Real-IP.
func (rl *RateLimiter) clientIP(r *http.Request) string {
	peer := remoteHost(r.RemoteAddr)
	if !rl.isTrusted(peer) {
		return peer
	}
	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop := strings.TrimSpace(hops[i])
			if hop == "" {
				continue
			}
			if !rl.isTrusted(hop) {
				return hop
			}
		}
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}
	return peer
}

func (rl *RateLimiter) isTrusted(host string) bool {
	if len(rl.trusted) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range rl.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func remoteHost(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}

// ParseTrustedProxies reads proxy entries given as CIDR prefixes or bare
// addresses.
func ParseTrustedProxies(entries []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(entries))
	for _, e := range entries {
		e = strings.TrimSpace(e)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
			}
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("trusted proxy %q: %w", e, err)
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}
