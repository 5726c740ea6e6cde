// Package middleware holds HTTP middleware for the serve mode.
package middleware

import (
	"context"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter gives each client IP a token bucket that holds perWindow
// requests and refills at perWindow per window. A perWindow of zero or less
// disables limiting.
type RateLimiter struct {
	mu        sync.Mutex
	clients   map[string]*client
	limit     rate.Limit
	perWindow int
	window    time.Duration
	whitelist map[string]struct{}
	blocked   atomic.Int64
	now       func() time.Time
	logger    *slog.Logger
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

type LimiterStats struct {
	TrackedIPs       int     `json:"tracked_ips"`
	RatePerWindow    int     `json:"rate_per_window"`
	WindowSeconds    float64 `json:"window_seconds"`
	WhitelistEntries int     `json:"whitelist_entries"`
	Blocked          int64   `json:"blocked"`
}

func NewRateLimiter(perWindow int, window time.Duration, whitelist []string, logger *slog.Logger) *RateLimiter {
	wl := make(map[string]struct{}, len(whitelist))
	for _, ip := range whitelist {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			wl[ip] = struct{}{}
		}
	}

	limit := rate.Inf
	if perWindow > 0 && window > 0 {
		limit = rate.Every(window / time.Duration(perWindow))
	}

	return &RateLimiter{
		clients:   make(map[string]*client),
		limit:     limit,
		perWindow: perWindow,
		window:    window,
		whitelist: wl,
		now:       time.Now,
		logger:    logger.With("component", "rate_limiter"),
	}
}

func (rl *RateLimiter) disabled() bool {
	return rl.limit == rate.Inf
}

// Run drops clients idle for two windows, checking every two windows,
// until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	if rl.disabled() {
		return
	}
	ticker := time.NewTicker(2 * rl.window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.sweep()
		}
	}
}

func (rl *RateLimiter) sweep() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, c := range rl.clients {
		if now.Sub(c.lastSeen) > 2*rl.window {
			delete(rl.clients, ip)
		}
	}
}

// Allow reports whether ip may make another request, and if not, how long
// until its bucket holds a token again.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	if rl.disabled() {
		return true, 0
	}
	if _, ok := rl.whitelist[ip]; ok {
		return true, 0
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	c, ok := rl.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rl.limit, rl.perWindow)}
		rl.clients[ip] = c
	}
	c.lastSeen = now

	r := c.limiter.ReserveN(now, 1)
	if delay := r.DelayFrom(now); delay > 0 {
		r.CancelAt(now)
		rl.blocked.Add(1)
		return false, delay
	}
	return true, 0
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, retry := rl.Allow(ip)
		if !ok {
			rl.logger.Warn("rate limit exceeded", "ip", ip, "path", r.URL.Path)
			secs := max(int(math.Round(retry.Seconds())), 1)
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rl.perWindow))
			w.Header().Set("X-RateLimit-Remaining", "0")
			http.Error(w, "Too Many Requests", http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) Stats() LimiterStats {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return LimiterStats{
		TrackedIPs:       len(rl.clients),
		RatePerWindow:    rl.perWindow,
		WindowSeconds:    rl.window.Seconds(),
		WhitelistEntries: len(rl.whitelist),
		Blocked:          rl.blocked.Load(),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// connection address.
func clientIP(r *http.Request) string {
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if host, _, err := net.SplitHostPort(first); err == nil {
			return host
		}
		return first
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
