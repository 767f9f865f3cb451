package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/procat/backend/internal/apperr"
	"github.com/procat/backend/internal/httpapi"
)

// RateLimitConfig bounds requests per client per minute.
type RateLimitConfig struct {
	MaxPerMinute int
}

type rateWindow struct {
	count       int
	windowStart time.Time
}

// RateLimiter applies a per-client sliding-window limit at the edge. Keys are
// client IPs; expired windows are collected in the background.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	config  RateLimitConfig
	logger  *slog.Logger
}

// NewRateLimiter creates a limiter and starts its cleanup loop.
func NewRateLimiter(config RateLimitConfig) *RateLimiter {
	if config.MaxPerMinute == 0 {
		config.MaxPerMinute = 300
	}
	rl := &RateLimiter{
		windows: make(map[string]*rateWindow),
		config:  config,
		logger:  slog.Default().With("component", "rate_limiter"),
	}
	go rl.cleanup()
	return rl
}

// Allow reports whether a request for key fits in the current window.
func (rl *RateLimiter) Allow(key string) bool {
	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	window, ok := rl.windows[key]
	if !ok || now.Sub(window.windowStart) > time.Minute {
		rl.windows[key] = &rateWindow{count: 1, windowStart: now}
		return true
	}
	window.count++
	if window.count > rl.config.MaxPerMinute {
		rl.logger.Warn("rate limit exceeded", "key", key, "count", window.count)
		return false
	}
	return true
}

// Middleware rejects over-limit requests with a 503 envelope.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			host = r.RemoteAddr
		}
		if !rl.Allow(host) {
			httpapi.WriteError(w, r, apperr.New(apperr.KindServiceUnavailable, "rate limit exceeded"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (rl *RateLimiter) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		cutoff := time.Now().Add(-2 * time.Minute)
		rl.mu.Lock()
		for key, window := range rl.windows {
			if window.windowStart.Before(cutoff) {
				delete(rl.windows, key)
			}
		}
		rl.mu.Unlock()
	}
}
