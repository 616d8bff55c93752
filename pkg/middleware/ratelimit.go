package middleware

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	maxTrackedClients   = 10000
	prunedTrackedTarget = 8000
)

// RateLimitConfig bounds how often one client address may hit a limited route.
// A non-positive PerMinute disables limiting.
type RateLimitConfig struct {
	PerMinute int
	Burst     int
}

// RateLimiter keeps one token bucket per client IP.
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
	enabled  bool
	now      func() time.Time
	logger   *zap.Logger
}

// NewRateLimiter creates a per-IP limiter from cfg.
func NewRateLimiter(cfg RateLimitConfig, logger *zap.Logger) *RateLimiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	rl := &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		enabled:  cfg.PerMinute > 0,
		now:      time.Now,
		logger:   logger.Named("ratelimit"),
	}
	if rl.enabled {
		rl.limit = rate.Every(time.Minute / time.Duration(cfg.PerMinute))
		rl.burst = cfg.Burst
		if rl.burst <= 0 {
			rl.burst = cfg.PerMinute
		}
	}
	return rl
}

// Allow reports whether a request from addr may proceed now.
func (rl *RateLimiter) Allow(addr string) bool {
	if !rl.enabled {
		return true
	}
	return rl.limiterFor(clientIP(addr)).AllowN(rl.now(), 1)
}

func (rl *RateLimiter) limiterFor(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if l, ok := rl.limiters[ip]; ok {
		return l
	}

	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.limiters[ip] = l

	// Bound memory under address churn; evicted clients simply start fresh.
	if len(rl.limiters) > maxTrackedClients {
		for addr := range rl.limiters {
			if addr == ip {
				continue
			}
			delete(rl.limiters, addr)
			if len(rl.limiters) < prunedTrackedTarget {
				break
			}
		}
	}
	return l
}

// Tracked returns the number of client addresses with a live bucket.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// Limit wraps next, answering 429 once a client exhausts its bucket.
func (rl *RateLimiter) Limit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(r.RemoteAddr) {
			rl.logger.Info("Rate limit exceeded",
				zap.String("remote_addr", clientIP(r.RemoteAddr)),
				zap.String("path", r.URL.Path))

			w.Header().Set("Content-Type", "application/json")
			w.Header().Set("Retry-After", strconv.Itoa(rl.retryAfterSeconds()))
			w.WriteHeader(http.StatusTooManyRequests)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Too many connection attempts. Please try again later.",
			})
			return
		}
		next(w, r)
	}
}

func (rl *RateLimiter) retryAfterSeconds() int {
	secs := int(time.Duration(float64(time.Second) / float64(rl.limit)).Seconds())
	if secs < 1 {
		return 1
	}
	return secs
}

// clientIP strips the port from a RemoteAddr.
func clientIP(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
