package middleware

import (
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/meshboardio/meshboard/server/http/util"
)

// Rate limiting scopes. Each scope owns an independent token bucket per
// caller, keyed by the authenticated agent or by the client IP for
// unauthenticated calls.
const (
	ScopeRegister      = "register"
	ScopePostCreate    = "post-create"
	ScopeCommentCreate = "comment-create"
)

// ScopeConfig holds the limit of one rate limiting scope
type ScopeConfig struct {
	// RequestsPerMinute defines the rate at which tokens are replenished
	RequestsPerMinute float64
	// Burst defines the maximum number of requests that can be made in a burst
	Burst int
}

// RateLimiterConfig holds configuration for the API rate limiter
type RateLimiterConfig struct {
	Scopes map[string]ScopeConfig
	// CleanupInterval defines how often to clean up old limiters (how often garbage collection runs)
	CleanupInterval time.Duration
	// LimiterTTL defines how long a limiter should be kept after last use (age threshold for removal)
	LimiterTTL time.Duration
}

// DefaultRateLimiterConfig returns a default configuration
func DefaultRateLimiterConfig() *RateLimiterConfig {
	return &RateLimiterConfig{
		Scopes: map[string]ScopeConfig{
			ScopeRegister:      {RequestsPerMinute: 5.0 / 60.0, Burst: 5},
			ScopePostCreate:    {RequestsPerMinute: 10, Burst: 10},
			ScopeCommentCreate: {RequestsPerMinute: 60, Burst: 60},
		},
		CleanupInterval: 5 * time.Minute,
		// must outlive the slowest refill window so idle register buckets
		// are not reset early
		LimiterTTL: time.Hour,
	}
}

// limiterEntry holds a rate limiter and its last access time
type limiterEntry struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// RateLimiter manages per-caller rate limiting for the write endpoints
type RateLimiter struct {
	config   *RateLimiterConfig
	limiters map[string]*limiterEntry
	mu       sync.RWMutex
	stopChan chan struct{}
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config *RateLimiterConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimiterConfig()
	}

	rl := &RateLimiter{
		config:   config,
		limiters: make(map[string]*limiterEntry),
		stopChan: make(chan struct{}),
	}

	go rl.cleanupLoop()

	return rl
}

// Limit wraps a handler with the limit of the given scope. Exceeded limits
// answer 429 with a Retry-After hint.
func (rl *RateLimiter) Limit(scope string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cfg, ok := rl.config.Scopes[scope]
		if !ok {
			next(w, r)
			return
		}

		limiter := rl.getLimiter(scope+"|"+callerKey(r), cfg)
		reservation := limiter.Reserve()
		if delay := reservation.Delay(); !reservation.OK() || delay > 0 {
			reservation.Cancel()
			if reservation.OK() {
				w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(delay.Seconds()))))
			}
			util.WriteErrorResponse("rate limit exceeded, please try again later", http.StatusTooManyRequests, w)
			return
		}

		next(w, r)
	}
}

// ScopeSnapshot describes the live state of one scope for the admin stats
type ScopeSnapshot struct {
	RequestsPerMinute float64
	Burst             int
	TrackedKeys       int
}

// Snapshot returns the current per-scope limiter state
func (rl *RateLimiter) Snapshot() map[string]ScopeSnapshot {
	rl.mu.RLock()
	defer rl.mu.RUnlock()

	snapshot := make(map[string]ScopeSnapshot, len(rl.config.Scopes))
	for scope, cfg := range rl.config.Scopes {
		tracked := 0
		prefix := scope + "|"
		for key := range rl.limiters {
			if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
				tracked++
			}
		}
		snapshot[scope] = ScopeSnapshot{
			RequestsPerMinute: cfg.RequestsPerMinute,
			Burst:             cfg.Burst,
			TrackedKeys:       tracked,
		}
	}
	return snapshot
}

// getLimiter retrieves or creates a rate limiter for the given key
func (rl *RateLimiter) getLimiter(key string, cfg ScopeConfig) *rate.Limiter {
	rl.mu.RLock()
	entry, exists := rl.limiters[key]
	rl.mu.RUnlock()

	if exists {
		rl.mu.Lock()
		entry.lastAccess = time.Now()
		rl.mu.Unlock()
		return entry.limiter
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if entry, exists := rl.limiters[key]; exists {
		entry.lastAccess = time.Now()
		return entry.limiter
	}

	requestsPerSecond := cfg.RequestsPerMinute / 60.0
	limiter := rate.NewLimiter(rate.Limit(requestsPerSecond), cfg.Burst)
	rl.limiters[key] = &limiterEntry{
		limiter:    limiter,
		lastAccess: time.Now(),
	}

	return limiter
}

// cleanupLoop periodically removes old limiters that haven't been used recently
func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanup()
		case <-rl.stopChan:
			return
		}
	}
}

// cleanup removes limiters that haven't been used within the TTL period
func (rl *RateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastAccess) > rl.config.LimiterTTL {
			delete(rl.limiters, key)
		}
	}
}

// Stop stops the cleanup goroutine
func (rl *RateLimiter) Stop() {
	close(rl.stopChan)
}

// callerKey identifies the caller: the authenticated agent when present,
// the client IP otherwise
func callerKey(r *http.Request) string {
	if agent, ok := AgentFromContext(r.Context()); ok {
		return agent.ID
	}
	return getClientIP(r)
}

// getClientIP extracts the client IP address from the request.
func getClientIP(r *http.Request) string {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
