// Package middleware provides HTTP middleware components for the plugtrack API.
package middleware

import (
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	burstCapacityMultiplier    int     = 2
	maxSubmitters              int     = 1000
	defaultGlobalRPS           int     = 100
	defaultSubmitterRPS        int     = 20
	defaultAnonRPS             int     = 5
	thresholdMultiplier        float64 = 0.8
	thresholdPercentage        int     = 80
	rateLimiterCleanupInterval         = 5 * time.Minute
	rateLimiterIdleTimeout             = 1 * time.Hour
)

// SubmitterHeader identifies the submitting CI fleet or runner instance.
// The value is self-reported and used only for rate limit tiering, never
// for authorization.
const SubmitterHeader = "X-Submitter"

type (
	// RateLimiter provides rate limiting for incoming requests.
	//
	// Implementations may use in-memory token buckets (single-node deployment)
	// or distributed stores like Redis (multi-node deployment). The interface
	// enables swapping implementations without touching the middleware.
	RateLimiter interface {
		// Allow checks if a request should be allowed based on rate limits.
		// Returns true if allowed, false if rate limited.
		//
		// submitterID is the self-reported submitter identity, empty for
		// anonymous requests.
		Allow(submitterID string) bool
	}

	// InMemoryRateLimiter implements RateLimiter using golang.org/x/time/rate.
	//
	// Provides three-tier rate limiting:
	// 1. Global limit (applied to all requests)
	// 2. Per-submitter limit (applied to requests carrying X-Submitter)
	// 3. Anonymous limit (applied to requests without a submitter ID)
	//
	// Uses token bucket algorithm with configurable burst capacity.
	// Memory cleanup runs periodically to prevent unbounded growth;
	// submitters idle longer than IdleTimeout are removed.
	InMemoryRateLimiter struct {
		global        *rate.Limiter
		perSubmitter  map[string]*submitterLimiter
		anonymous     *rate.Limiter
		mu            sync.RWMutex
		cleanupTicker *time.Ticker
		done          chan struct{}

		// Configuration (stored for creating new submitter limiters and cleanup)
		submitterRPS    int
		submitterBurst  int
		cleanupInterval time.Duration
		idleTimeout     time.Duration
		maxSubmitters   int
	}

	// submitterLimiter tracks rate limit state for a single submitter.
	// Includes last access time for memory cleanup.
	submitterLimiter struct {
		limiter    *rate.Limiter
		lastAccess time.Time
		mu         sync.Mutex
	}
)

// NewInMemoryRateLimiter creates a new in-memory rate limiter with three-tier limits.
//
// Burst capacity is computed automatically as 2 x rate unless overridden in
// config. Cleanup runs periodically to prevent unbounded memory growth.
//
// Example:
//
//	rl := NewInMemoryRateLimiter(&Config{
//	    GlobalRPS:    100,
//	    SubmitterRPS: 20,
//	    AnonRPS:      5,
//	})
//	defer rl.Close()
func NewInMemoryRateLimiter(config *Config) *InMemoryRateLimiter {
	globalBurst := computeBurstCapacity(config.GlobalRPS, config.GlobalBurst)
	submitterBurst := computeBurstCapacity(config.SubmitterRPS, config.SubmitterBurst)
	anonBurst := computeBurstCapacity(config.AnonRPS, config.AnonBurst)

	rl := &InMemoryRateLimiter{
		global:          rate.NewLimiter(rate.Limit(config.GlobalRPS), globalBurst),
		perSubmitter:    make(map[string]*submitterLimiter),
		anonymous:       rate.NewLimiter(rate.Limit(config.AnonRPS), anonBurst),
		done:            make(chan struct{}),
		submitterRPS:    config.SubmitterRPS,
		submitterBurst:  submitterBurst,
		cleanupInterval: config.CleanupInterval,
		idleTimeout:     config.IdleTimeout,
		maxSubmitters:   config.MaxSubmitters,
	}

	rl.startCleanup()

	return rl
}

// computeBurstCapacity computes the burst capacity based on the rate and optional override.
//
// If burstOverride is 0, computes burst automatically as 2 x rate.
// If burstOverride > 0, uses the override value.
func computeBurstCapacity(rate, burstOverride int) int {
	if burstOverride > 0 {
		return burstOverride
	}

	return rate * burstCapacityMultiplier
}

// Allow checks if a request should be allowed based on rate limits.
// Implements the RateLimiter interface.
//
// Rate limiting is enforced in two steps:
// 1. Global limit (all requests)
// 2. Per-submitter limit (identified) OR anonymous limit
func (rl *InMemoryRateLimiter) Allow(submitterID string) bool {
	// Check global limit first (fail fast)
	if !rl.global.Allow() {
		return false
	}

	if submitterID == "" {
		return rl.anonymous.Allow()
	}

	rl.mu.RLock()
	sl, ok := rl.perSubmitter[submitterID]
	rl.mu.RUnlock()

	if !ok {
		// Lazy initialization: create limiter for this submitter
		rl.mu.Lock()
		// Double-check after acquiring write lock (avoid race)
		if sl, ok = rl.perSubmitter[submitterID]; !ok {
			sl = &submitterLimiter{
				limiter:    rate.NewLimiter(rate.Limit(rl.submitterRPS), rl.submitterBurst),
				lastAccess: time.Now(),
			}

			rl.perSubmitter[submitterID] = sl

			// Operational monitoring: warn when approaching the submitter cap
			// so operators notice submitter ID proliferation before hard limits
			currentCount := len(rl.perSubmitter)
			threshold := int(float64(rl.maxSubmitters) * thresholdMultiplier)

			if currentCount >= threshold {
				slog.Warn("rate limiter approaching max submitters limit",
					"current_submitters", currentCount,
					"max_submitters", rl.maxSubmitters,
					"threshold_percent", thresholdPercentage,
					"recommendation", "investigate submitter ID proliferation or increase max_submitters limit")
			}
		}

		rl.mu.Unlock()
	}

	// Update last access time (for cleanup)
	sl.mu.Lock()
	sl.lastAccess = time.Now()
	sl.mu.Unlock()

	return sl.limiter.Allow()
}

// Close stops the cleanup goroutine and releases resources.
// Must be called when the InMemoryRateLimiter is no longer needed.
//
// Note: Close() is not part of the RateLimiter interface to allow
// implementations that don't require cleanup. Use type assertion if
// cleanup is needed:
//
//	if closer, ok := limiter.(io.Closer); ok {
//	    closer.Close()
//	}
func (rl *InMemoryRateLimiter) Close() error {
	if rl.cleanupTicker != nil {
		rl.cleanupTicker.Stop()
	}

	close(rl.done)

	return nil
}

// startCleanup starts a background goroutine that periodically removes
// stale submitter limiters to prevent memory leaks.
func (rl *InMemoryRateLimiter) startCleanup() {
	cleanupInterval := rl.cleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = rateLimiterCleanupInterval
	}

	rl.cleanupTicker = time.NewTicker(cleanupInterval)

	go func() {
		for {
			select {
			case <-rl.cleanupTicker.C:
				rl.cleanup()
			case <-rl.done:
				return
			}
		}
	}()
}

// cleanup removes submitter limiters that haven't been accessed recently.
func (rl *InMemoryRateLimiter) cleanup() {
	idleTimeout := rl.idleTimeout
	if idleTimeout == 0 {
		idleTimeout = rateLimiterIdleTimeout
	}

	now := time.Now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	for submitterID, sl := range rl.perSubmitter {
		sl.mu.Lock()
		lastAccess := sl.lastAccess
		sl.mu.Unlock()

		if now.Sub(lastAccess) > idleTimeout {
			delete(rl.perSubmitter, submitterID)
		}
	}
}

// RateLimit returns a middleware that enforces rate limits on incoming requests.
//
// Rate limiting is applied in three tiers:
//  1. Global limit (all requests)
//  2. Per-submitter limit (requests carrying X-Submitter)
//  3. Anonymous limit (requests without a submitter ID)
//
// Health probe endpoints registered via RegisterPublicEndpoint bypass the
// limiter entirely.
//
// When a request exceeds the rate limit, the middleware returns a 429
// (Too Many Requests) response in RFC 7807 format.
func RateLimit(limiter RateLimiter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isPublicEndpoint(r.URL.Path) {
				next.ServeHTTP(w, r)

				return
			}

			submitterID := strings.TrimSpace(r.Header.Get(SubmitterHeader))

			if !limiter.Allow(submitterID) {
				correlationID := GetCorrelationID(r.Context())

				detail := "Rate limit exceeded. Please retry after some time."
				if err := writeRFC7807Error(w, r, http.StatusTooManyRequests, "Too Many Requests", detail, correlationID); err != nil {
					logger.Error("failed to write response with RFC 7807 error format",
						slog.String("correlation_id", correlationID),
						slog.String("path", r.URL.Path),
						slog.String("detail", detail),
						slog.String("error", err.Error()),
					)

					// Fallback to plain text if writeRFC7807Error fails
					http.Error(w, detail, http.StatusTooManyRequests)
				}

				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
