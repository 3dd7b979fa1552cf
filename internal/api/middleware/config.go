// Package middleware provides HTTP middleware components for the plugtrack API.
package middleware

import (
	"time"

	"github.com/plugtrack-io/plugtrack/internal/config"
)

// Config holds rate limiter configuration.
//
// Rate limits specify requests per second (RPS) for three tiers:
//   - Global: Applied to all requests
//   - Per-submitter: Applied to requests carrying X-Submitter
//   - Anonymous: Applied to requests without a submitter ID
//
// Burst capacity allows temporary bursts above sustained rate.
// If burst fields are 0, they are computed automatically as 2 x rate.
type Config struct {
	// Rate limits (requests per second)
	GlobalRPS    int // Default: 100
	SubmitterRPS int // Default: 20
	AnonRPS      int // Default: 5

	// Optional burst capacity overrides (0 = compute automatically as 2 x rate)
	GlobalBurst    int // Default: 0 (computed as 2 x GlobalRPS = 200)
	SubmitterBurst int // Default: 0 (computed as 2 x SubmitterRPS = 40)
	AnonBurst      int // Default: 0 (computed as 2 x AnonRPS = 10)

	// Memory cleanup configuration
	CleanupInterval time.Duration // Default: 5 minutes
	IdleTimeout     time.Duration // Default: 1 hour
	MaxSubmitters   int           // Default: 1,000
}

// LoadConfig loads middleware config from environment variables with fallback to defaults.
//
// Default burst capacity: 2 x rate (allows 2-second burst)
// Default cleanup: every 5 minutes, removes submitters idle >1 hour
// Default max submitters: 1,000 (prevents unbounded memory growth).
func LoadConfig() *Config {
	return &Config{
		// Rate limits
		GlobalRPS:    config.GetEnvInt("PLUGTRACK_GLOBAL_RPS", defaultGlobalRPS),
		SubmitterRPS: config.GetEnvInt("PLUGTRACK_SUBMITTER_RPS", defaultSubmitterRPS),
		AnonRPS:      config.GetEnvInt("PLUGTRACK_ANON_RPS", defaultAnonRPS),

		// Burst overrides (0 = auto-compute)
		GlobalBurst:    config.GetEnvInt("PLUGTRACK_GLOBAL_BURST", 0),
		SubmitterBurst: config.GetEnvInt("PLUGTRACK_SUBMITTER_BURST", 0),
		AnonBurst:      config.GetEnvInt("PLUGTRACK_ANON_BURST", 0),

		// Cleanup configuration
		CleanupInterval: config.GetEnvDuration(
			"PLUGTRACK_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout:   config.GetEnvDuration("PLUGTRACK_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
		MaxSubmitters: config.GetEnvInt("PLUGTRACK_RATE_LIMIT_MAX_SUBMITTERS", maxSubmitters),
	}
}
