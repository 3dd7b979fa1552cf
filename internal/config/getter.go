// Package config provides functions for reading config settings from ENV.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvStr returns a string environment variable value or a default if not set.
//
// Example:
//
//	host := GetEnvStr("PLUGTRACK_SERVER_HOST", "0.0.0.0")
func GetEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// GetEnvInt returns an int environment variable value or a default if not set
// or not parseable as an integer.
//
// Example:
//
//	port := GetEnvInt("PLUGTRACK_SERVER_PORT", 8080)
func GetEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}

	return defaultValue
}

// GetEnvInt64 returns an int64 environment variable value or a default if not
// set or not parseable. Used for byte-size settings like max request size.
func GetEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}

	return defaultValue
}

// GetEnvBool returns a bool environment variable value or a default if not set.
// Accepts the forms understood by strconv.ParseBool ("1", "t", "true", ...).
func GetEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}

	return defaultValue
}

// GetEnvDuration returns a time.Duration environment variable value or a
// default if not set or not parseable by time.ParseDuration.
//
// Example:
//
//	timeout := GetEnvDuration("PLUGTRACK_SERVER_READ_TIMEOUT", 30*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}

	return defaultValue
}

// GetEnvLogLevel returns a slog.Level from an environment variable or a
// default if not set. Recognized values: debug, info, warn, error
// (case-insensitive).
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	if value := os.Getenv(key); value != "" {
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "debug":
			return slog.LevelDebug
		case "info":
			return slog.LevelInfo
		case "warn", "warning":
			return slog.LevelWarn
		case "error":
			return slog.LevelError
		}
	}

	return defaultValue
}

// ParseCommaSeparatedList splits a comma-separated string into a slice,
// trimming whitespace around each element and dropping empty entries.
//
// Example:
//
//	ParseCommaSeparatedList("GET, POST,OPTIONS") // ["GET", "POST", "OPTIONS"]
func ParseCommaSeparatedList(value string) []string {
	if strings.TrimSpace(value) == "" {
		return nil
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
