package config

import (
	"log/slog"
	"os"
	"time"
)

// stringFromEnv retrieves a string from the environment, falling back to
// the default when the key is unset or empty.
func stringFromEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// durationFromEnv retrieves a duration from the environment. The value
// must be in time.ParseDuration format, like "300ms" or "2m".
func durationFromEnv(key string, defaultValue time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		slog.With("key", key).With("value", value).With("error", err).
			Error("error parsing duration, using default value")
		return defaultValue
	}
	return d
}
