package reliability

import (
	"os"
	"strconv"
	"time"
)

// ReliabilityConfig holds configuration for reliability testing
type ReliabilityConfig struct {
	Level         string        // "basic" or "stress"
	Duration      time.Duration // Test duration for stress tests
	MaxGoroutines int           // Maximum goroutines for concurrent tests
}

// getReliabilityConfig reads configuration from environment variables
func getReliabilityConfig() ReliabilityConfig {
	return ReliabilityConfig{
		Level:         os.Getenv("TRACECTX_RELIABILITY_LEVEL"),
		Duration:      parseDuration(os.Getenv("TRACECTX_RELIABILITY_DURATION")),
		MaxGoroutines: parseInt(os.Getenv("TRACECTX_RELIABILITY_MAX_GOROUTINES"), 100),
	}
}

func parseInt(s string, def int) int {
	if value, err := strconv.Atoi(s); err == nil && value > 0 {
		return value
	}
	return def
}

func parseDuration(s string) time.Duration {
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	return 30 * time.Second
}
