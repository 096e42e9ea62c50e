package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	SequenceLockNone     = "none"
	SequenceLockRedis    = "redis"
	SequenceLockAdvisory = "advisory"

	defaultSequenceRetryLimit = 1000
)

// SequenceRetryLimit caps how many candidates (and transaction replays) a single
// code allocation may burn before giving up.
//
// Set via env:
// - SEQUENCE_RETRY_LIMIT=1000
func SequenceRetryLimit() int {
	n := intFromEnv("SEQUENCE_RETRY_LIMIT", defaultSequenceRetryLimit)
	if n <= 0 {
		return defaultSequenceRetryLimit
	}
	return n
}

// SequenceLockMode selects the optional per-scope lock taken before allocating.
//
// Set via env:
// - SEQUENCE_LOCK="none" | "redis" | "advisory"
func SequenceLockMode() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("SEQUENCE_LOCK")))
	if v == "" {
		return SequenceLockNone
	}
	return v
}

// SequenceLockTTL is the redis lock lifetime. Defaults to 30s like other
// service locks.
func SequenceLockTTL() time.Duration {
	n := intFromEnv("SEQUENCE_LOCK_TTL_SECONDS", 30)
	if n <= 0 {
		n = 30
	}
	return time.Duration(n) * time.Second
}

// ValidateSequenceLockMode rejects lock modes the configured driver can't serve.
func ValidateSequenceLockMode(mode string, driver string) error {
	switch mode {
	case SequenceLockNone, SequenceLockRedis:
		return nil
	case SequenceLockAdvisory:
		if driver != DriverPostgres {
			return fmt.Errorf("SEQUENCE_LOCK=advisory requires DB_DRIVER=postgres, got %q", driver)
		}
		return nil
	default:
		return fmt.Errorf("unknown SEQUENCE_LOCK %q", mode)
	}
}

// EnvFlag reads a boolean env flag ("1", "true", "yes", "y").
func EnvFlag(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
