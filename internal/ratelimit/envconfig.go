package ratelimit

import (
	"os"
	"strconv"
	"strings"

	"swarmcore/internal/logging"
)

// resolveLimits reads OPENCODE_RATE_LIMIT_{ENDPOINT}_PER_MIN and
// _PER_HOUR. Endpoint names are upper-cased; invalid integer values fall
// back to DefaultLimits fields non-fatally.
func resolveLimits(endpoint string) Limits {
	limits := DefaultLimits

	envEndpoint := strings.ToUpper(endpoint)
	minKey := "OPENCODE_RATE_LIMIT_" + envEndpoint + "_PER_MIN"
	hourKey := "OPENCODE_RATE_LIMIT_" + envEndpoint + "_PER_HOUR"

	if v := os.Getenv(minKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limits.PerMinute = n
		} else {
			logging.RateLimitWarn("invalid %s=%q, using default %d: %v", minKey, v, DefaultLimits.PerMinute, err)
		}
	}
	if v := os.Getenv(hourKey); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limits.PerHour = n
		} else {
			logging.RateLimitWarn("invalid %s=%q, using default %d: %v", hourKey, v, DefaultLimits.PerHour, err)
		}
	}

	return limits
}
