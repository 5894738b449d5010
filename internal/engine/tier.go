package engine

import (
	"regexp"
	"strings"
)

// Tier selects the engine build: multi-worker where shared-memory workers are
// available, single-worker otherwise.
type Tier string

const (
	// TierMulti lets the engine use as many worker threads as it wants.
	TierMulti Tier = "multi"
	// TierSingle pins the engine to one worker thread.
	TierSingle Tier = "single"
)

var bareIPv4Origin = regexp.MustCompile(`^https?://\d+\.\d+\.\d+\.\d+`)

// SelectTier probes the hosting origin. Secure contexts and localhost-like
// origins get the multi-worker tier; a bare IPv4 origin over plain http falls
// back to the single-worker tier because cross-origin isolation is not
// available there.
func SelectTier(origin string, secureContext bool) Tier {
	if secureContext {
		return TierMulti
	}
	if strings.Contains(origin, "localhost") || strings.Contains(origin, ".local") {
		return TierMulti
	}
	if bareIPv4Origin.MatchString(origin) && !strings.HasPrefix(origin, "https://") {
		return TierSingle
	}
	return TierMulti
}
