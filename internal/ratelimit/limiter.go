package ratelimit

import "context"

// Policy decides what the caller does when the limiter itself is unavailable.
type Policy string

const (
	// PolicyAllow fails open: an unreachable limiter never blocks traffic.
	PolicyAllow Policy = "allow"
	// PolicyDeny fails closed: an unreachable limiter rejects traffic.
	PolicyDeny Policy = "deny"
)

// Limiter answers whether one more event is allowed for a key within the
// sliding window. A returned error means the limiter backend is unavailable;
// the caller applies its configured Policy.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// ParsePolicy normalizes a configured policy value, defaulting to PolicyAllow.
func ParsePolicy(rawValue string) Policy {
	if Policy(rawValue) == PolicyDeny {
		return PolicyDeny
	}
	return PolicyAllow
}
