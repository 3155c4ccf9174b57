// Package ratelimit tracks the upstream request budget advertised in the
// X-Ratelimit-Limit, X-Ratelimit-Remaining and X-Ratelimit-Reset headers and
// gates requests before the budget runs out.
package ratelimit

import (
	"time"
)

// RedisKeyState is the hash holding the shared rate limit state.
const RedisKeyState = "postview:rate_limit"

// MaxStateAge is how long a reported window gates requests without fresh
// headers. Older state no longer blocks or throttles.
const MaxStateAge = 10 * time.Minute

// Thresholds on remaining requests.
const (
	// ThresholdCritical blocks requests when remaining falls below it.
	ThresholdCritical = 5

	// ThresholdWarning throttles requests when remaining falls below it.
	ThresholdWarning = 20

	// ThresholdHealthy marks the state as healthy at or above it.
	ThresholdHealthy = 50
)

// State is the upstream rate limit window as last reported.
// It is shared across viewer sessions through Redis.
type State struct {
	// Limit is the window size (X-Ratelimit-Limit), 0 when not reported
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window
	Remaining int `json:"remaining"`

	// ResetAt is when the window resets
	ResetAt time.Time `json:"reset_at"`

	// LastUpdate is when the headers were last seen
	LastUpdate time.Time `json:"last_update"`

	IsHealthy bool `json:"is_healthy"`
}

// IsStale returns true if the state is older than maxAge.
func (s *State) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// WindowElapsed reports whether the reset time has passed or the state is
// older than MaxStateAge, in which case the remaining count no longer applies.
func (s *State) WindowElapsed() bool {
	if s.IsStale(MaxStateAge) {
		return true
	}
	return !s.ResetAt.IsZero() && !time.Now().Before(s.ResetAt)
}

// NeedsCriticalBlock returns true if requests should be blocked.
func (s *State) NeedsCriticalBlock() bool {
	return !s.WindowElapsed() && s.Remaining < ThresholdCritical
}

// NeedsThrottling returns true if requests should be slowed down.
func (s *State) NeedsThrottling() bool {
	return !s.WindowElapsed() && s.Remaining < ThresholdWarning && !s.NeedsCriticalBlock()
}

// TimeUntilReset returns the duration until the window resets, or 0.
func (s *State) TimeUntilReset() time.Duration {
	d := time.Until(s.ResetAt)
	if d < 0 {
		return 0
	}
	return d
}

// UpdateHealth recomputes IsHealthy from Remaining.
func (s *State) UpdateHealth() {
	s.IsHealthy = s.Remaining >= ThresholdHealthy
}
