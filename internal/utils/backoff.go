package utils

import (
	"time"
)

// BackoffDelay computes the delay before retrying a failed endpoint
// attempt: base * 2^attempt, capped at max. Attempt numbering starts at 0,
// so with the defaults the sequence is 1s, 2s, 4s, 5s, 5s, ...
func BackoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// Guard the shift; beyond 62 the duration overflows anyway.
	if attempt > 62 {
		return max
	}
	delay := base << uint(attempt)
	if delay > max || delay <= 0 {
		return max
	}
	return delay
}
