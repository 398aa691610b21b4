package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDelay(t *testing.T) {
	base := 1000 * time.Millisecond
	max := 5000 * time.Millisecond

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 5000 * time.Millisecond},
		{10, 5000 * time.Millisecond},
		{100, 5000 * time.Millisecond},
	}

	for _, tt := range tests {
		got := BackoffDelay(tt.attempt, base, max)
		assert.Equal(t, tt.want, got, "attempt %d", tt.attempt)
	}
}

func TestBackoffDelayMonotonic(t *testing.T) {
	base := 1000 * time.Millisecond
	max := 5000 * time.Millisecond

	prev := time.Duration(0)
	for attempt := 0; attempt < 20; attempt++ {
		delay := BackoffDelay(attempt, base, max)
		assert.GreaterOrEqual(t, delay, prev, "delays must be non-decreasing")
		assert.LessOrEqual(t, delay, max, "delays must never exceed the cap")
		prev = delay
	}
}

func TestBackoffDelayNegativeAttempt(t *testing.T) {
	got := BackoffDelay(-3, time.Second, 5*time.Second)
	assert.Equal(t, time.Second, got)
}
