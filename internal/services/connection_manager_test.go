package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"tx-engine/internal/config"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	url string
}

// recordingObserver captures state change events for assertions.
type recordingObserver struct {
	NopObserver
	mu     sync.Mutex
	events []StateEvent
}

func (o *recordingObserver) StateChange(chain string, event StateEvent, endpoint string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
}

func (o *recordingObserver) Events() []StateEvent {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]StateEvent(nil), o.events...)
}

func testPolicy() config.RPCConfig {
	return config.RPCConfig{
		MaxRetries:        3,
		AttemptTimeoutSec: 1,
		BackoffBaseMs:     1,
		BackoffMaxMs:      2,
	}
}

func newTestCore(t *testing.T, fallbackURL string, observer FailoverObserver) *failoverCore {
	t.Helper()
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	dial := func(_ context.Context, rawURL string) (interface{}, error) {
		return &fakeConn{url: rawURL}, nil
	}
	return newFailoverCore("testchain", "http://primary", fallbackURL, testPolicy(), dial, observer, log)
}

// failOn returns an operation that fails for the listed endpoint URLs and
// succeeds for all others.
func failOn(urls ...string) rawOperation {
	down := make(map[string]bool, len(urls))
	for _, u := range urls {
		down[u] = true
	}
	return func(_ context.Context, conn interface{}) error {
		if down[conn.(*fakeConn).url] {
			return errors.New("connection refused")
		}
		return nil
	}
}

func TestFailoverHealthyPrimary(t *testing.T) {
	core := newTestCore(t, "http://fallback", nil)

	require.NoError(t, core.execute(context.Background(), failOn()))

	assert.False(t, core.UsingFallback())
	assert.Equal(t, "http://primary", core.CurrentEndpoint())
	stats := core.Stats()
	assert.Equal(t, uint64(1), stats.PrimaryAttempts)
	assert.Equal(t, uint64(0), stats.FallbackAttempts)
}

func TestFailoverTransition(t *testing.T) {
	obs := &recordingObserver{}
	core := newTestCore(t, "http://fallback", obs)

	// Primary down: the call still succeeds via the fallback and the
	// preferred endpoint flips.
	require.NoError(t, core.execute(context.Background(), failOn("http://primary")))

	assert.True(t, core.UsingFallback())
	assert.Equal(t, "http://fallback", core.CurrentEndpoint())
	assert.Equal(t, []StateEvent{StateEventFailover}, obs.Events())

	stats := core.Stats()
	assert.Equal(t, uint64(3), stats.PrimaryAttempts, "primary gets the full retry budget before failover")
	assert.Equal(t, uint64(3), stats.PrimaryFailures)
	assert.Equal(t, uint64(1), stats.FallbackAttempts)
	assert.Equal(t, uint64(1), stats.FailoverCount)

	// While downgraded, operations go to the fallback first; the primary is
	// not probed as long as the fallback keeps succeeding.
	require.NoError(t, core.execute(context.Background(), failOn("http://primary")))
	assert.Equal(t, uint64(3), core.Stats().PrimaryAttempts)
	assert.Equal(t, []StateEvent{StateEventFailover}, obs.Events(), "no repeated failover events")
}

func TestFailoverRecovery(t *testing.T) {
	obs := &recordingObserver{}
	core := newTestCore(t, "http://fallback", obs)

	require.NoError(t, core.execute(context.Background(), failOn("http://primary")))
	require.True(t, core.UsingFallback())

	// Fallback degrades while the primary is healthy again: one recovery.
	require.NoError(t, core.execute(context.Background(), failOn("http://fallback")))

	assert.False(t, core.UsingFallback())
	assert.Equal(t, "http://primary", core.CurrentEndpoint())
	assert.Equal(t, []StateEvent{StateEventFailover, StateEventRecovery}, obs.Events())
}

func TestFailoverBothEndpointsDown(t *testing.T) {
	core := newTestCore(t, "http://fallback", nil)

	err := core.execute(context.Background(), failOn("http://primary", "http://fallback"))
	require.Error(t, err)

	var allErr *AllEndpointsError
	require.ErrorAs(t, err, &allErr)
	assert.Contains(t, allErr.Error(), "http://primary")
	assert.Contains(t, allErr.Error(), "http://fallback")
	require.Error(t, allErr.PrimaryErr)
	require.Error(t, allErr.FallbackErr)

	// Total failure does not move the state machine.
	assert.False(t, core.UsingFallback())
}

func TestFailoverNoFallbackConfigured(t *testing.T) {
	core := newTestCore(t, "", nil)

	err := core.execute(context.Background(), failOn("http://primary"))
	require.Error(t, err)

	var allErr *AllEndpointsError
	require.ErrorAs(t, err, &allErr)
	assert.Contains(t, allErr.Error(), "no fallback configured")
	assert.Equal(t, uint64(3), core.Stats().PrimaryAttempts)
}

func TestFailoverPermanentErrorNotRetried(t *testing.T) {
	core := newTestCore(t, "http://fallback", nil)

	sentinel := errors.New("execution reverted")
	err := core.execute(context.Background(), func(_ context.Context, _ interface{}) error {
		return MarkPermanent(sentinel)
	})

	// The business error comes back unwrapped, after a single attempt, with
	// no endpoint switch.
	require.ErrorIs(t, err, sentinel)
	var allErr *AllEndpointsError
	assert.False(t, errors.As(err, &allErr))
	assert.Equal(t, uint64(1), core.Stats().PrimaryAttempts)
	assert.False(t, core.UsingFallback())
}

func TestFailoverContextCancelled(t *testing.T) {
	core := newTestCore(t, "http://fallback", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := core.execute(ctx, failOn("http://primary", "http://fallback"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
