package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"tx-engine/internal/config"
	"tx-engine/internal/utils"

	"github.com/sirupsen/logrus"
)

// dialFunc opens a connection to one endpoint. The returned value is the
// protocol-specific client; typed wrappers assert it back.
type dialFunc func(ctx context.Context, rawURL string) (interface{}, error)

// rawOperation is a single logical call executed against one connection.
type rawOperation func(ctx context.Context, conn interface{}) error

// FailoverStats is a snapshot of a connection manager's counters.
type FailoverStats struct {
	PrimaryAttempts  uint64    `json:"primary_attempts"`
	PrimaryFailures  uint64    `json:"primary_failures"`
	FallbackAttempts uint64    `json:"fallback_attempts"`
	FallbackFailures uint64    `json:"fallback_failures"`
	FailoverCount    uint64    `json:"failover_count"`
	UsingFallback    bool      `json:"using_fallback"`
	LastFailoverAt   time.Time `json:"last_failover_at,omitempty"`
}

// failoverCore implements the two-state primary/fallback machine shared by
// both wire-protocol flavors. The state is exactly one bit: which endpoint
// is preferred. It only changes when an operation succeeds against the
// other endpoint after the preferred one was exhausted, so a flapping
// endpoint cannot move the state on failures alone.
type failoverCore struct {
	chain       string
	primaryURL  string
	fallbackURL string
	dial        dialFunc
	policy      config.RPCConfig
	observer    FailoverObserver
	log         *logrus.Entry

	mu            sync.Mutex
	usingFallback bool
	conns         map[EndpointRole]interface{}
	stats         FailoverStats
}

func newFailoverCore(chain, primaryURL, fallbackURL string, policy config.RPCConfig, dial dialFunc, observer FailoverObserver, log *logrus.Logger) *failoverCore {
	if observer == nil {
		observer = NopObserver{}
	}
	return &failoverCore{
		chain:       chain,
		primaryURL:  primaryURL,
		fallbackURL: fallbackURL,
		dial:        dial,
		policy:      policy,
		observer:    observer,
		log: log.WithFields(logrus.Fields{
			"component": "connection_manager",
			"chain":     chain,
		}),
	}
}

func (f *failoverCore) endpointURL(role EndpointRole) string {
	if role == RoleFallback {
		return f.fallbackURL
	}
	return f.primaryURL
}

// UsingFallback reports whether the fallback endpoint is currently preferred.
func (f *failoverCore) UsingFallback() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usingFallback
}

// CurrentEndpoint returns the URL of the currently preferred endpoint.
func (f *failoverCore) CurrentEndpoint() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.usingFallback {
		return f.fallbackURL
	}
	return f.primaryURL
}

// Stats returns a snapshot of the manager's counters.
func (f *failoverCore) Stats() FailoverStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := f.stats
	s.UsingFallback = f.usingFallback
	return s
}

// execute runs op with retries against the preferred endpoint, then against
// the other endpoint. A success against the non-preferred endpoint flips the
// state (failover or recovery). When both endpoints are exhausted the state
// is left unchanged and an AllEndpointsError carries both last errors.
func (f *failoverCore) execute(ctx context.Context, op rawOperation) error {
	f.mu.Lock()
	onFallback := f.usingFallback
	f.mu.Unlock()

	first, second := RolePrimary, RoleFallback
	if onFallback {
		first, second = RoleFallback, RolePrimary
	}

	firstErr := f.tryEndpoint(ctx, first, op)
	if firstErr == nil {
		return nil
	}
	var pe *permanentError
	if errors.As(firstErr, &pe) {
		return pe.err
	}

	if f.fallbackURL == "" {
		return &AllEndpointsError{
			Chain:      f.chain,
			PrimaryURL: f.primaryURL,
			PrimaryErr: firstErr,
		}
	}

	secondErr := f.tryEndpoint(ctx, second, op)
	if secondErr == nil {
		f.transition(second)
		return nil
	}
	if errors.As(secondErr, &pe) {
		return pe.err
	}

	combined := &AllEndpointsError{
		Chain:       f.chain,
		PrimaryURL:  f.primaryURL,
		FallbackURL: f.fallbackURL,
	}
	if first == RolePrimary {
		combined.PrimaryErr, combined.FallbackErr = firstErr, secondErr
	} else {
		combined.PrimaryErr, combined.FallbackErr = secondErr, firstErr
	}
	return combined
}

// tryEndpoint runs op against one endpoint with the configured retry budget.
// A permanentError short-circuits the retry loop and is passed through for
// execute to unwrap.
func (f *failoverCore) tryEndpoint(ctx context.Context, role EndpointRole, op rawOperation) error {
	url := f.endpointURL(role)

	conn, err := f.connection(ctx, role)
	if err != nil {
		f.recordFailure(role)
		f.observer.ConnectionFailure(f.chain, role, url, err)
		return fmt.Errorf("dial %s endpoint %s: %w", role, url, err)
	}

	var lastErr error
	for attempt := 0; attempt < f.policy.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		f.recordAttempt(role)
		f.observer.ConnectionAttempt(f.chain, role, url)

		attemptCtx, cancel := context.WithTimeout(ctx, f.policy.AttemptTimeout())
		err := op(attemptCtx, conn)
		cancel()
		if err == nil {
			return nil
		}

		var pe *permanentError
		if errors.As(err, &pe) {
			return err
		}

		lastErr = err
		f.recordFailure(role)
		f.observer.ConnectionFailure(f.chain, role, url, err)
		f.log.WithError(err).WithFields(logrus.Fields{
			"role":    role,
			"attempt": attempt + 1,
		}).Warn("RPC attempt failed")

		if attempt < f.policy.MaxRetries-1 {
			delay := utils.BackoffDelay(attempt,
				time.Duration(f.policy.BackoffBaseMs)*time.Millisecond,
				time.Duration(f.policy.BackoffMaxMs)*time.Millisecond)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return fmt.Errorf("%s endpoint %s exhausted after %d attempts: %w",
		role, url, f.policy.MaxRetries, lastErr)
}

// connection returns the cached client for role, dialing on first use.
func (f *failoverCore) connection(ctx context.Context, role EndpointRole) (interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.conns == nil {
		f.conns = make(map[EndpointRole]interface{})
	}
	if conn, ok := f.conns[role]; ok {
		return conn, nil
	}
	conn, err := f.dial(ctx, f.endpointURL(role))
	if err != nil {
		return nil, err
	}
	f.conns[role] = conn
	return conn, nil
}

// transition moves the preferred endpoint to winner. Concurrent callers may
// both observe a success against the same endpoint; only the first flip
// emits an event.
func (f *failoverCore) transition(winner EndpointRole) {
	f.mu.Lock()
	wantFallback := winner == RoleFallback
	if f.usingFallback == wantFallback {
		f.mu.Unlock()
		return
	}
	f.usingFallback = wantFallback
	event := StateEventRecovery
	if wantFallback {
		event = StateEventFailover
		f.stats.FailoverCount++
		f.stats.LastFailoverAt = time.Now()
	}
	endpoint := f.endpointURL(winner)
	f.mu.Unlock()

	f.log.WithFields(logrus.Fields{
		"event":    event,
		"endpoint": endpoint,
	}).Warn("connection manager state change")
	f.observer.StateChange(f.chain, event, endpoint)
}

func (f *failoverCore) recordAttempt(role EndpointRole) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role == RoleFallback {
		f.stats.FallbackAttempts++
	} else {
		f.stats.PrimaryAttempts++
	}
}

func (f *failoverCore) recordFailure(role EndpointRole) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if role == RoleFallback {
		f.stats.FallbackFailures++
	} else {
		f.stats.PrimaryFailures++
	}
}
