package services

import (
	"errors"
	"fmt"
)

var (
	// ErrChainNotConfigured is a configuration error: unknown or disabled
	// chain, or missing RPC config. Never retried.
	ErrChainNotConfigured = errors.New("chain not configured")

	// ErrLockContention is surfaced after the bounded lock-acquisition
	// retry budget is exhausted, distinctly from other failures so callers
	// can choose to re-queue.
	ErrLockContention = errors.New("wallet lock contention")

	// ErrConfirmationTimeout marks the indeterminate outcome: the
	// transaction was submitted but not confirmed within the budget. It may
	// still land; the pending row stays open for reconciliation and the
	// nonce is NOT released.
	ErrConfirmationTimeout = errors.New("transaction confirmation timeout")
)

// SimulationError is a fatal-for-this-attempt validation error (call would
// revert, insufficient balance, invalid input). It is raised before any
// nonce is allocated, so a doomed transaction never burns a nonce slot.
type SimulationError struct {
	Chain uint64
	Err   error
}

func (e *SimulationError) Error() string {
	return fmt.Sprintf("gas simulation failed on chain %d: %v", e.Chain, e.Err)
}

func (e *SimulationError) Unwrap() error {
	return e.Err
}

// AllEndpointsError is raised when both the primary and fallback endpoint
// are exhausted. Both last errors are carried so operators can distinguish
// "both endpoints down" from "the call itself is invalid".
type AllEndpointsError struct {
	Chain       string
	PrimaryURL  string
	FallbackURL string
	PrimaryErr  error
	FallbackErr error
}

func (e *AllEndpointsError) Error() string {
	if e.FallbackURL == "" {
		return fmt.Sprintf("chain %s: primary endpoint %s failed: %v (no fallback configured)",
			e.Chain, e.PrimaryURL, e.PrimaryErr)
	}
	return fmt.Sprintf("chain %s: all endpoints failed: primary %s: %v; fallback %s: %v",
		e.Chain, e.PrimaryURL, e.PrimaryErr, e.FallbackURL, e.FallbackErr)
}

func (e *AllEndpointsError) Unwrap() []error {
	errs := []error{e.PrimaryErr}
	if e.FallbackErr != nil {
		errs = append(errs, e.FallbackErr)
	}
	return errs
}

// permanentError wraps a business-level error so the failover core returns
// it immediately instead of retrying or switching endpoints. A reverting
// simulation is not an endpoint failure.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// MarkPermanent flags err as not retryable by the connection manager.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
