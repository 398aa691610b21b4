package services

import (
	"tx-engine/internal/events"
	"tx-engine/internal/metrics"
)

// EndpointRole identifies which endpoint of a connection manager an
// observation refers to.
type EndpointRole string

const (
	RolePrimary  EndpointRole = "primary"
	RoleFallback EndpointRole = "fallback"
)

// StateEvent is a connection manager state transition.
type StateEvent string

const (
	StateEventFailover StateEvent = "failover"
	StateEventRecovery StateEvent = "recovery"
)

// FailoverObserver receives per-attempt and state-change notifications from
// connection managers. Observations are operational, independent of
// business-level success; implementations must be cheap and non-blocking.
type FailoverObserver interface {
	ConnectionAttempt(chain string, role EndpointRole, endpoint string)
	ConnectionFailure(chain string, role EndpointRole, endpoint string, err error)
	StateChange(chain string, event StateEvent, endpoint string)
}

// NopObserver ignores all observations. Default for tests and for callers
// that do not care.
type NopObserver struct{}

func (NopObserver) ConnectionAttempt(string, EndpointRole, string)        {}
func (NopObserver) ConnectionFailure(string, EndpointRole, string, error) {}
func (NopObserver) StateChange(string, StateEvent, string)                {}

// MetricsObserver feeds Prometheus collectors and, when a publisher is
// configured, emits failover/recovery events on the message bus.
type MetricsObserver struct {
	Publisher *events.Publisher
}

func (o *MetricsObserver) ConnectionAttempt(chain string, role EndpointRole, endpoint string) {
	metrics.RPCAttempts.WithLabelValues(chain, string(role)).Inc()
}

func (o *MetricsObserver) ConnectionFailure(chain string, role EndpointRole, endpoint string, err error) {
	metrics.RPCFailures.WithLabelValues(chain, string(role)).Inc()
}

func (o *MetricsObserver) StateChange(chain string, event StateEvent, endpoint string) {
	metrics.FailoverEvents.WithLabelValues(chain, string(event)).Inc()
	if event == StateEventFailover {
		metrics.UsingFallback.WithLabelValues(chain).Set(1)
	} else {
		metrics.UsingFallback.WithLabelValues(chain).Set(0)
	}
	o.Publisher.PublishFailoverEvent(chain, string(event), endpoint)
}
