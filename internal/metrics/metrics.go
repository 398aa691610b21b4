package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ============================================
	// RPC endpoint / failover metrics
	// ============================================
	RPCAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_rpc_attempts_total",
			Help: "Total RPC attempts, by chain and endpoint role (primary/fallback)",
		},
		[]string{"chain", "role"},
	)

	RPCFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_rpc_failures_total",
			Help: "Total failed RPC attempts, by chain and endpoint role",
		},
		[]string{"chain", "role"},
	)

	FailoverEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_failover_events_total",
			Help: "Connection manager state transitions (failover/recovery)",
		},
		[]string{"chain", "event"},
	)

	UsingFallback = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "txengine_rpc_using_fallback",
			Help: "Whether a chain's connection manager is on its fallback endpoint (1=yes)",
		},
		[]string{"chain"},
	)

	// ============================================
	// Nonce session metrics
	// ============================================
	NonceSessionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "txengine_nonce_sessions_active",
		Help: "Number of currently open nonce sessions",
	})

	LockContention = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_wallet_lock_contention_total",
			Help: "Wallet lock acquisition attempts that found the lock held",
		},
		[]string{"chain"},
	)

	StaleLocksReclaimed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "txengine_stale_locks_reclaimed_total",
		Help: "Wallet locks reclaimed from crashed holders",
	})

	// ============================================
	// Transaction metrics
	// ============================================
	TransactionsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_transactions_submitted_total",
			Help: "Transactions submitted, by chain",
		},
		[]string{"chain"},
	)

	TransactionsResolved = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_transactions_resolved_total",
			Help: "Transactions resolved, by chain and final status",
		},
		[]string{"chain", "status"},
	)

	ConfirmationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "txengine_confirmation_duration_seconds",
			Help:    "Time from submission to confirmation",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300},
		},
		[]string{"chain"},
	)

	GasSimulationFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "txengine_gas_simulation_failures_total",
			Help: "Gas estimations rejected before nonce allocation",
		},
		[]string{"chain"},
	)
)
