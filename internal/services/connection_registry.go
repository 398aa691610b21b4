package services

import (
	"sync"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/sirupsen/logrus"
)

// ConnectionRegistry hands out one connection manager per endpoint pair, so
// failover state is shared by every caller that resolves to the same
// primary/fallback URLs. Two users pointing at the same pair share a manager;
// a user override with a different pair gets its own.
type ConnectionRegistry struct {
	policy   config.RPCConfig
	observer FailoverObserver
	log      *logrus.Logger

	mu     sync.Mutex
	evm    map[string]*EVMConnectionManager
	solana map[string]*SolanaConnectionManager
}

func NewConnectionRegistry(policy config.RPCConfig, observer FailoverObserver, log *logrus.Logger) *ConnectionRegistry {
	return &ConnectionRegistry{
		policy:   policy,
		observer: observer,
		log:      log,
		evm:      make(map[string]*EVMConnectionManager),
		solana:   make(map[string]*SolanaConnectionManager),
	}
}

func registryKey(endpoint models.ChainEndpoint) string {
	return endpoint.PrimaryURL + "|" + endpoint.FallbackURL
}

// EVMManager returns the shared manager for this endpoint pair, creating it
// on first use.
func (r *ConnectionRegistry) EVMManager(endpoint models.ChainEndpoint) *EVMConnectionManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey(endpoint)
	if mgr, ok := r.evm[key]; ok {
		return mgr
	}
	mgr := NewEVMConnectionManager(endpoint, r.policy, r.observer, r.log)
	r.evm[key] = mgr
	return mgr
}

// SolanaManager returns the shared Solana manager for this endpoint pair.
func (r *ConnectionRegistry) SolanaManager(endpoint models.ChainEndpoint) *SolanaConnectionManager {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := registryKey(endpoint)
	if mgr, ok := r.solana[key]; ok {
		return mgr
	}
	mgr := NewSolanaConnectionManager(endpoint, r.policy, r.observer, r.log)
	r.solana[key] = mgr
	return mgr
}

// Snapshot returns the stats of every live manager keyed by endpoint pair,
// for the diagnostics endpoint.
func (r *ConnectionRegistry) Snapshot() map[string]FailoverStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]FailoverStats, len(r.evm)+len(r.solana))
	for key, mgr := range r.evm {
		out["evm:"+key] = mgr.Stats()
	}
	for key, mgr := range r.solana {
		out["solana:"+key] = mgr.Stats()
	}
	return out
}
