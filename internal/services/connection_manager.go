package services

import (
	"context"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/sirupsen/logrus"
)

// EVMConnectionManager routes JSON-RPC calls to a primary endpoint with
// automatic failover to a fallback. Safe for concurrent use; *ethclient.Client
// is itself concurrency-safe, so connections are shared across callers.
type EVMConnectionManager struct {
	core *failoverCore
}

func NewEVMConnectionManager(endpoint models.ChainEndpoint, policy config.RPCConfig, observer FailoverObserver, log *logrus.Logger) *EVMConnectionManager {
	dial := func(ctx context.Context, rawURL string) (interface{}, error) {
		return ethclient.DialContext(ctx, rawURL)
	}
	return &EVMConnectionManager{
		core: newFailoverCore(endpoint.ChainName, endpoint.PrimaryURL, endpoint.FallbackURL, policy, dial, observer, log),
	}
}

// ExecuteWithFailover runs op against the preferred endpoint with the
// configured retry budget, switching endpoints when the preferred one is
// exhausted. Wrap business-level errors with MarkPermanent inside op to
// stop them from being retried as connectivity failures.
func (m *EVMConnectionManager) ExecuteWithFailover(ctx context.Context, op func(ctx context.Context, client *ethclient.Client) error) error {
	return m.core.execute(ctx, func(ctx context.Context, conn interface{}) error {
		return op(ctx, conn.(*ethclient.Client))
	})
}

func (m *EVMConnectionManager) UsingFallback() bool     { return m.core.UsingFallback() }
func (m *EVMConnectionManager) CurrentEndpoint() string { return m.core.CurrentEndpoint() }
func (m *EVMConnectionManager) Stats() FailoverStats    { return m.core.Stats() }
