package services

import (
	"context"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/sirupsen/logrus"
)

// SolanaConnectionManager is the Solana flavor of the connection manager.
// Same state machine and retry policy as the EVM flavor; only the client
// type and dialing differ.
type SolanaConnectionManager struct {
	core *failoverCore
}

func NewSolanaConnectionManager(endpoint models.ChainEndpoint, policy config.RPCConfig, observer FailoverObserver, log *logrus.Logger) *SolanaConnectionManager {
	dial := func(_ context.Context, rawURL string) (interface{}, error) {
		// rpc.New constructs lazily and never fails; the first call surfaces
		// connectivity errors through the retry loop.
		return rpc.New(rawURL), nil
	}
	return &SolanaConnectionManager{
		core: newFailoverCore(endpoint.ChainName, endpoint.PrimaryURL, endpoint.FallbackURL, policy, dial, observer, log),
	}
}

func (m *SolanaConnectionManager) ExecuteWithFailover(ctx context.Context, op func(ctx context.Context, client *rpc.Client) error) error {
	return m.core.execute(ctx, func(ctx context.Context, conn interface{}) error {
		return op(ctx, conn.(*rpc.Client))
	})
}

func (m *SolanaConnectionManager) UsingFallback() bool     { return m.core.UsingFallback() }
func (m *SolanaConnectionManager) CurrentEndpoint() string { return m.core.CurrentEndpoint() }
func (m *SolanaConnectionManager) Stats() FailoverStats    { return m.core.Stats() }
