package services

import (
	"context"
	"fmt"
	"math/big"

	"tx-engine/internal/config"
	"tx-engine/internal/metrics"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

// TriggerType distinguishes how a workflow execution was started. Scheduled
// runs tolerate slower inclusion and get a tighter fee multiplier; manual
// runs have a user waiting and pay for fast inclusion.
type TriggerType string

const (
	TriggerScheduled TriggerType = "scheduled"
	TriggerManual    TriggerType = "manual"
)

const (
	multiplierMin = 1.0
	multiplierMax = 10.0
)

// GasOverrides are optional per-workflow knobs. Zero values mean unset.
type GasOverrides struct {
	// Multiplier replaces the trigger-derived multiplier, clamped to
	// [1.0, 10.0].
	Multiplier float64
	// HardLimit replaces the computed gas limit entirely, bypassing both
	// the estimate and any multiplier.
	HardLimit uint64
}

// GasParams is a computed fee plan for one transaction.
type GasParams struct {
	Limit             uint64
	FeePerGas         *big.Int // max fee per gas (or gas price on legacy chains)
	PriorityFeePerGas *big.Int
	Dynamic           bool // true when the chain supports EIP-1559 fees
}

// gasBackend is the slice of the RPC client the strategy needs. Satisfied
// by *ethclient.Client.
type gasBackend interface {
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// GasStrategy computes gas parameters for outgoing transactions. Fee levels
// are queried live on every call; nothing here is cached, because a figure
// from a prior execution can be minutes stale on a volatile chain.
type GasStrategy struct {
	cfg config.GasConfig
	log *logrus.Logger
}

func NewGasStrategy(cfg config.GasConfig, log *logrus.Logger) *GasStrategy {
	return &GasStrategy{cfg: cfg, log: log}
}

// GetGasConfig simulates msg and derives the fee plan. A simulation failure
// is returned as a *SimulationError so the caller can surface it before any
// nonce is allocated.
func (g *GasStrategy) GetGasConfig(ctx context.Context, client gasBackend, trigger TriggerType, msg ethereum.CallMsg, chainID uint64, overrides GasOverrides) (*GasParams, error) {
	estimate, err := client.EstimateGas(ctx, msg)
	if err != nil {
		metrics.GasSimulationFailures.WithLabelValues(fmt.Sprintf("%d", chainID)).Inc()
		return nil, &SimulationError{Chain: chainID, Err: err}
	}

	multiplier := g.multiplierFor(trigger, overrides.Multiplier)
	limit := uint64(float64(estimate) * multiplier)
	if overrides.HardLimit > 0 {
		limit = overrides.HardLimit
	}

	params := &GasParams{Limit: limit}

	header, err := client.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch latest header: %w", err)
	}

	if header.BaseFee != nil {
		tip, err := client.SuggestGasTipCap(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch tip cap: %w", err)
		}
		// maxFee = 2*baseFee + tip absorbs base fee growth across a few
		// blocks while the transaction waits for inclusion.
		maxFee := new(big.Int).Mul(header.BaseFee, big.NewInt(2))
		maxFee.Add(maxFee, tip)
		params.FeePerGas = maxFee
		params.PriorityFeePerGas = tip
		params.Dynamic = true
	} else {
		price, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch gas price: %w", err)
		}
		params.FeePerGas = price
		params.PriorityFeePerGas = new(big.Int).Set(price)
	}

	g.log.WithFields(logrus.Fields{
		"chain_id":    chainID,
		"trigger":     trigger,
		"estimate":    estimate,
		"multiplier":  multiplier,
		"gas_limit":   limit,
		"fee_per_gas": params.FeePerGas.String(),
	}).Debug("computed gas config")

	return params, nil
}

// multiplierFor resolves the effective multiplier. An override wins over the
// trigger-derived default but is clamped so a typo cannot produce an
// unbounded or sub-estimate limit.
func (g *GasStrategy) multiplierFor(trigger TriggerType, override float64) float64 {
	if override > 0 {
		if override < multiplierMin {
			return multiplierMin
		}
		if override > multiplierMax {
			return multiplierMax
		}
		return override
	}
	if trigger == TriggerManual {
		return g.cfg.ManualMultiplier
	}
	return g.cfg.ScheduledMultiplier
}
