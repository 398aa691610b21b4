package services

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"tx-engine/internal/config"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGasBackend struct {
	estimate    uint64
	estimateErr error
	baseFee     *big.Int // nil for legacy chains
	tip         *big.Int
	gasPrice    *big.Int

	estimateCalls int
	feeCalls      int
}

func (f *fakeGasBackend) EstimateGas(_ context.Context, _ ethereum.CallMsg) (uint64, error) {
	f.estimateCalls++
	if f.estimateErr != nil {
		return 0, f.estimateErr
	}
	return f.estimate, nil
}

func (f *fakeGasBackend) SuggestGasTipCap(_ context.Context) (*big.Int, error) {
	f.feeCalls++
	return new(big.Int).Set(f.tip), nil
}

func (f *fakeGasBackend) SuggestGasPrice(_ context.Context) (*big.Int, error) {
	f.feeCalls++
	return new(big.Int).Set(f.gasPrice), nil
}

func (f *fakeGasBackend) HeaderByNumber(_ context.Context, _ *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: f.baseFee}, nil
}

func newGasStrategy() *GasStrategy {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return NewGasStrategy(config.GasConfig{ScheduledMultiplier: 1.2, ManualMultiplier: 1.5}, log)
}

func dynamicBackend(estimate uint64) *fakeGasBackend {
	return &fakeGasBackend{
		estimate: estimate,
		baseFee:  big.NewInt(100),
		tip:      big.NewInt(10),
	}
}

func TestGasConfigTriggerMultipliers(t *testing.T) {
	strategy := newGasStrategy()
	ctx := context.Background()

	params, err := strategy.GetGasConfig(ctx, dynamicBackend(100000), TriggerScheduled, ethereum.CallMsg{}, 1, GasOverrides{})
	require.NoError(t, err)
	assert.Equal(t, uint64(120000), params.Limit)

	params, err = strategy.GetGasConfig(ctx, dynamicBackend(100000), TriggerManual, ethereum.CallMsg{}, 1, GasOverrides{})
	require.NoError(t, err)
	assert.Equal(t, uint64(150000), params.Limit)
}

func TestGasConfigMultiplierOverrideClamped(t *testing.T) {
	strategy := newGasStrategy()
	ctx := context.Background()

	cases := []struct {
		name     string
		override float64
		want     uint64
	}{
		{"below floor clamps to 1.0", 0.5, 100000},
		{"within range kept", 2.5, 250000},
		{"above ceiling clamps to 10.0", 50, 1000000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			params, err := strategy.GetGasConfig(ctx, dynamicBackend(100000), TriggerScheduled, ethereum.CallMsg{}, 1, GasOverrides{Multiplier: tc.override})
			require.NoError(t, err)
			assert.Equal(t, tc.want, params.Limit)
		})
	}
}

func TestGasConfigHardLimitBypassesMultiplier(t *testing.T) {
	strategy := newGasStrategy()

	params, err := strategy.GetGasConfig(context.Background(), dynamicBackend(100000), TriggerManual, ethereum.CallMsg{}, 1,
		GasOverrides{Multiplier: 3.0, HardLimit: 60000})
	require.NoError(t, err)
	assert.Equal(t, uint64(60000), params.Limit)
}

func TestGasConfigSimulationFailure(t *testing.T) {
	strategy := newGasStrategy()
	backend := &fakeGasBackend{estimateErr: errors.New("execution reverted: insufficient balance")}

	_, err := strategy.GetGasConfig(context.Background(), backend, TriggerManual, ethereum.CallMsg{}, 137, GasOverrides{})
	require.Error(t, err)

	var simErr *SimulationError
	require.ErrorAs(t, err, &simErr)
	assert.Equal(t, uint64(137), simErr.Chain)
	// Simulation failure aborts before any fee query.
	assert.Equal(t, 0, backend.feeCalls)
}

func TestGasConfigDynamicFees(t *testing.T) {
	strategy := newGasStrategy()
	backend := dynamicBackend(21000)

	params, err := strategy.GetGasConfig(context.Background(), backend, TriggerScheduled, ethereum.CallMsg{}, 1, GasOverrides{})
	require.NoError(t, err)

	assert.True(t, params.Dynamic)
	// maxFee = 2*baseFee + tip.
	assert.Equal(t, big.NewInt(210), params.FeePerGas)
	assert.Equal(t, big.NewInt(10), params.PriorityFeePerGas)
}

func TestGasConfigLegacyFees(t *testing.T) {
	strategy := newGasStrategy()
	backend := &fakeGasBackend{estimate: 21000, gasPrice: big.NewInt(5000)}

	params, err := strategy.GetGasConfig(context.Background(), backend, TriggerScheduled, ethereum.CallMsg{}, 56, GasOverrides{})
	require.NoError(t, err)

	assert.False(t, params.Dynamic)
	assert.Equal(t, big.NewInt(5000), params.FeePerGas)
	assert.Equal(t, big.NewInt(5000), params.PriorityFeePerGas)
}

func TestGasConfigQueriesLiveEveryCall(t *testing.T) {
	strategy := newGasStrategy()
	backend := dynamicBackend(21000)
	ctx := context.Background()

	_, err := strategy.GetGasConfig(ctx, backend, TriggerScheduled, ethereum.CallMsg{}, 1, GasOverrides{})
	require.NoError(t, err)
	_, err = strategy.GetGasConfig(ctx, backend, TriggerScheduled, ethereum.CallMsg{}, 1, GasOverrides{})
	require.NoError(t, err)

	// No caching between calls: both the estimate and the fee level are
	// fetched fresh each time.
	assert.Equal(t, 2, backend.estimateCalls)
	assert.Equal(t, 2, backend.feeCalls)
}
