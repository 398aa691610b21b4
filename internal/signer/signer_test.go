package signer

import (
	"math/big"
	"testing"

	"tx-engine/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Well-known anvil/hardhat dev key, account 0.
const devKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

func TestPrivateKeySignerAddress(t *testing.T) {
	s, err := NewPrivateKeySigner(devKey)
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), s.Address())

	// 0x prefix is accepted too.
	s2, err := NewPrivateKeySigner("0x" + devKey)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), s2.Address())
}

func TestPrivateKeySignerRejectsGarbage(t *testing.T) {
	_, err := NewPrivateKeySigner("not-a-key")
	assert.Error(t, err)
}

func TestSignTxRecoversSender(t *testing.T) {
	s, err := NewPrivateKeySigner(devKey)
	require.NoError(t, err)

	chainID := big.NewInt(137)
	to := common.HexToAddress("0x000000000000000000000000000000000000dEaD")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(1),
	})

	signed, err := s.SignTx(tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	assert.Equal(t, s.Address(), sender)
}

func TestProvider(t *testing.T) {
	p, err := NewProvider(map[string]config.SignerConfig{
		"org-1": {PrivateKey: devKey},
		"org-2": {}, // unset key is skipped, not an error
	})
	require.NoError(t, err)

	_, err = p.ForOrganization("org-1")
	assert.NoError(t, err)
	_, err = p.ForOrganization("org-2")
	assert.Error(t, err)
	_, err = p.ForOrganization("unknown")
	assert.Error(t, err)
}
