// Package signer holds per-organization signing keys and signs outgoing
// transactions. Keys arrive through configuration (env-injected in
// deployment); nothing here persists key material.
package signer

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"tx-engine/internal/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer signs transactions for one wallet.
type Signer interface {
	Address() common.Address
	SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// PrivateKeySigner signs with an in-memory secp256k1 key.
type PrivateKeySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewPrivateKeySigner(hexKey string) (*PrivateKeySigner, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &PrivateKeySigner{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (s *PrivateKeySigner) Address() common.Address {
	return s.address
}

func (s *PrivateKeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// Provider resolves the signer for an organization.
type Provider struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

func NewProvider(configs map[string]config.SignerConfig) (*Provider, error) {
	signers := make(map[string]Signer, len(configs))
	for orgID, cfg := range configs {
		if cfg.PrivateKey == "" {
			continue
		}
		s, err := NewPrivateKeySigner(cfg.PrivateKey)
		if err != nil {
			return nil, fmt.Errorf("signer for organization %s: %w", orgID, err)
		}
		signers[orgID] = s
	}
	return &Provider{signers: signers}, nil
}

// ForOrganization returns the signer configured for orgID.
func (p *Provider) ForOrganization(orgID string) (Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	s, ok := p.signers[orgID]
	if !ok {
		return nil, fmt.Errorf("no signer configured for organization %s", orgID)
	}
	return s, nil
}
