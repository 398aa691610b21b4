// Package clients holds HTTP clients for internal collaborator services.
package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/sirupsen/logrus"
)

// ErrChainNotFound means neither the configuration service nor the platform
// defaults know the chain.
var ErrChainNotFound = errors.New("chain not found in configuration")

// ChainConfigClient resolves RPC endpoint pairs from the chain
// configuration service. Endpoint config is owned there, not here: users
// can register their own RPC endpoints and those take priority over the
// platform defaults.
type ChainConfigClient struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func NewChainConfigClient(cfg config.ServiceEndpointConfig, log *logrus.Logger) *ChainConfigClient {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &ChainConfigClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// ResolveRPCConfig returns the endpoint pair to use for chainID on behalf
// of userID. Resolution happens per request so endpoint changes take effect
// without a restart. When the configuration service is unreachable the
// platform defaults keep submissions flowing.
func (c *ChainConfigClient) ResolveRPCConfig(ctx context.Context, chainID uint64, userID string) (*models.ChainEndpoint, error) {
	if c.baseURL == "" {
		return c.platformDefault(chainID)
	}

	endpoint := fmt.Sprintf("%s/internal/v1/chains/%d/rpc", c.baseURL, chainID)
	if userID != "" {
		endpoint += "?userId=" + url.QueryEscape(userID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("chain_id", chainID).
			Warn("chain config service unreachable, using platform defaults")
		return c.platformDefault(chainID)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotFound)
	default:
		c.log.WithFields(logrus.Fields{
			"chain_id": chainID,
			"status":   resp.StatusCode,
		}).Warn("chain config service error, using platform defaults")
		return c.platformDefault(chainID)
	}

	var ep models.ChainEndpoint
	if err := json.NewDecoder(resp.Body).Decode(&ep); err != nil {
		return nil, fmt.Errorf("failed to decode chain config response: %w", err)
	}
	if ep.PrimaryURL == "" {
		return nil, fmt.Errorf("chain %d: empty primary endpoint: %w", chainID, ErrChainNotFound)
	}
	return &ep, nil
}

func (c *ChainConfigClient) platformDefault(chainID uint64) (*models.ChainEndpoint, error) {
	chain, err := config.GetChainConfig(chainID)
	if err != nil {
		return nil, fmt.Errorf("chain %d: %w", chainID, ErrChainNotFound)
	}
	return &models.ChainEndpoint{
		ChainID:     chain.ChainID,
		ChainName:   chain.Name,
		PrimaryURL:  chain.PrimaryRPC,
		FallbackURL: chain.FallbackRPC,
		Source:      models.RPCSourcePlatformDefault,
	}, nil
}
