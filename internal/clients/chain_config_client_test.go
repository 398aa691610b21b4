package clients

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"tx-engine/internal/config"
	"tx-engine/internal/models"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLog() *logrus.Logger {
	log := logrus.New()
	log.SetLevel(logrus.PanicLevel)
	return log
}

func withPlatformChains(t *testing.T) {
	t.Helper()
	prev := config.AppConfig
	config.AppConfig = &config.Config{
		Chains: map[string]config.ChainConfig{
			"polygon": {
				ChainID:     137,
				Name:        "polygon",
				Family:      config.ChainFamilyEVM,
				PrimaryRPC:  "https://polygon-rpc.example",
				FallbackRPC: "https://polygon-fallback.example",
				Enabled:     true,
			},
		},
	}
	t.Cleanup(func() { config.AppConfig = prev })
}

func TestResolveRPCConfigUserOverride(t *testing.T) {
	withPlatformChains(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/v1/chains/137/rpc", r.URL.Path)
		assert.Equal(t, "user-9", r.URL.Query().Get("userId"))
		json.NewEncoder(w).Encode(models.ChainEndpoint{
			ChainID:     137,
			ChainName:   "polygon",
			PrimaryURL:  "https://users-own-node.example",
			FallbackURL: "https://polygon-fallback.example",
			Source:      models.RPCSourceUserOverride,
		})
	}))
	defer server.Close()

	client := NewChainConfigClient(config.ServiceEndpointConfig{BaseURL: server.URL}, quietLog())
	ep, err := client.ResolveRPCConfig(context.Background(), 137, "user-9")
	require.NoError(t, err)
	assert.Equal(t, "https://users-own-node.example", ep.PrimaryURL)
	assert.Equal(t, models.RPCSourceUserOverride, ep.Source)
}

func TestResolveRPCConfigUnknownChain(t *testing.T) {
	withPlatformChains(t)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	client := NewChainConfigClient(config.ServiceEndpointConfig{BaseURL: server.URL}, quietLog())
	_, err := client.ResolveRPCConfig(context.Background(), 4242, "")
	assert.ErrorIs(t, err, ErrChainNotFound)
}

func TestResolveRPCConfigFallsBackWhenServiceDown(t *testing.T) {
	withPlatformChains(t)

	// Server that refuses connections.
	server := httptest.NewServer(nil)
	server.Close()

	client := NewChainConfigClient(config.ServiceEndpointConfig{BaseURL: server.URL}, quietLog())
	ep, err := client.ResolveRPCConfig(context.Background(), 137, "user-9")
	require.NoError(t, err)
	assert.Equal(t, "https://polygon-rpc.example", ep.PrimaryURL)
	assert.Equal(t, models.RPCSourcePlatformDefault, ep.Source)

	// A chain the platform does not know either is a hard error.
	_, err = client.ResolveRPCConfig(context.Background(), 4242, "")
	assert.ErrorIs(t, err, ErrChainNotFound)
}

func TestResolveRPCConfigNoServiceConfigured(t *testing.T) {
	withPlatformChains(t)

	client := NewChainConfigClient(config.ServiceEndpointConfig{}, quietLog())
	ep, err := client.ResolveRPCConfig(context.Background(), 137, "")
	require.NoError(t, err)
	assert.Equal(t, models.RPCSourcePlatformDefault, ep.Source)
}

func TestGetExecutionContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/internal/v1/executions/exec-1", r.URL.Path)
		json.NewEncoder(w).Encode(ExecutionContext{
			ExecutionID:    "exec-1",
			WorkflowID:     "wf-1",
			UserID:         "user-9",
			OrganizationID: "org-1",
			TriggerType:    "scheduled",
		})
	}))
	defer server.Close()

	client := NewExecutionContextClient(config.ServiceEndpointConfig{BaseURL: server.URL}, quietLog())
	ec, err := client.GetContext(context.Background(), "exec-1")
	require.NoError(t, err)
	assert.Equal(t, "wf-1", ec.WorkflowID)
	assert.Equal(t, "scheduled", ec.TriggerType)

	server2 := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server2.Close()
	client = NewExecutionContextClient(config.ServiceEndpointConfig{BaseURL: server2.URL}, quietLog())
	_, err = client.GetContext(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrExecutionNotFound)
}
