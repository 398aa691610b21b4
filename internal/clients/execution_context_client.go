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

	"github.com/sirupsen/logrus"
)

// ErrExecutionNotFound means the workflow engine does not know the
// execution id.
var ErrExecutionNotFound = errors.New("execution not found")

// ExecutionContext is what the workflow engine knows about the run that
// requested a transaction.
type ExecutionContext struct {
	ExecutionID    string `json:"execution_id"`
	WorkflowID     string `json:"workflow_id"`
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	TriggerType    string `json:"trigger_type"` // scheduled | manual
}

// ExecutionContextClient fetches execution metadata from the workflow
// engine.
type ExecutionContextClient struct {
	baseURL string
	http    *http.Client
	log     *logrus.Logger
}

func NewExecutionContextClient(cfg config.ServiceEndpointConfig, log *logrus.Logger) *ExecutionContextClient {
	timeout := 10 * time.Second
	if cfg.Timeout > 0 {
		timeout = time.Duration(cfg.Timeout) * time.Second
	}
	return &ExecutionContextClient{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log,
	}
}

// GetContext looks up the execution's workflow, owner and trigger type.
func (c *ExecutionContextClient) GetContext(ctx context.Context, executionID string) (*ExecutionContext, error) {
	if c.baseURL == "" {
		return nil, errors.New("execution context service not configured")
	}

	endpoint := fmt.Sprintf("%s/internal/v1/executions/%s", c.baseURL, url.PathEscape(executionID))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execution context service unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("execution %s: %w", executionID, ErrExecutionNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("execution context service returned status %d", resp.StatusCode)
	}

	var ec ExecutionContext
	if err := json.NewDecoder(resp.Body).Decode(&ec); err != nil {
		return nil, fmt.Errorf("failed to decode execution context: %w", err)
	}
	return &ec, nil
}
