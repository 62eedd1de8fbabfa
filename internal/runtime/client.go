// Package runtime talks to the external agent runtime service that
// actually hosts agent processes. The control plane creates, fetches
// and patches agents there over HTTP.
package runtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/agentmint/agentmint/internal/metrics"
	"github.com/agentmint/agentmint/pkg/models"
)

// Client is the runtime service surface the control plane depends on.
type Client interface {
	Create(ctx context.Context, cfg *models.RuntimeAgentConfig) (*models.RuntimeAgent, error)
	Fetch(ctx context.Context, agentID string) (*models.RuntimeAgent, error)
	Update(ctx context.Context, agentID string, patch *models.RuntimeAgentPatch) (*models.RuntimeAgent, error)
}

// UpstreamError carries a non-2xx runtime response. The body is passed
// through verbatim and never parsed.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("runtime service returned %d: %s", e.StatusCode, e.Body)
}

// HTTPClient implements Client against the runtime's REST API.
// Requests are not retried; failures surface to the caller.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Create(ctx context.Context, cfg *models.RuntimeAgentConfig) (*models.RuntimeAgent, error) {
	return c.do(ctx, http.MethodPost, "/v1/agents", cfg)
}

func (c *HTTPClient) Fetch(ctx context.Context, agentID string) (*models.RuntimeAgent, error) {
	return c.do(ctx, http.MethodGet, "/v1/agents/"+agentID, nil)
}

func (c *HTTPClient) Update(ctx context.Context, agentID string, patch *models.RuntimeAgentPatch) (*models.RuntimeAgent, error) {
	return c.do(ctx, http.MethodPatch, "/v1/agents/"+agentID, patch)
}

func (c *HTTPClient) do(ctx context.Context, method, path string, payload interface{}) (*models.RuntimeAgent, error) {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode runtime request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("failed to build runtime request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		metrics.UpstreamRequests.WithLabelValues("runtime", "error").Inc()
		return nil, fmt.Errorf("runtime request failed: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read runtime response: %w", err)
	}

	metrics.UpstreamRequests.WithLabelValues("runtime", strconv.Itoa(resp.StatusCode)).Inc()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &UpstreamError{StatusCode: resp.StatusCode, Body: string(data)}
	}

	var agent models.RuntimeAgent
	if err := json.Unmarshal(data, &agent); err != nil {
		return nil, fmt.Errorf("failed to decode runtime response: %w", err)
	}
	return &agent, nil
}
