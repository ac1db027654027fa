package scheduler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/zulandar/stagehand/internal/engine"
)

// EngineClient is the scheduler's view of the execution engine. Tests
// substitute a fake; production uses the HTTP client below.
type EngineClient interface {
	Launch(ctx context.Context, req engine.LaunchRequest) (*engine.LaunchResponse, error)
	Health(ctx context.Context) error
}

// HTTPEngine talks to a remote engine over its HTTP API.
type HTTPEngine struct {
	baseURL string
	client  *http.Client
}

// NewHTTPEngine creates a client for the engine at baseURL.
func NewHTTPEngine(baseURL string) *HTTPEngine {
	return &HTTPEngine{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Launch posts a fully-resolved launch request. A transport failure returns
// an error; an engine-side rejection comes back in the response body.
func (e *HTTPEngine) Launch(ctx context.Context, req engine.LaunchRequest) (*engine.LaunchResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("scheduler: encode launch request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/launch", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("scheduler: build launch request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := e.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("scheduler: launch %s: %w", req.RunID, err)
	}
	defer httpResp.Body.Close()

	var resp engine.LaunchResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("scheduler: decode launch response: %w", err)
	}
	return &resp, nil
}

// Health probes the engine's /health endpoint.
func (e *HTTPEngine) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("scheduler: build health request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("scheduler: engine health: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("scheduler: engine health: status %d", resp.StatusCode)
	}
	return nil
}
