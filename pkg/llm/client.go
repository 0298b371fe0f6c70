package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/flowforge-io/core/pkg/contracts"
)

const maxResponseBytes = 4 << 20

// HTTPGenerator calls the generator service over HTTP. Requests are
// throttled through a shared rate limiter so bursts of validation
// traffic cannot saturate the upstream model.
type HTTPGenerator struct {
	baseURL string
	client  *http.Client
	limiter *rate.Limiter
}

// NewHTTPGenerator creates a client for the generator at baseURL,
// allowing rps requests per second with the given burst.
func NewHTTPGenerator(baseURL string, rps float64, burst int) *HTTPGenerator {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &HTTPGenerator{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 60 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// WithHTTPClient overrides the underlying client, for tests.
func (g *HTTPGenerator) WithHTTPClient(client *http.Client) *HTTPGenerator {
	g.client = client
	return g
}

// Generate posts the request and decodes the proposed rule set. Non-2xx
// statuses become *StatusError so the caller can branch on retryability.
func (g *HTTPGenerator) Generate(ctx context.Context, req *GenerateRequest) (*contracts.GeneratorResponse, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("llm: rate limit wait: %w", err)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("llm: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/workflows/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("llm: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("llm: call generator: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("llm: read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(string(raw), 256)}
	}

	var out contracts.GeneratorResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, &MalformedBodyError{Err: err}
	}
	return &out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
