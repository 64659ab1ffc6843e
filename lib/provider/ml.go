package provider

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/icco/cinemate/lib/validation"
)

const (
	mlProviderName   = "ml-service"
	maxResponseBytes = 1 << 20
)

type mlRequest struct {
	Title              string `json:"title"`
	NumRecommendations int    `json:"num_recommendations,omitempty"`
}

// MLClient calls the ML similarity service: POST {title} and expect
// {recommendations: [id, ...]}.
type MLClient struct {
	endpoint           string
	numRecommendations int
	httpClient         *http.Client
	logger             *slog.Logger
}

var _ Recommender = (*MLClient)(nil)

// MLOption configures an MLClient.
type MLOption func(*MLClient)

// WithHTTPClient overrides the HTTP client. Its timeout replaces the one
// given to NewMLClient.
func WithHTTPClient(client *http.Client) MLOption {
	return func(c *MLClient) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithNumRecommendations asks the service for n identifiers. Zero leaves the
// count to the service.
func WithNumRecommendations(n int) MLOption {
	return func(c *MLClient) {
		c.numRecommendations = n
	}
}

// NewMLClient creates a client for the recommend endpoint. A zero timeout
// leaves requests bounded only by the caller's context.
func NewMLClient(endpoint string, timeout time.Duration, logger *slog.Logger, opts ...MLOption) *MLClient {
	c := &MLClient{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Recommend makes a single request to the ML service.
func (c *MLClient) Recommend(ctx context.Context, title string) ([]string, error) {
	payload, err := json.Marshal(mlRequest{Title: title, NumRecommendations: c.numRecommendations})
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("failed to encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.fail(0, fmt.Errorf("failed to make request: %w", err))
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.Error("failed to close response body", slog.Any("error", err))
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, c.fail(resp.StatusCode, fmt.Errorf("failed to read response: %w", err))
	}
	if len(body) > maxResponseBytes {
		return nil, c.fail(resp.StatusCode, fmt.Errorf("response exceeds %d bytes", maxResponseBytes))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, c.fail(resp.StatusCode, fmt.Errorf("unexpected response: %s", snippet(body)))
	}

	parsed, err := validation.ValidateAndParseProviderResponse(body)
	if err != nil {
		return nil, c.fail(resp.StatusCode, err)
	}

	ids := parsed.IDs()
	c.logger.DebugContext(ctx, "ML service returned recommendations",
		slog.String("title", title),
		slog.Int("count", len(ids)),
		slog.Duration("elapsed", time.Since(start)))
	return ids, nil
}

func (c *MLClient) fail(status int, err error) error {
	return &ProviderError{Provider: mlProviderName, StatusCode: status, Err: err}
}

// snippet shortens a response body for error messages.
func snippet(body []byte) string {
	const limit = 200
	body = bytes.TrimSpace(body)
	if len(body) > limit {
		return string(body[:limit]) + "..."
	}
	return string(body)
}
