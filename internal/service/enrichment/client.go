// Package enrichment decides when to ask the external enrichment service for
// contextual insights and keeps the latest result.
package enrichment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ai-live-copilot-service/internal/schema"
)

// Client fetches an enrichment for a transcript excerpt. It returns the raw
// response body; decoding and validation happen in the coordinator.
type Client interface {
	Enrich(ctx context.Context, transcript string) ([]byte, error)
}

// APIError is a non-2xx response from an enrichment backend.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("enrichment: %s (status %d)", e.Message, e.Status)
}

// TokenSource returns the current bearer credential, or "" when signed out.
type TokenSource func() string

// HTTPClient posts {transcript} to an HTTP enrichment endpoint.
type HTTPClient struct {
	endpoint string
	token    TokenSource
	http     *http.Client
}

// NewHTTPClient creates a client for endpoint.
func NewHTTPClient(endpoint string, token TokenSource, timeout time.Duration) *HTTPClient {
	if token == nil {
		token = func() string { return "" }
	}
	return &HTTPClient{
		endpoint: endpoint,
		token:    token,
		http:     &http.Client{Timeout: timeout},
	}
}

type enrichRequest struct {
	Transcript string `json:"transcript"`
}

func (c *HTTPClient) Enrich(ctx context.Context, transcript string) ([]byte, error) {
	body, err := json.Marshal(enrichRequest{Transcript: transcript})
	if err != nil {
		return nil, fmt.Errorf("encode enrichment request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build enrichment request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if tok := c.token(); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("enrichment request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := schema.ReadReply(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read enrichment response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{Status: resp.StatusCode, Message: schema.ErrorMessage(raw, resp.StatusCode)}
	}
	return raw, nil
}
