package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// HTTPProvider talks to an embedding service over HTTP.
// The endpoint accepts {"texts": [...]} and returns {"embeddings": [[...]]}.
type HTTPProvider struct {
	endpoint   string
	dimensions int
	client     *http.Client
}

// NewHTTPProvider creates a provider for the given embedding endpoint.
func NewHTTPProvider(endpoint string, dimensions int) *HTTPProvider {
	return &HTTPProvider{
		endpoint:   endpoint,
		dimensions: dimensions,
		client:     &http.Client{Timeout: 60 * time.Second},
	}
}

// embedRequest represents the JSON request body for the embed endpoint.
type embedRequest struct {
	Texts []string `json:"texts"`
}

// embedResponse represents the JSON response from the embed endpoint.
type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed converts a slice of text strings into their vector representations.
func (p *HTTPProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	jsonData, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding server returned status %d", resp.StatusCode)
	}

	var embedResp embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&embedResp); err != nil {
		return nil, fmt.Errorf("failed to decode embedding response: %w", err)
	}

	if len(embedResp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: sent %d texts, got %d vectors",
			len(texts), len(embedResp.Embeddings))
	}

	return embedResp.Embeddings, nil
}

// Dimensions returns the configured embedding dimensionality.
func (p *HTTPProvider) Dimensions() int {
	return p.dimensions
}

// HealthCheck probes the service root with a short timeout.
func (p *HTTPProvider) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	base := strings.TrimSuffix(p.endpoint, "/embed")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base, nil)
	if err != nil {
		return err
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("embedding server unreachable: %w", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("embedding server health check returned status %d", resp.StatusCode)
	}
	return nil
}

// Close releases resources. The HTTP provider holds none beyond the client.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
