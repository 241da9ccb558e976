package embed

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
)

// MockProvider is a test implementation that generates deterministic
// embeddings by hashing the input text.
type MockProvider struct {
	dimensions int

	// FailNext, when non-nil, is returned by the next Embed call and cleared.
	FailNext error

	// Calls records the batch sizes seen by Embed, for batching assertions.
	Calls []int
}

// NewMockProvider creates a mock embedding provider for testing.
func NewMockProvider() *MockProvider {
	return &MockProvider{
		dimensions: 384, // Standard dimension for sentence transformers
	}
}

// Embed generates mock embeddings by hashing the input text.
// This ensures deterministic, reproducible embeddings for testing.
func (p *MockProvider) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if err := p.FailNext; err != nil {
		p.FailNext = nil
		return nil, err
	}
	p.Calls = append(p.Calls, len(texts))

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		hash := sha256.Sum256([]byte(text))

		embedding := make([]float32, p.dimensions)
		for j := 0; j < p.dimensions; j++ {
			offset := (j * 4) % len(hash)
			val := binary.BigEndian.Uint32(hash[offset : offset+4])
			// Normalize to [-1, 1] range
			embedding[j] = (float32(val)/float32(1<<32))*2.0 - 1.0
		}

		embeddings[i] = embedding
	}

	return embeddings, nil
}

// Dimensions returns the dimensionality of mock embeddings.
func (p *MockProvider) Dimensions() int {
	return p.dimensions
}

// HealthCheck always succeeds for the mock provider.
func (p *MockProvider) HealthCheck(ctx context.Context) error {
	return nil
}

// Close is a no-op for mock provider.
func (p *MockProvider) Close() error {
	return nil
}
