package embed

import "context"

// Provider defines the interface for embedding text into vectors.
// Implementations may call remote APIs or generate vectors locally; the
// pipelines treat the computation as opaque.
type Provider interface {
	// Embed converts a slice of text strings into their vector representations.
	// Returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the dimensionality of the vectors produced by this provider.
	Dimensions() int

	// HealthCheck verifies the provider is reachable and ready.
	HealthCheck(ctx context.Context) error

	// Close releases any resources held by the provider.
	Close() error
}
