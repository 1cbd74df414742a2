// Package embeddings defines the port the knowledge-base adapter uses to
// turn text into vectors before running similarity search.
package embeddings

import "context"

// Provider embeds text for storage in, or search against, a vector index.
type Provider interface {
	// Embed returns the embedding vector for a single piece of text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimensions returns the vector width this provider produces.
	Dimensions() int
}
