package docsync

import "context"

// Embedder converts one chunk of text into a vector. Implementations may be
// throttled; errors are retried at cycle granularity.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}
