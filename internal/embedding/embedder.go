package embedding

import "context"

// Embedder converts passage text into a fixed-length vector. Implementations
// may require a preparation phase over the document corpus before Embed is
// called; Prepare must complete before any concurrent Embed calls.
type Embedder interface {
	Name() string
	Prepare(corpus []string) error
	Dimension() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
