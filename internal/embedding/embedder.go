package embedding

import "context"

// Embedder converts text into vectors of a fixed dimensionality. The same
// embedder instance must serve both indexing and query embedding so that
// similarity scores are comparable.
type Embedder interface {
	// Name identifies the backend for logging and diagnostics.
	Name() string
	// Dimension returns the fixed vector dimensionality.
	Dimension() int
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
