package shadow

import "context"

// Embedder turns text chunks into dense vectors. Used by the Background
// Service Manager's indexing job (§4.10) to embed repository chunks before
// upserting them into the vector namespace that backs codebase_search.
type Embedder interface {
	Name() string
	Dimensions() int
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
