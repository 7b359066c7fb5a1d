package openaicompat

import (
	"context"
	"fmt"

	sdk "github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	shadow "github.com/shadowhq/shadow"
)

// Embedding implements shadow.Embedder against OpenAI's embeddings
// endpoint, grounded on the same sdk.Client construction Provider uses.
// Used by the Background Service Manager's indexing job (index.Indexer)
// and by tools/workspace's codebase_search tool (index.Searcher) to embed
// repository chunks and search queries into the same vector space.
type Embedding struct {
	client     sdk.Client
	model      string
	dimensions int
}

// NewEmbedding creates an OpenAI-backed embedder for model (e.g.
// "text-embedding-3-small"), reporting dimensions as its output width.
func NewEmbedding(apiKey, model string, dimensions int) *Embedding {
	return &Embedding{
		client:     sdk.NewClient(option.WithAPIKey(apiKey)),
		model:      model,
		dimensions: dimensions,
	}
}

func (e *Embedding) Name() string   { return "openai" }
func (e *Embedding) Dimensions() int { return e.dimensions }

// Embed batches texts into a single embeddings request and returns one
// vector per input, in order.
func (e *Embedding) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	resp, err := e.client.Embeddings.New(ctx, sdk.EmbeddingNewParams{
		Model: sdk.EmbeddingModel(e.model),
		Input: sdk.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Dimensions: sdk.Int(int64(e.dimensions)),
	})
	if err != nil {
		return nil, &shadow.ProviderTransportError{Provider: e.Name(), Cause: err}
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("openai embeddings: expected %d vectors, got %d", len(texts), len(resp.Data))
	}

	vectors := make([][]float32, len(resp.Data))
	for _, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		vectors[d.Index] = vec
	}
	return vectors, nil
}

var _ shadow.Embedder = (*Embedding)(nil)
