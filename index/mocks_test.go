package index

import (
	"context"
	"errors"
	"sync"
)

// fakeVectorStore is an in-memory VectorStore, standing in for qdrant the
// same way haasonsaas-nexus's index.Manager tests substitute a
// MockDocumentStore for a real database.
type fakeVectorStore struct {
	mu         sync.Mutex
	points     map[string][]Point
	upsertErr  error
	searchErr  error
	searchHits []Hit
}

func newFakeVectorStore() *fakeVectorStore {
	return &fakeVectorStore{points: make(map[string][]Point)}
}

func (f *fakeVectorStore) Upsert(ctx context.Context, collection string, dimensions int, points []Point) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.points[collection] = append(f.points[collection], points...)
	return nil
}

func (f *fakeVectorStore) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error) {
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	if f.searchHits != nil {
		return f.searchHits, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	pts := f.points[collection]
	hits := make([]Hit, 0, len(pts))
	for _, p := range pts {
		payload := make(map[string]string, len(p.Payload))
		for k, v := range p.Payload {
			if s, ok := v.(string); ok {
				payload[k] = s
			}
		}
		hits = append(hits, Hit{Key: p.Key, Score: 1, Payload: payload})
		if len(hits) == topK {
			break
		}
	}
	return hits, nil
}

// fakeEmbedder returns a fixed-width zero vector per text, sized so callers
// can assert on Dimensions() without depending on a real embedding model.
type fakeEmbedder struct {
	dims      int
	embedErr  error
	callCount int
	mu        sync.Mutex
}

func newFakeEmbedder(dims int) *fakeEmbedder { return &fakeEmbedder{dims: dims} }

func (f *fakeEmbedder) Name() string    { return "fake-embedder" }
func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.mu.Lock()
	f.callCount++
	f.mu.Unlock()
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(texts[i]))
		out[i] = vec
	}
	return out, nil
}

var errFakeEmbed = errors.New("fake embed failure")
