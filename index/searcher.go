package index

import (
	"context"
	"fmt"
	"strings"

	shadow "github.com/shadowhq/shadow"
	"github.com/shadowhq/shadow/tools/workspace"
)

// Searcher implements tools/workspace.Searcher: it embeds the query,
// queries the repository's qdrant collection, and applies client-side
// directory-prefix filtering (qdrant's keyword Match condition is
// exact-equality only, so "src/api" would not match "src/api/v2" there).
type Searcher struct {
	store    VectorStore
	embedder shadow.Embedder
}

// NewSearcher builds a Searcher backed by store and embedder.
func NewSearcher(store VectorStore, embedder shadow.Embedder) *Searcher {
	return &Searcher{store: store, embedder: embedder}
}

// Search implements workspace.Searcher.
func (s *Searcher) Search(ctx context.Context, repoFullName, query string, dirs []string, topK int) ([]workspace.Snippet, error) {
	vectors, err := s.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embedder returned no vector for query")
	}

	collection := CollectionName(repoFullName)
	fetch := topK
	if len(dirs) > 0 {
		// Over-fetch before filtering by directory so the post-filter result
		// isn't starved by hits outside the requested directories.
		fetch = topK * 4
	}
	hits, err := s.store.Search(ctx, collection, vectors[0], fetch)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}

	snippets := make([]workspace.Snippet, 0, topK)
	for _, h := range hits {
		file := h.Payload["file"]
		if len(dirs) > 0 && !underAnyDir(file, dirs) {
			continue
		}
		snippets = append(snippets, workspace.Snippet{
			File:  file,
			Span:  h.Payload["span"],
			Score: h.Score,
			Text:  h.Payload["text"],
		})
		if len(snippets) == topK {
			break
		}
	}
	return snippets, nil
}

// underAnyDir reports whether file lives under one of dirs, treating each
// entry in dirs as a path prefix.
func underAnyDir(file string, dirs []string) bool {
	for _, d := range dirs {
		d = strings.TrimSuffix(strings.TrimSpace(d), "/")
		if d == "" || d == "." {
			return true
		}
		if file == d || strings.HasPrefix(file, d+"/") {
			return true
		}
	}
	return false
}

var _ workspace.Searcher = (*Searcher)(nil)
