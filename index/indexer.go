// Package index implements the Background Service Manager's indexing and
// wiki jobs (§4.10) against a qdrant vector store, grounded on
// intelligencedev-manifold's qdrant adapter for the storage layer and
// haasonsaas-nexus's RAG index manager (internal/rag/index/manager.go) for
// the parse/chunk/embed/store pipeline shape, adapted from prose documents
// to source files.
package index

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	shadow "github.com/shadowhq/shadow"
)

const (
	maxIndexFileBytes = 512 * 1024
	embedBatchSize    = 64
)

// nopLogger is the default logger for an Indexer constructed without
// WithIndexerLogger, mirroring the rest of this codebase's never-nil
// logger convention.
var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

var skipDirs = map[string]bool{
	".git": true, "node_modules": true, "vendor": true,
	"dist": true, "build": true, ".next": true, "target": true,
}

var skipExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true,
	".pdf": true, ".zip": true, ".tar": true, ".gz": true, ".woff": true,
	".woff2": true, ".ttf": true, ".eot": true, ".mp4": true, ".mp3": true,
	".exe": true, ".bin": true, ".so": true, ".dylib": true, ".dll": true,
	".lock": true,
}

// Indexer implements shadow.Indexer: it walks a workspace, chunks each
// source file, embeds the chunks, and upserts them into the repository's
// qdrant collection.
type Indexer struct {
	store    VectorStore
	embedder shadow.Embedder
	chunkCfg ChunkConfig
	logger   *slog.Logger
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithChunkConfig overrides the default line-budget chunker configuration.
func WithChunkConfig(cfg ChunkConfig) IndexerOption {
	return func(ix *Indexer) { ix.chunkCfg = cfg }
}

// WithIndexerLogger attaches a logger for per-file indexing diagnostics.
func WithIndexerLogger(l *slog.Logger) IndexerOption {
	return func(ix *Indexer) { ix.logger = l }
}

// NewIndexer builds an Indexer backed by store and embedder.
func NewIndexer(store VectorStore, embedder shadow.Embedder, opts ...IndexerOption) *Indexer {
	ix := &Indexer{store: store, embedder: embedder, chunkCfg: DefaultChunkConfig(), logger: nopLogger}
	for _, opt := range opts {
		opt(ix)
	}
	return ix
}

// IndexRepository implements shadow.Indexer. Chunk keys are derived
// deterministically from file path and line span, so a re-index re-embeds
// every chunk and overwrites the points whose keys already exist; points
// for spans that no longer exist are not removed.
func (ix *Indexer) IndexRepository(ctx context.Context, repoFullName, workspacePath string) error {
	collection := CollectionName(repoFullName)

	var chunks []Chunk
	err := filepath.WalkDir(workspacePath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if skipDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		if skipExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxIndexFileBytes || info.Size() == 0 {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		if looksBinary(data) {
			return nil
		}
		rel, err := filepath.Rel(workspacePath, path)
		if err != nil {
			rel = path
		}
		chunks = append(chunks, ChunkFile(rel, string(data), ix.chunkCfg)...)
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk workspace: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	dims := ix.embedder.Dimensions()
	for i := 0; i < len(chunks); i += embedBatchSize {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := i + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[i:end]
		texts := make([]string, len(batch))
		for j, c := range batch {
			texts[j] = c.Text
		}
		vectors, err := ix.embedder.Embed(ctx, texts)
		if err != nil {
			return fmt.Errorf("embed batch: %w", err)
		}
		points := make([]Point, len(batch))
		for j, c := range batch {
			points[j] = Point{
				Key:    c.File + "#" + c.Span(),
				Vector: vectors[j],
				Payload: map[string]any{
					"file": c.File,
					"dir":  filepath.Dir(c.File),
					"span": c.Span(),
					"text": c.Text,
				},
			}
		}
		if err := ix.store.Upsert(ctx, collection, dims, points); err != nil {
			return fmt.Errorf("upsert batch: %w", err)
		}
		ix.logger.Info("indexed chunk batch", "repo", repoFullName, "chunks", len(batch))
	}
	return nil
}

// looksBinary applies the classic "contains a NUL byte in the first 8KB"
// heuristic to skip binary files the extension blocklist missed.
func looksBinary(data []byte) bool {
	n := len(data)
	if n > 8192 {
		n = 8192
	}
	for _, b := range data[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

var _ shadow.Indexer = (*Indexer)(nil)
