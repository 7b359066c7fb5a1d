package index

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
)

// payloadOriginalIDField mirrors the workaround qdrant forces on every
// client: point IDs must be a UUID or a positive integer, so a
// deterministic UUID is derived from the chunk's natural key and the
// natural key is kept in the payload for round-tripping.
const payloadOriginalIDField = "_point_key"

// Store owns one qdrant collection per indexed repository, grounded on
// intelligencedev-manifold's qdrantVector adapter (gRPC client construction
// from a DSN, deterministic UUID point IDs, value-map payloads) but scoped
// to Shadow's one-collection-per-repository namespacing (§4.10: "upserts
// into a vector namespace named after the repository") instead of one
// fixed collection per store instance.
type Store struct {
	client *qdrant.Client
	metric string

	mu       sync.Mutex
	ensured  map[string]bool
}

// NewStore dials qdrant's gRPC endpoint. dsn is a URL like
// "grpc://localhost:6334" or "https://host:6334?api_key=...".
func NewStore(dsn, metric string) (*Store, error) {
	parsed, err := url.Parse(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse qdrant dsn: %w", err)
	}
	host := parsed.Hostname()
	if host == "" {
		host = "localhost"
	}
	port := parsed.Port()
	if port == "" {
		port = "6334"
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return nil, fmt.Errorf("invalid qdrant port: %w", err)
	}
	cfg := &qdrant.Config{Host: host, Port: portNum}
	if parsed.Scheme == "https" {
		cfg.UseTLS = true
	}
	if apiKey := parsed.Query().Get("api_key"); apiKey != "" {
		cfg.APIKey = apiKey
	}
	client, err := qdrant.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("create qdrant client: %w", err)
	}
	return &Store{client: client, metric: strings.ToLower(strings.TrimSpace(metric)), ensured: make(map[string]bool)}, nil
}

func (s *Store) Close() error { return s.client.Close() }

// CollectionName derives a qdrant-safe collection name from a repository's
// "owner/repo" full name.
func CollectionName(repoFullName string) string {
	return "repo__" + strings.ReplaceAll(strings.ToLower(repoFullName), "/", "__")
}

func (s *Store) ensureCollection(ctx context.Context, collection string, dimensions int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured[collection] {
		return nil
	}
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("check collection exists: %w", err)
	}
	if !exists {
		distance := qdrant.Distance_Cosine
		switch s.metric {
		case "l2", "euclidean":
			distance = qdrant.Distance_Euclid
		case "ip", "dot":
			distance = qdrant.Distance_Dot
		case "manhattan":
			distance = qdrant.Distance_Manhattan
		}
		if dimensions <= 0 {
			return fmt.Errorf("qdrant requires dimensions > 0")
		}
		if err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimensions),
				Distance: distance,
			}),
		}); err != nil {
			return fmt.Errorf("create collection %s: %w", collection, err)
		}
	}
	s.ensured[collection] = true
	return nil
}

// VectorStore is the storage dependency Indexer and Searcher need, narrowed
// from *Store so tests can substitute an in-memory fake instead of dialing
// qdrant, the same seam haasonsaas-nexus's index.Manager uses around its
// store.DocumentStore interface.
type VectorStore interface {
	Upsert(ctx context.Context, collection string, dimensions int, points []Point) error
	Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error)
}

var _ VectorStore = (*Store)(nil)

// Point is one vector upsert: key is a natural (non-UUID) identifier such
// as "path/to/file.go#L1-L60", preserved in the payload under
// payloadOriginalIDField since qdrant only accepts UUID/integer point IDs.
type Point struct {
	Key     string
	Vector  []float32
	Payload map[string]any
}

// Upsert embeds points into collection, creating it first if necessary.
func (s *Store) Upsert(ctx context.Context, collection string, dimensions int, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := s.ensureCollection(ctx, collection, dimensions); err != nil {
		return err
	}
	structs := make([]*qdrant.PointStruct, 0, len(points))
	for _, p := range points {
		pointID := uuid.NewSHA1(uuid.NameSpaceOID, []byte(collection+"|"+p.Key)).String()
		payload := make(map[string]any, len(p.Payload)+1)
		for k, v := range p.Payload {
			payload[k] = v
		}
		payload[payloadOriginalIDField] = p.Key
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		structs = append(structs, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(pointID),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(payload),
		})
	}
	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{CollectionName: collection, Points: structs})
	return err
}

// Hit is one similarity-search result.
type Hit struct {
	Key      string
	Score    float32
	Payload  map[string]string
}

// Search runs a dense vector query against collection, returning up to topK
// hits. Directory filtering is applied client-side by the caller (see
// searcher.go) rather than via a qdrant payload filter, since
// target_directories are prefix matches and qdrant's keyword Match
// condition is exact-equality only.
func (s *Store) Search(ctx context.Context, collection string, vector []float32, topK int) ([]Hit, error) {
	if topK <= 0 {
		topK = 10
	}
	vec := make([]float32, len(vector))
	copy(vec, vector)
	limit := uint64(topK)
	results, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		payload := make(map[string]string)
		var key string
		if r.Payload != nil {
			for k, v := range r.Payload {
				if k == payloadOriginalIDField {
					key = v.GetStringValue()
					continue
				}
				payload[k] = v.GetStringValue()
			}
		}
		hits = append(hits, Hit{Key: key, Score: r.Score, Payload: payload})
	}
	return hits, nil
}

// DeleteCollection drops a repository's namespace entirely, used when a
// repository is removed or needs a full re-index.
func (s *Store) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	delete(s.ensured, collection)
	s.mu.Unlock()
	return s.client.DeleteCollection(ctx, collection)
}
