package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aetheris-os/aetheris/internal/db"
	dbredis "github.com/aetheris-os/aetheris/internal/db/redis"
	"github.com/aetheris-os/aetheris/internal/domain"
)

// store is the consumer interface for the Redis vector repo (ISP).
type store interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	Del(ctx context.Context, key string) error
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
}

// HNSWConfig carries the index build parameters.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// RedisStore implements Store over Redis 8 FT.SEARCH with an HNSW index.
// Vectors live in hashes under <prefix>vec:<id>; the FT index covers that
// prefix with a single FLOAT32 vector field.
type RedisStore struct {
	store     store
	keyPrefix string
	dim       int
	hnsw      HNSWConfig
}

// NewRedis creates a Redis-backed vector store with the given dimension.
func NewRedis(s store, keyPrefix string, dim int) *RedisStore {
	return &RedisStore{store: s, keyPrefix: keyPrefix, dim: dim}
}

// WithHNSW overrides the HNSW build parameters.
func (r *RedisStore) WithHNSW(cfg HNSWConfig) *RedisStore {
	r.hnsw = cfg
	return r
}

func (r *RedisStore) indexName() string { return r.keyPrefix + "vec:idx" }
func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%svec:%s", r.keyPrefix, id)
}

// EnsureIndex creates the HNSW cosine index when absent.
func (r *RedisStore) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.indexName())
	if err != nil {
		return fmt.Errorf("probe vector index: %w: %w", domain.ErrStoreRead, err)
	}
	if exists {
		return nil
	}

	def := &db.IndexDefinition{
		Name:        r.indexName(),
		StorageType: db.StorageHash,
		Prefixes:    []string{r.keyPrefix + "vec:"},
		Fields: []db.IndexField{{
			Name:              "vector",
			Type:              db.IndexFieldVector,
			VectorAlgo:        db.VectorHNSW,
			VectorDim:         r.dim,
			VectorDistance:    db.DistanceCosine,
			VectorM:           r.hnsw.M,
			VectorEFConstruct: r.hnsw.EFConstruct,
		}},
	}

	if err := r.store.CreateIndex(ctx, def); err != nil {
		if errors.Is(err, db.ErrIndexExists) {
			return nil
		}
		return fmt.Errorf("create vector index: %w: %w", domain.ErrStoreWrite, err)
	}
	return nil
}

// Put stores the vector for an id.
func (r *RedisStore) Put(ctx context.Context, id string, vec []float32) error {
	if len(vec) != r.dim {
		return fmt.Errorf("got %d dimensions, index expects %d: %w", len(vec), r.dim, domain.ErrVectorDimMismatch)
	}
	fields := map[string]string{"vector": dbredis.VectorToBytes(vec)}
	if err := r.store.HSet(ctx, r.key(id), fields); err != nil {
		return fmt.Errorf("put vector %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

// Query returns the k nearest vectors as (id, score) hits.
func (r *RedisStore) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != r.dim {
		return nil, fmt.Errorf("got %d dimensions, index expects %d: %w", len(vec), r.dim, domain.ErrVectorDimMismatch)
	}

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.indexName(),
		Vector:       vec,
		K:            k,
		ReturnFields: []string{"__vector_score"},
	})
	if err != nil {
		return nil, fmt.Errorf("knn query: %w: %w", domain.ErrStoreRead, err)
	}
	if sr == nil || sr.Total == 0 {
		return nil, nil
	}

	prefix := r.keyPrefix + "vec:"
	hits := make([]Hit, 0, len(sr.Entries))
	for _, entry := range sr.Entries {
		hits = append(hits, Hit{
			ID:    strings.TrimPrefix(entry.Key, prefix),
			Score: entry.Score,
		})
	}
	return hits, nil
}

// Delete removes the vector for an id.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete vector %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

var _ Store = (*RedisStore)(nil)
