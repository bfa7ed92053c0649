package vector

import (
	"context"
	"fmt"

	chromem "github.com/philippgille/chromem-go"

	"github.com/aetheris-os/aetheris/internal/domain"
)

const chromemCollection = "systems"

// ChromemStore implements Store over an embedded chromem-go database.
// Used by the "embedded" driver for single-node and development setups
// where no Redis instance is available.
type ChromemStore struct {
	db  *chromem.DB
	col *chromem.Collection
	dim int
}

// NewChromem opens (or creates) a persistent chromem database at path.
func NewChromem(path string, dim int) (*ChromemStore, error) {
	cdb, err := chromem.NewPersistentDB(path, false)
	if err != nil {
		return nil, fmt.Errorf("open chromem db: %w", err)
	}
	return &ChromemStore{db: cdb, dim: dim}, nil
}

// EnsureIndex creates the collection when absent. Embeddings are always
// supplied explicitly, so no embedding function is wired into chromem.
func (c *ChromemStore) EnsureIndex(_ context.Context) error {
	col, err := c.db.GetOrCreateCollection(chromemCollection, nil, nil)
	if err != nil {
		return fmt.Errorf("get or create collection: %w: %w", domain.ErrStoreWrite, err)
	}
	c.col = col
	return nil
}

// Put stores the vector for an id.
func (c *ChromemStore) Put(ctx context.Context, id string, vec []float32) error {
	if len(vec) != c.dim {
		return fmt.Errorf("got %d dimensions, index expects %d: %w", len(vec), c.dim, domain.ErrVectorDimMismatch)
	}
	err := c.col.AddDocument(ctx, chromem.Document{
		ID:        id,
		Embedding: vec,
		Content:   id, // chromem requires content or embedding; content is unused here
	})
	if err != nil {
		return fmt.Errorf("put vector %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

// Query returns the k nearest vectors as (id, score) hits.
func (c *ChromemStore) Query(ctx context.Context, vec []float32, k int) ([]Hit, error) {
	if len(vec) != c.dim {
		return nil, fmt.Errorf("got %d dimensions, index expects %d: %w", len(vec), c.dim, domain.ErrVectorDimMismatch)
	}

	// chromem rejects nResults beyond the stored document count.
	count := c.col.Count()
	if count == 0 {
		return nil, nil
	}
	if k > count {
		k = count
	}

	results, err := c.col.QueryEmbedding(ctx, vec, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("knn query: %w: %w", domain.ErrStoreRead, err)
	}

	hits := make([]Hit, 0, len(results))
	for _, res := range results {
		hits = append(hits, Hit{
			ID:    res.ID,
			Score: max(0, float64(res.Similarity)),
		})
	}
	return hits, nil
}

// Delete removes the vector for an id.
func (c *ChromemStore) Delete(ctx context.Context, id string) error {
	if err := c.col.Delete(ctx, nil, nil, id); err != nil {
		return fmt.Errorf("delete vector %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

var _ Store = (*ChromemStore)(nil)
