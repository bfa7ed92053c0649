// Package vector provides the ANN index adapter: fixed-dimension vectors
// keyed by system id, with nearest-neighbor retrieval.
package vector

import "context"

// Hit is one nearest-neighbor match: the stored id and a similarity score
// normalized to [0,1].
type Hit struct {
	ID    string
	Score float64
}

// Store is the uniform interface over an ANN backend.
type Store interface {
	// EnsureIndex creates the vector index if it does not exist yet.
	EnsureIndex(ctx context.Context) error
	// Put stores the vector for an id, replacing any previous one.
	// Fails fast with domain.ErrVectorDimMismatch on a wrong-length vector.
	Put(ctx context.Context, id string, vec []float32) error
	// Query returns the k nearest stored vectors in descending score order.
	Query(ctx context.Context, vec []float32, k int) ([]Hit, error)
	// Delete removes the vector for an id. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}
