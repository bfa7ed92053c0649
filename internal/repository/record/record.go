// Package record provides the metadata store adapter: durable system
// records keyed by the same id as their vectors.
package record

import "context"

// Store is the uniform interface over a document store.
type Store interface {
	// Put stores a record, replacing any previous version under the same id.
	Put(ctx context.Context, rec Document) error
	// Get returns a record by id, or domain.ErrNotFound.
	Get(ctx context.Context, id string) (Document, error)
	// GetMany returns the records for the given ids; missing ids are skipped.
	GetMany(ctx context.Context, ids []string) ([]Document, error)
	// List returns all records in unspecified order.
	List(ctx context.Context) ([]Document, error)
	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id string) error
}

// Document is the stored shape of a system record.
type Document struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Capacity     float64  `json:"capacity"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}
