package record

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aetheris-os/aetheris/internal/db"
	"github.com/aetheris-os/aetheris/internal/domain"
)

// store is the consumer interface for the Redis record repo (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	JSONGetMulti(ctx context.Context, keys []string) ([][]byte, error)
	Del(ctx context.Context, key string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// RedisStore implements Store over RedisJSON documents under <prefix>sys:<id>.
type RedisStore struct {
	store     store
	keyPrefix string
}

// NewRedis creates a Redis-backed record store.
func NewRedis(s store, keyPrefix string) *RedisStore {
	return &RedisStore{store: s, keyPrefix: keyPrefix}
}

func (r *RedisStore) key(id string) string {
	return fmt.Sprintf("%ssys:%s", r.keyPrefix, id)
}

// Put stores a record.
func (r *RedisStore) Put(ctx context.Context, rec Document) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal record %s: %w", rec.ID, err)
	}
	if err := r.store.JSONSet(ctx, r.key(rec.ID), "$", data); err != nil {
		return fmt.Errorf("put record %s: %w: %w", rec.ID, domain.ErrStoreWrite, err)
	}
	return nil
}

// Get returns a record by id.
func (r *RedisStore) Get(ctx context.Context, id string) (Document, error) {
	raw, err := r.store.JSONGet(ctx, r.key(id), "$")
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return Document{}, domain.ErrNotFound
		}
		return Document{}, fmt.Errorf("get record %s: %w: %w", id, domain.ErrStoreRead, err)
	}
	return parseDocument(raw)
}

// GetMany returns records for the given ids, skipping missing ones.
func (r *RedisStore) GetMany(ctx context.Context, ids []string) ([]Document, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = r.key(id)
	}

	raws, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("get records: %w: %w", domain.ErrStoreRead, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		doc, err := parseDocument(raw)
		if err != nil {
			continue // tolerate a single corrupt document on the read path
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// List returns all stored records.
func (r *RedisStore) List(ctx context.Context) ([]Document, error) {
	keys, err := r.store.Scan(ctx, r.keyPrefix+"sys:*")
	if err != nil {
		return nil, fmt.Errorf("scan records: %w: %w", domain.ErrStoreRead, err)
	}
	if len(keys) == 0 {
		return nil, nil
	}

	raws, err := r.store.JSONGetMulti(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("list records: %w: %w", domain.ErrStoreRead, err)
	}

	docs := make([]Document, 0, len(raws))
	for _, raw := range raws {
		if raw == nil {
			continue
		}
		doc, err := parseDocument(raw)
		if err != nil {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Delete removes a record.
func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.store.Del(ctx, r.key(id)); err != nil {
		return fmt.Errorf("delete record %s: %w: %w", id, domain.ErrStoreWrite, err)
	}
	return nil
}

// parseDocument handles both a bare object and the JSONPath array wrapper
// that JSON.GET $ returns.
func parseDocument(raw []byte) (Document, error) {
	var doc Document
	if err := json.Unmarshal(raw, &doc); err == nil && doc.ID != "" {
		return doc, nil
	}

	var docs []Document
	if err := json.Unmarshal(raw, &docs); err != nil {
		return Document{}, fmt.Errorf("unmarshal record: %w", err)
	}
	if len(docs) == 0 {
		return Document{}, domain.ErrNotFound
	}
	return docs[0], nil
}

var _ Store = (*RedisStore)(nil)
