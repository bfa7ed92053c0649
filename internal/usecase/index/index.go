// Package index implements the semantic index: embedding-backed upsert,
// similarity search, and listing of building system records.
package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/logger"
	"github.com/aetheris-os/aetheris/internal/repository/record"
	"github.com/aetheris-os/aetheris/internal/repository/vector"
)

// DefaultTopK applies when a search request leaves top_k unset.
const DefaultTopK = 5

// MaxTopK bounds a single search request.
const MaxTopK = 100

// Service ties the embedder, the vector store and the metadata store into
// a consistent index. Writes to the same id are serialized; embedding calls
// happen outside any lock.
type Service struct {
	vectors  vector.Store
	records  record.Store
	embedder domain.Embedder

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates the semantic index service.
func New(vectors vector.Store, records record.Store, embedder domain.Embedder) *Service {
	return &Service{
		vectors:  vectors,
		records:  records,
		embedder: embedder,
		locks:    make(map[string]*sync.Mutex),
	}
}

// idLock returns the mutex serializing writes for one id.
func (s *Service) idLock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Upsert validates and stores a record, computing its embedding from the
// name and description. A missing id gets a generated one. The vector is
// written first; if the metadata write fails the vector is removed again
// so search never surfaces a half-written record.
func (s *Service) Upsert(ctx context.Context, rec domain.SystemRecord) (domain.SystemRecord, bool, error) {
	log := logger.FromContext(ctx)

	if err := rec.Validate(); err != nil {
		return domain.SystemRecord{}, false, err
	}

	created := false
	if rec.ID == "" {
		rec.ID = uuid.NewString()
		created = true
	}

	now := time.Now().UTC().UnixMilli()
	rec.UpdatedAt = now

	// Embed before taking the per-id lock: provider I/O must not be
	// serialized behind other writers of the same id.
	emb, err := s.embedder.Embed(ctx, rec.EmbeddingText())
	if err != nil {
		return domain.SystemRecord{}, false, fmt.Errorf("embed record %s: %w", rec.ID, err)
	}

	lock := s.idLock(rec.ID)
	lock.Lock()
	defer lock.Unlock()

	prev, err := s.records.Get(ctx, rec.ID)
	switch {
	case err == nil:
		rec.CreatedAt = prev.CreatedAt
	case errors.Is(err, domain.ErrNotFound):
		rec.CreatedAt = now
		created = true
	default:
		return domain.SystemRecord{}, false, fmt.Errorf("read existing record %s: %w", rec.ID, err)
	}

	if err := s.vectors.Put(ctx, rec.ID, emb.Embedding); err != nil {
		return domain.SystemRecord{}, false, fmt.Errorf("store vector for %s: %w", rec.ID, err)
	}

	if err := s.records.Put(ctx, toDocument(rec)); err != nil {
		// Roll the vector back so the id cannot match in search with no
		// metadata behind it. Best effort: an orphan is also skipped at
		// search-time join.
		if delErr := s.vectors.Delete(ctx, rec.ID); delErr != nil {
			log.Warn("vector rollback failed after metadata write failure",
				zap.String("id", rec.ID), zap.Error(delErr))
		}
		return domain.SystemRecord{}, false, fmt.Errorf("store record %s: %w", rec.ID, err)
	}

	log.Info("record upserted",
		zap.String("id", rec.ID),
		zap.Bool("created", created),
		zap.Int("embedding_tokens", emb.TotalTokens))

	return rec, created, nil
}

// Search embeds the query and returns up to topK records ranked by
// descending similarity, ties broken by ascending id. Vector hits with no
// metadata behind them are skipped. An empty index yields an empty slice.
func (s *Service) Search(ctx context.Context, query string, topK int) ([]domain.Match, error) {
	if query == "" {
		return nil, fmt.Errorf("query is required: %w", domain.ErrValidation)
	}
	if topK == 0 {
		topK = DefaultTopK
	}
	if topK < 0 || topK > MaxTopK {
		return nil, fmt.Errorf("top_k %d out of range [1, %d]: %w", topK, MaxTopK, domain.ErrValidation)
	}

	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	hits, err := s.vectors.Query(ctx, emb.Embedding, topK)
	if err != nil {
		return nil, fmt.Errorf("vector query: %w", err)
	}
	if len(hits) == 0 {
		return []domain.Match{}, nil
	}

	ids := make([]string, len(hits))
	scores := make(map[string]float64, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		scores[h.ID] = h.Score
	}

	docs, err := s.records.GetMany(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("join records: %w", err)
	}

	matches := make([]domain.Match, 0, len(docs))
	for _, doc := range docs {
		matches = append(matches, domain.Match{
			Record: fromDocument(doc),
			Score:  scores[doc.ID],
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].Record.ID < matches[j].Record.ID
	})
	return matches, nil
}

// Get returns one record by id.
func (s *Service) Get(ctx context.Context, id string) (domain.SystemRecord, error) {
	if id == "" {
		return domain.SystemRecord{}, fmt.Errorf("id is required: %w", domain.ErrValidation)
	}
	doc, err := s.records.Get(ctx, id)
	if err != nil {
		return domain.SystemRecord{}, err
	}
	return fromDocument(doc), nil
}

// List returns all records in insertion order.
func (s *Service) List(ctx context.Context) ([]domain.SystemRecord, error) {
	docs, err := s.records.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}
	out := make([]domain.SystemRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, fromDocument(doc))
	}
	domain.SortRecords(out)
	return out, nil
}

// Delete removes a record and its vector. Vector first: a lingering
// metadata row without a vector is harmless to search.
func (s *Service) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("id is required: %w", domain.ErrValidation)
	}

	lock := s.idLock(id)
	lock.Lock()
	defer lock.Unlock()

	if err := s.vectors.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete vector %s: %w", id, err)
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete record %s: %w", id, err)
	}
	return nil
}

func toDocument(rec domain.SystemRecord) record.Document {
	caps := make([]string, len(rec.Capabilities))
	for i, c := range rec.Capabilities {
		caps[i] = string(c)
	}
	return record.Document{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		Capabilities: caps,
		Capacity:     rec.Capacity,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

func fromDocument(doc record.Document) domain.SystemRecord {
	caps := make([]domain.Capability, len(doc.Capabilities))
	for i, c := range doc.Capabilities {
		caps[i] = domain.Capability(c)
	}
	return domain.SystemRecord{
		ID:           doc.ID,
		Name:         doc.Name,
		Description:  doc.Description,
		Capabilities: caps,
		Capacity:     doc.Capacity,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}
