package index

import (
	"context"
	"errors"
	"sort"
	"testing"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/repository/record"
	"github.com/aetheris-os/aetheris/internal/repository/vector"
)

// --- Mocks ---

// mockEmbedder maps exact text to preset vectors. Unknown text gets a
// distinct far-away vector so it never wins a similarity ranking.
type mockEmbedder struct {
	vectors map[string][]float32
	err     error
	calls   int
}

func (m *mockEmbedder) Embed(_ context.Context, text string) (domain.EmbeddingResult, error) {
	m.calls++
	if m.err != nil {
		return domain.EmbeddingResult{}, m.err
	}
	if v, ok := m.vectors[text]; ok {
		return domain.EmbeddingResult{Embedding: v, TotalTokens: len(text)}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{0, 0, 1}}, nil
}

type mockVectors struct {
	stored  map[string][]float32
	putErr  error
	deleted []string
}

func newMockVectors() *mockVectors {
	return &mockVectors{stored: map[string][]float32{}}
}

func (m *mockVectors) EnsureIndex(_ context.Context) error { return nil }

func (m *mockVectors) Put(_ context.Context, id string, vec []float32) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.stored[id] = vec
	return nil
}

func (m *mockVectors) Query(_ context.Context, vec []float32, k int) ([]vector.Hit, error) {
	hits := make([]vector.Hit, 0, len(m.stored))
	for id, v := range m.stored {
		hits = append(hits, vector.Hit{ID: id, Score: domain.CosineSimilarity(vec, v)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (m *mockVectors) Delete(_ context.Context, id string) error {
	delete(m.stored, id)
	m.deleted = append(m.deleted, id)
	return nil
}

type mockRecords struct {
	docs   map[string]record.Document
	putErr error
}

func newMockRecords() *mockRecords {
	return &mockRecords{docs: map[string]record.Document{}}
}

func (m *mockRecords) Put(_ context.Context, rec record.Document) error {
	if m.putErr != nil {
		return m.putErr
	}
	m.docs[rec.ID] = rec
	return nil
}

func (m *mockRecords) Get(_ context.Context, id string) (record.Document, error) {
	doc, ok := m.docs[id]
	if !ok {
		return record.Document{}, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockRecords) GetMany(_ context.Context, ids []string) ([]record.Document, error) {
	out := make([]record.Document, 0, len(ids))
	for _, id := range ids {
		if doc, ok := m.docs[id]; ok {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *mockRecords) List(_ context.Context) ([]record.Document, error) {
	out := make([]record.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc)
	}
	return out, nil
}

func (m *mockRecords) Delete(_ context.Context, id string) error {
	delete(m.docs, id)
	return nil
}

func newService(emb *mockEmbedder, vecs *mockVectors, recs *mockRecords) *Service {
	return New(vecs, recs, emb)
}

// --- Tests ---

func TestUpsertGeneratesID(t *testing.T) {
	svc := newService(&mockEmbedder{}, newMockVectors(), newMockRecords())

	rec, created, err := svc.Upsert(context.Background(), domain.SystemRecord{
		Name:        "Radiant Floor",
		Description: "hydronic loop under the office floor",
	})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if !created {
		t.Error("expected created=true for a new record")
	}
	if rec.ID == "" {
		t.Error("expected a generated id")
	}
	if rec.CreatedAt == 0 || rec.UpdatedAt == 0 {
		t.Error("expected timestamps to be set")
	}
}

func TestUpsertValidation(t *testing.T) {
	svc := newService(&mockEmbedder{}, newMockVectors(), newMockRecords())

	cases := []struct {
		name string
		rec  domain.SystemRecord
	}{
		{"empty name", domain.SystemRecord{Description: "d"}},
		{"empty description", domain.SystemRecord{Name: "n"}},
		{"capacity out of range", domain.SystemRecord{Name: "n", Description: "d", Capacity: 101}},
		{"unknown capability", domain.SystemRecord{
			Name: "n", Description: "d",
			Capabilities: []domain.Capability{"levitation"},
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Upsert(context.Background(), tc.rec)
			if !errors.Is(err, domain.ErrValidation) {
				t.Errorf("expected ErrValidation, got %v", err)
			}
		})
	}
}

func TestUpsertIdempotent(t *testing.T) {
	recs := newMockRecords()
	svc := newService(&mockEmbedder{}, newMockVectors(), recs)

	rec := domain.SystemRecord{
		ID:          "hydra",
		Name:        "Hydra Loop",
		Description: "liquid cooling loop",
	}
	first, _, err := svc.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	second, created, err := svc.Upsert(context.Background(), rec)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if created {
		t.Error("second upsert of the same id must not report created")
	}
	if len(recs.docs) != 1 {
		t.Errorf("expected 1 stored record, got %d", len(recs.docs))
	}
	if second.CreatedAt != first.CreatedAt {
		t.Error("created_at must be preserved on update")
	}
	if second.UpdatedAt < first.UpdatedAt {
		t.Error("updated_at must advance")
	}
}

func TestUpsertEmbeddingFailureFailsClosed(t *testing.T) {
	vecs := newMockVectors()
	recs := newMockRecords()
	svc := newService(&mockEmbedder{err: domain.ErrEmbeddingUnavailable}, vecs, recs)

	_, _, err := svc.Upsert(context.Background(), domain.SystemRecord{
		ID: "x", Name: "n", Description: "d",
	})
	if !errors.Is(err, domain.ErrEmbeddingUnavailable) {
		t.Fatalf("expected ErrEmbeddingUnavailable, got %v", err)
	}
	if len(vecs.stored) != 0 || len(recs.docs) != 0 {
		t.Error("nothing may be written when embedding fails")
	}
}

func TestUpsertMetadataFailureRollsBackVector(t *testing.T) {
	vecs := newMockVectors()
	recs := newMockRecords()
	recs.putErr = domain.ErrStoreWrite
	svc := newService(&mockEmbedder{}, vecs, recs)

	_, _, err := svc.Upsert(context.Background(), domain.SystemRecord{
		ID: "orphan", Name: "n", Description: "d",
	})
	if !errors.Is(err, domain.ErrStoreWrite) {
		t.Fatalf("expected ErrStoreWrite, got %v", err)
	}
	if _, ok := vecs.stored["orphan"]; ok {
		t.Error("vector must be rolled back after metadata write failure")
	}
}

func TestSearchTopMatch(t *testing.T) {
	// The query vector points almost exactly at the hydra record.
	emb := &mockEmbedder{vectors: map[string][]float32{
		"Hydra Cooling Loop\nliquid cooling using Foundation Cistern": {1, 0, 0},
		"Blinds\nautomated solar shading":                             {0, 1, 0},
		"liquid based heat management":                                {0.99, 0.1, 0},
	}}
	svc := newService(emb, newMockVectors(), newMockRecords())

	ctx := context.Background()
	if _, _, err := svc.Upsert(ctx, domain.SystemRecord{
		ID: "hydra", Name: "Hydra Cooling Loop",
		Description: "liquid cooling using Foundation Cistern",
	}); err != nil {
		t.Fatalf("upsert hydra: %v", err)
	}
	if _, _, err := svc.Upsert(ctx, domain.SystemRecord{
		ID: "blinds", Name: "Blinds", Description: "automated solar shading",
	}); err != nil {
		t.Fatalf("upsert blinds: %v", err)
	}

	matches, err := svc.Search(ctx, "liquid based heat management", 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected 1 match, got %d", len(matches))
	}
	if matches[0].Record.ID != "hydra" {
		t.Errorf("expected hydra as top match, got %s", matches[0].Record.ID)
	}
	if matches[0].Score <= 0 || matches[0].Score > 1 {
		t.Errorf("score %g out of (0,1]", matches[0].Score)
	}
}

func TestSearchOrderingAndLimit(t *testing.T) {
	emb := &mockEmbedder{vectors: map[string][]float32{
		"a\na": {1, 0, 0},
		"b\nb": {0.9, 0.1, 0},
		"c\nc": {0.5, 0.5, 0},
		"q":    {1, 0, 0},
	}}
	svc := newService(emb, newMockVectors(), newMockRecords())

	ctx := context.Background()
	for _, id := range []string{"a", "b", "c"} {
		if _, _, err := svc.Upsert(ctx, domain.SystemRecord{ID: id, Name: id, Description: id}); err != nil {
			t.Fatalf("upsert %s: %v", id, err)
		}
	}

	matches, err := svc.Search(ctx, "q", 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(matches) != 2 {
		t.Fatalf("expected 2 matches, got %d", len(matches))
	}
	if matches[0].Score < matches[1].Score {
		t.Error("matches must be in descending score order")
	}
	if matches[0].Record.ID != "a" {
		t.Errorf("expected a first, got %s", matches[0].Record.ID)
	}
	seen := map[string]bool{}
	for _, m := range matches {
		if seen[m.Record.ID] {
			t.Errorf("duplicate id %s in results", m.Record.ID)
		}
		seen[m.Record.ID] = true
	}
}

func TestSearchEmptyIndex(t *testing.T) {
	svc := newService(&mockEmbedder{}, newMockVectors(), newMockRecords())

	matches, err := svc.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search on empty index: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("expected empty result, got %d matches", len(matches))
	}
}

func TestSearchSkipsOrphanedVectors(t *testing.T) {
	vecs := newMockVectors()
	recs := newMockRecords()
	svc := newService(&mockEmbedder{}, vecs, recs)

	// A vector with no metadata behind it, as left by a crashed rollback.
	vecs.stored["ghost"] = []float32{0, 0, 1}

	matches, err := svc.Search(context.Background(), "anything", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, m := range matches {
		if m.Record.ID == "ghost" {
			t.Error("orphaned vector must not surface in results")
		}
	}
}

func TestSearchValidation(t *testing.T) {
	svc := newService(&mockEmbedder{}, newMockVectors(), newMockRecords())

	if _, err := svc.Search(context.Background(), "", 5); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("empty query: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Search(context.Background(), "q", -1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("negative top_k: expected ErrValidation, got %v", err)
	}
	if _, err := svc.Search(context.Background(), "q", MaxTopK+1); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("oversized top_k: expected ErrValidation, got %v", err)
	}
}

func TestListInsertionOrder(t *testing.T) {
	recs := newMockRecords()
	svc := newService(&mockEmbedder{}, newMockVectors(), recs)

	// Same created_at, order falls back to id.
	recs.docs["b"] = record.Document{ID: "b", Name: "b", Description: "b", CreatedAt: 10}
	recs.docs["a"] = record.Document{ID: "a", Name: "a", Description: "a", CreatedAt: 10}
	recs.docs["c"] = record.Document{ID: "c", Name: "c", Description: "c", CreatedAt: 5}

	list, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	got := make([]string, len(list))
	for i, r := range list {
		got[i] = r.ID
	}
	want := []string{"c", "a", "b"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("list order %v, want %v", got, want)
		}
	}
}

func TestDeleteRemovesBothHalves(t *testing.T) {
	vecs := newMockVectors()
	recs := newMockRecords()
	svc := newService(&mockEmbedder{}, vecs, recs)

	ctx := context.Background()
	if _, _, err := svc.Upsert(ctx, domain.SystemRecord{ID: "x", Name: "n", Description: "d"}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := svc.Delete(ctx, "x"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := vecs.stored["x"]; ok {
		t.Error("vector not deleted")
	}
	if _, ok := recs.docs["x"]; ok {
		t.Error("record not deleted")
	}
}
