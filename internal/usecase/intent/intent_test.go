package intent

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aetheris-os/aetheris/internal/domain"
)

// mockEmbedder returns preset vectors per text; unknown text maps to a
// vector orthogonal to everything in the preset map.
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
		return domain.EmbeddingResult{Embedding: v}, nil
	}
	return domain.EmbeddingResult{Embedding: []float32{0, 0, 0, 1}}, nil
}

func testCatalog() []Exemplar {
	return []Exemplar{
		{ID: "comfort", Phrase: "I am cold", Goal: domain.GoalIncreaseComfort},
		{ID: "water", Phrase: "hot shower", Goal: domain.GoalPrioritizeHotWater},
		{ID: "storage", Phrase: "store heat", Goal: domain.GoalPrioritizeStorage},
		{ID: "reduce", Phrase: "save energy", Goal: domain.GoalReduceLoad},
	}
}

func testVectors() map[string][]float32 {
	return map[string][]float32{
		"I am cold":   {1, 0, 0, 0},
		"hot shower":  {0, 1, 0, 0},
		"store heat":  {0, 0, 1, 0},
		"save energy": {0.5, 0.5, 0.5, 0},
	}
}

func TestResolveColdUtterance(t *testing.T) {
	vectors := testVectors()
	vectors["user is cold"] = []float32{0.95, 0.1, 0, 0}
	r := NewResolver(&mockEmbedder{vectors: vectors}, testCatalog(), 0.45)

	d, err := r.Resolve(context.Background(), "user is cold")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Goal != domain.GoalIncreaseComfort {
		t.Errorf("expected increase_comfort, got %s", d.Goal)
	}
	if d.Confidence <= 0.45 {
		t.Errorf("expected confidence above threshold, got %g", d.Confidence)
	}
	if d.UsedDefaultFallback {
		t.Error("a confident match must not be flagged as fallback")
	}
	if d.MatchedExemplarID != "comfort" {
		t.Errorf("expected exemplar comfort, got %s", d.MatchedExemplarID)
	}
}

func TestResolveBelowThresholdFallsBack(t *testing.T) {
	r := NewResolver(&mockEmbedder{vectors: testVectors()}, testCatalog(), 0.45)

	// Unknown utterance embeds orthogonal to every exemplar.
	d, err := r.Resolve(context.Background(), "what is the meaning of life")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if d.Goal != domain.GoalIncreaseComfort {
		t.Errorf("fallback goal must be increase_comfort, got %s", d.Goal)
	}
	if !d.UsedDefaultFallback {
		t.Error("expected fallback flag")
	}
	if d.Confidence >= 0.45 {
		t.Errorf("fallback confidence %g should be below threshold", d.Confidence)
	}
}

func TestResolveEmbeddingFailureFallsBack(t *testing.T) {
	r := NewResolver(&mockEmbedder{err: domain.ErrEmbeddingUnavailable}, testCatalog(), 0.45)

	d, err := r.Resolve(context.Background(), "I am cold")
	if err != nil {
		t.Fatalf("Resolve must not fail on embedding errors: %v", err)
	}
	if d.Goal != domain.GoalIncreaseComfort || !d.UsedDefaultFallback {
		t.Errorf("expected default fallback directive, got %+v", d)
	}
	if d.Confidence != 0 {
		t.Errorf("expected confidence 0, got %g", d.Confidence)
	}
}

func TestResolveEmptyUtterance(t *testing.T) {
	r := NewResolver(&mockEmbedder{vectors: testVectors()}, testCatalog(), 0.45)

	if _, err := r.Resolve(context.Background(), ""); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestCatalogEmbeddedOnce(t *testing.T) {
	emb := &mockEmbedder{vectors: testVectors()}
	r := NewResolver(emb, testCatalog(), 0.45)

	ctx := context.Background()
	if _, err := r.Resolve(ctx, "I am cold"); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	after := emb.calls
	if _, err := r.Resolve(ctx, "hot shower"); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	// Only one extra call for the second utterance itself.
	if emb.calls != after+1 {
		t.Errorf("catalog re-embedded: %d calls after first resolve, %d after second", after, emb.calls)
	}
}

func TestCatalogRetriedAfterFailure(t *testing.T) {
	emb := &mockEmbedder{err: domain.ErrEmbeddingUnavailable}
	r := NewResolver(emb, testCatalog(), 0.45)

	ctx := context.Background()
	if _, err := r.Resolve(ctx, "I am cold"); err != nil {
		t.Fatalf("resolve during outage: %v", err)
	}

	// Provider recovers; the catalog must embed on the next call.
	emb.err = nil
	emb.vectors = testVectors()
	d, err := r.Resolve(ctx, "hot shower")
	if err != nil {
		t.Fatalf("resolve after recovery: %v", err)
	}
	if d.Goal != domain.GoalPrioritizeHotWater {
		t.Errorf("expected prioritize_hot_water after recovery, got %s", d.Goal)
	}
}

// gateEmbedder blocks every Embed call until release is closed and
// reports each call on entered.
type gateEmbedder struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gateEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	g.entered <- struct{}{}
	<-g.release
	return domain.EmbeddingResult{Embedding: []float32{1, 0, 0, 0}}, nil
}

func TestResolveHoldsNoLockAcrossProvider(t *testing.T) {
	emb := &gateEmbedder{
		entered: make(chan struct{}, 64),
		release: make(chan struct{}),
	}
	r := NewResolver(emb, testCatalog(), 0.45)

	ctx := context.Background()
	done := make(chan struct{}, 2)
	go func() {
		_, _ = r.Resolve(ctx, "first utterance")
		done <- struct{}{}
	}()

	// First caller is inside the provider embedding the catalog.
	<-emb.entered

	go func() {
		_, _ = r.Resolve(ctx, "second utterance")
		done <- struct{}{}
	}()

	// The second caller must reach the provider while the first call is
	// still in flight; if the catalog were embedded under the resolver
	// lock it would be parked on the mutex instead.
	select {
	case <-emb.entered:
	case <-time.After(2 * time.Second):
		t.Fatal("second resolve blocked behind the first caller's provider I/O")
	}

	close(emb.release)
	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("resolve did not finish after provider release")
		}
	}
}

func TestDefaultCatalogCoversEveryGoal(t *testing.T) {
	seen := map[domain.Goal]bool{}
	for _, ex := range DefaultCatalog() {
		seen[ex.Goal] = true
	}
	for _, g := range []domain.Goal{
		domain.GoalIncreaseComfort, domain.GoalPrioritizeHotWater,
		domain.GoalPrioritizeStorage, domain.GoalReduceLoad,
	} {
		if !seen[g] {
			t.Errorf("default catalog has no exemplar for %s", g)
		}
	}
}
