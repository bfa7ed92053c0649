// Package intent resolves free-text utterances into operational goals by
// nearest-match against a fixed, embedded exemplar catalog.
package intent

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/logger"
)

// Exemplar is one catalog phrase mapped to a goal.
type Exemplar struct {
	ID     string
	Phrase string
	Goal   domain.Goal
}

// DefaultCatalog covers the voice vocabulary the engine understands.
// Adding a phrase here is the only step needed to widen recognition.
func DefaultCatalog() []Exemplar {
	return []Exemplar{
		{ID: "comfort-cold", Phrase: "I am cold, warm the room up", Goal: domain.GoalIncreaseComfort},
		{ID: "comfort-shiver", Phrase: "it is freezing in here, I am shivering", Goal: domain.GoalIncreaseComfort},
		{ID: "comfort-cozy", Phrase: "make it cozier and more comfortable", Goal: domain.GoalIncreaseComfort},
		{ID: "comfort-chilly", Phrase: "the office feels chilly this morning", Goal: domain.GoalIncreaseComfort},
		{ID: "water-shower", Phrase: "I want to take a hot shower soon", Goal: domain.GoalPrioritizeHotWater},
		{ID: "water-heat", Phrase: "heat up the water for tonight", Goal: domain.GoalPrioritizeHotWater},
		{ID: "water-tap", Phrase: "the tap water is lukewarm, make it hotter", Goal: domain.GoalPrioritizeHotWater},
		{ID: "storage-bank", Phrase: "store the extra heat for later", Goal: domain.GoalPrioritizeStorage},
		{ID: "storage-pcm", Phrase: "soak the thermal battery while we have surplus", Goal: domain.GoalPrioritizeStorage},
		{ID: "storage-reserve", Phrase: "build up a heat reserve for the night", Goal: domain.GoalPrioritizeStorage},
		{ID: "reduce-quiet", Phrase: "quiet everything down and save energy", Goal: domain.GoalReduceLoad},
		{ID: "reduce-off", Phrase: "turn things down, we are leaving", Goal: domain.GoalReduceLoad},
		{ID: "reduce-eco", Phrase: "go into low power eco mode", Goal: domain.GoalReduceLoad},
	}
}

// Resolver matches utterances to the catalog. Exemplar embeddings are
// computed once on first use and held in memory.
type Resolver struct {
	embedder      domain.Embedder
	catalog       []Exemplar
	minConfidence float64

	mu      sync.RWMutex
	vectors [][]float32
}

// NewResolver creates an intent resolver over the given catalog. A nil
// catalog uses DefaultCatalog.
func NewResolver(embedder domain.Embedder, catalog []Exemplar, minConfidence float64) *Resolver {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	return &Resolver{
		embedder:      embedder,
		catalog:       catalog,
		minConfidence: minConfidence,
	}
}

// ensureVectors embeds the catalog once. A failed attempt is retried on
// the next call rather than cached forever. No lock is held across the
// provider calls: racing cold-start callers may duplicate the embedding
// work, and the first finished set wins.
func (r *Resolver) ensureVectors(ctx context.Context) ([][]float32, error) {
	r.mu.RLock()
	vectors := r.vectors
	r.mu.RUnlock()
	if vectors != nil {
		return vectors, nil
	}

	vectors = make([][]float32, len(r.catalog))
	for i, ex := range r.catalog {
		res, err := r.embedder.Embed(ctx, ex.Phrase)
		if err != nil {
			return nil, fmt.Errorf("embed exemplar %s: %w", ex.ID, err)
		}
		vectors[i] = res.Embedding
	}

	r.mu.Lock()
	if r.vectors == nil {
		r.vectors = vectors
	} else {
		vectors = r.vectors
	}
	r.mu.Unlock()
	return vectors, nil
}

// Resolve maps an utterance to a Directive. It never fails: when the
// embedding provider is unavailable or no exemplar clears the confidence
// threshold, it falls back to the safe default goal.
func (r *Resolver) Resolve(ctx context.Context, utterance string) (domain.Directive, error) {
	log := logger.FromContext(ctx)

	if utterance == "" {
		return domain.Directive{}, fmt.Errorf("utterance is required: %w", domain.ErrValidation)
	}

	vectors, err := r.ensureVectors(ctx)
	if err != nil {
		log.Warn("exemplar catalog unavailable, using default directive", zap.Error(err))
		return defaultDirective(0), nil
	}

	res, err := r.embedder.Embed(ctx, utterance)
	if err != nil {
		log.Warn("utterance embedding failed, using default directive", zap.Error(err))
		return defaultDirective(0), nil
	}

	bestIdx := -1
	bestScore := -1.0
	for i := range r.catalog {
		score := domain.CosineSimilarity(res.Embedding, vectors[i])
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}

	confidence := clamp01(bestScore)

	if bestIdx < 0 || confidence < r.minConfidence {
		log.Info("no exemplar above threshold, using default directive",
			zap.Float64("best_score", confidence),
			zap.Float64("min_confidence", r.minConfidence))
		return defaultDirective(confidence), nil
	}

	best := r.catalog[bestIdx]
	log.Info("intent resolved",
		zap.String("goal", string(best.Goal)),
		zap.String("exemplar", best.ID),
		zap.Float64("confidence", confidence))

	return domain.Directive{
		Goal:              best.Goal,
		Confidence:        confidence,
		MatchedExemplarID: best.ID,
		MatchedExemplar:   best.Phrase,
	}, nil
}

func defaultDirective(confidence float64) domain.Directive {
	return domain.Directive{
		Goal:                domain.GoalIncreaseComfort,
		Confidence:          confidence,
		UsedDefaultFallback: true,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
