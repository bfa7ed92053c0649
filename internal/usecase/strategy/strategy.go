// Package strategy turns the current thermal state into an ordered
// heat-routing decision over the registered building systems.
package strategy

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/logger"
)

// SystemSource lists the registered building systems.
type SystemSource interface {
	List(ctx context.Context) ([]domain.SystemRecord, error)
}

// StateSource reads the current thermal snapshot.
type StateSource interface {
	Current() domain.ThermalState
}

// Narrator optionally rewrites a deterministic summary as prose.
type Narrator interface {
	Narrate(ctx context.Context, summary string) (string, error)
}

// Service generates circular heat-routing strategies. It never routes
// more intensity than the tracked heat output supports: requested routing
// beyond the budget is scaled down proportionally.
type Service struct {
	systems                SystemSource
	state                  StateSource
	narrator               Narrator // nil disables narration
	wattsPerIntensityPoint float64
}

// New creates the strategy service. narrator may be nil.
func New(systems SystemSource, state StateSource, narrator Narrator, wattsPerIntensityPoint float64) *Service {
	return &Service{
		systems:                systems,
		state:                  state,
		narrator:               narrator,
		wattsPerIntensityPoint: wattsPerIntensityPoint,
	}
}

// Current builds a strategy from the current state with no goal bias.
func (s *Service) Current(ctx context.Context) (domain.Strategy, error) {
	return s.build(ctx, nil)
}

// ForDirective builds a strategy biased toward the directive's goal.
func (s *Service) ForDirective(ctx context.Context, d domain.Directive) (domain.Strategy, error) {
	return s.build(ctx, &d)
}

// ForSlot builds a strategy realizing one plan slot's assignments against
// the current heat budget.
func (s *Service) ForSlot(ctx context.Context, slot domain.PlanSlot) (domain.Strategy, error) {
	state := s.state.Current()
	budget := s.intensityBudget(state)

	requests := make([]request, 0, len(slot.Assignments))
	for id, intensity := range slot.Assignments {
		requests = append(requests, request{
			id:        id,
			intensity: intensity,
			reason:    fmt.Sprintf("scheduled for hour %d (%s)", slot.HourOffset, slot.Condition),
		})
	}
	sort.Slice(requests, func(i, j int) bool { return requests[i].id < requests[j].id })

	return s.finish(ctx, requests, budget, state)
}

type request struct {
	id        string
	intensity float64
	reason    string
}

// goalCapabilities maps each goal to the capabilities its heat should
// reach first.
func goalCapabilities(g domain.Goal) []domain.Capability {
	switch g {
	case domain.GoalPrioritizeHotWater:
		return []domain.Capability{domain.CapHotWater}
	case domain.GoalPrioritizeStorage:
		return []domain.Capability{domain.CapThermalStorage}
	case domain.GoalReduceLoad:
		return nil // routing backs off entirely
	default: // GoalIncreaseComfort
		return []domain.Capability{domain.CapHeating}
	}
}

func (s *Service) build(ctx context.Context, d *domain.Directive) (domain.Strategy, error) {
	state := s.state.Current()
	budget := s.intensityBudget(state)
	if budget <= 0 {
		return domain.Strategy{Steps: []domain.RoutingStep{}}, nil
	}

	if d != nil && d.Goal == domain.GoalReduceLoad {
		return domain.Strategy{
			Steps:     []domain.RoutingStep{},
			Narrative: "load reduction requested, routing paused",
		}, nil
	}

	systems, err := s.systems.List(ctx)
	if err != nil {
		return domain.Strategy{}, fmt.Errorf("list systems: %w", err)
	}

	preferred := []domain.Capability{
		domain.CapHeating, domain.CapHotWater, domain.CapThermalStorage,
	}
	reasonBase := "absorbing captured server heat"
	if d != nil {
		if caps := goalCapabilities(d.Goal); caps != nil {
			preferred = caps
			reasonBase = fmt.Sprintf("serving goal %s", d.Goal)
		}
	}

	// Preferred-capability systems first, highest capacity first, then
	// any other heat consumer with what remains of the budget.
	requests := collect(systems, preferred, reasonBase)
	if d != nil {
		rest := []domain.Capability{
			domain.CapHeating, domain.CapHotWater, domain.CapThermalStorage,
		}
		seen := map[string]bool{}
		for _, r := range requests {
			seen[r.id] = true
		}
		for _, r := range collect(systems, rest, "absorbing remaining server heat") {
			if !seen[r.id] {
				requests = append(requests, r)
			}
		}
	}

	return s.finish(ctx, requests, budget, state)
}

// collect gathers capacity-ordered routing requests for systems holding
// any of the given capabilities.
func collect(systems []domain.SystemRecord, caps []domain.Capability, reason string) []request {
	matched := make([]domain.SystemRecord, 0, len(systems))
	for _, r := range systems {
		if r.HasAnyCapability(caps...) {
			matched = append(matched, r)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Capacity != matched[j].Capacity {
			return matched[i].Capacity > matched[j].Capacity
		}
		return matched[i].ID < matched[j].ID
	})
	out := make([]request, 0, len(matched))
	for _, r := range matched {
		if r.Capacity <= 0 {
			continue
		}
		out = append(out, request{id: r.ID, intensity: r.Capacity, reason: reason})
	}
	return out
}

// finish applies the feasibility check and assembles the strategy. When
// requested intensity exceeds the budget every step is scaled down by the
// same factor and the scaling is noted in its reason.
func (s *Service) finish(ctx context.Context, requests []request, budget float64, state domain.ThermalState) (domain.Strategy, error) {
	log := logger.FromContext(ctx)

	if budget <= 0 || len(requests) == 0 {
		return domain.Strategy{Steps: []domain.RoutingStep{}}, nil
	}

	total := 0.0
	for _, r := range requests {
		total += r.intensity
	}

	scale := 1.0
	if total > budget {
		scale = budget / total
	}

	strategy := domain.Strategy{Steps: make([]domain.RoutingStep, 0, len(requests))}
	for _, r := range requests {
		intensity := r.intensity * scale
		if intensity <= 0 {
			continue
		}
		reason := r.reason
		if scale < 1 {
			reason = fmt.Sprintf("%s (scaled to %.0f%% of requested, limited by available heat)",
				r.reason, scale*100)
		}
		strategy.Steps = append(strategy.Steps, domain.RoutingStep{
			From:      domain.HeatSourceServer,
			To:        r.id,
			Intensity: intensity,
			Reason:    reason,
		})
		strategy.TotalIntensity += intensity
	}

	strategy.Narrative = s.narrate(ctx, strategy, state)

	log.Info("strategy built",
		zap.Int("steps", len(strategy.Steps)),
		zap.Float64("total_intensity", strategy.TotalIntensity),
		zap.Float64("budget", budget))

	return strategy, nil
}

// narrate produces the operator-facing narrative. Narration failure
// degrades to the deterministic summary.
func (s *Service) narrate(ctx context.Context, strategy domain.Strategy, state domain.ThermalState) string {
	summary := fmt.Sprintf(
		"routing %.1f intensity of server heat (%.0f W available) across %d system(s)",
		strategy.TotalIntensity, state.HeatOutputWatts, len(strategy.Steps))
	if s.narrator == nil {
		return summary
	}
	prose, err := s.narrator.Narrate(ctx, summary)
	if err != nil {
		logger.FromContext(ctx).Warn("narration failed, using deterministic summary", zap.Error(err))
		return summary
	}
	return prose
}

func (s *Service) intensityBudget(state domain.ThermalState) float64 {
	if s.wattsPerIntensityPoint <= 0 {
		return 0
	}
	return state.HeatOutputWatts / s.wattsPerIntensityPoint
}
