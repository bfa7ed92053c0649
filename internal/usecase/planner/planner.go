// Package planner builds the 72-hour activation schedule from a weather
// forecast, the registered building systems, and the current thermal state.
package planner

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/aetheris-os/aetheris/internal/domain"
	"github.com/aetheris-os/aetheris/internal/logger"
	"github.com/aetheris-os/aetheris/internal/metrics"
)

// Config holds the planning thresholds. All of them are tunables, not
// derived values.
type Config struct {
	// ColdBelowC marks a slot as a heating need.
	ColdBelowC float64
	// HotAboveC marks a slot as a cooling need.
	HotAboveC float64
	// OvercastCloudPct widens the heating band: heavy cloud cover means
	// no passive solar gain, so mildly cool hours still count as cold.
	OvercastCloudPct float64
	// NeedPerDegree converts degrees beyond a threshold into intensity units.
	NeedPerDegree float64
	// ContinuityBonus is the ranking bonus for systems already active in
	// the previous slot under the same condition.
	ContinuityBonus float64
	// HeatAffinityWeight scales how strongly available server heat favors
	// heat-consuming systems.
	HeatAffinityWeight float64
	// WattsPerIntensityPoint converts tracked heat watts into the
	// intensity unit for affinity weighting.
	WattsPerIntensityPoint float64
}

// ForecastSource delivers a full 72-hour window or fails.
type ForecastSource interface {
	Fetch(ctx context.Context) ([]domain.ForecastSlot, error)
}

// SystemSource lists the registered building systems.
type SystemSource interface {
	List(ctx context.Context) ([]domain.SystemRecord, error)
}

// StateSource reads the current thermal snapshot.
type StateSource interface {
	Current() domain.ThermalState
}

// Service orchestrates a planning run around the pure Build function.
type Service struct {
	cfg      Config
	forecast ForecastSource
	systems  SystemSource
	state    StateSource

	now func() time.Time // injectable for tests
}

// New creates the planning service.
func New(cfg Config, forecast ForecastSource, systems SystemSource, state StateSource) *Service {
	return &Service{cfg: cfg, forecast: forecast, systems: systems, state: state, now: time.Now}
}

// Plan72h fetches the forecast and current inputs and builds a plan.
// A missing or partial forecast fails the run; no synthetic weather is
// ever substituted.
func (s *Service) Plan72h(ctx context.Context) (domain.Plan, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	slots, err := s.forecast.Fetch(ctx)
	if err != nil {
		metrics.PlanRunsTotal.WithLabelValues("error").Inc()
		return domain.Plan{}, fmt.Errorf("fetch forecast: %w", err)
	}
	forecast, err := domain.NewForecast(slots)
	if err != nil {
		metrics.PlanRunsTotal.WithLabelValues("error").Inc()
		return domain.Plan{}, err
	}

	systems, err := s.systems.List(ctx)
	if err != nil {
		metrics.PlanRunsTotal.WithLabelValues("error").Inc()
		return domain.Plan{}, fmt.Errorf("list systems: %w", err)
	}

	plan := Build(s.cfg, forecast, systems, s.state.Current())
	plan.GeneratedAt = s.now().UTC().UnixMilli()

	metrics.PlanRunsTotal.WithLabelValues("success").Inc()
	metrics.PlanDuration.Observe(time.Since(start).Seconds())

	log.Info("72h plan built",
		zap.Int("systems", len(systems)),
		zap.Duration("duration", time.Since(start)))

	return plan, nil
}

// Build produces the 72-slot schedule. Pure and deterministic: identical
// inputs always yield an identical plan, and no input is mutated. The
// generation timestamp is stamped by the caller.
func Build(cfg Config, forecast domain.Forecast, systems []domain.SystemRecord, state domain.ThermalState) domain.Plan {
	ordered := make([]domain.SystemRecord, len(systems))
	copy(ordered, systems)
	domain.SortRecords(ordered)

	availableIntensity := 0.0
	if cfg.WattsPerIntensityPoint > 0 {
		availableIntensity = state.HeatOutputWatts / cfg.WattsPerIntensityPoint
	}

	plan := domain.Plan{
		Slots: make([]domain.PlanSlot, 0, domain.PlanHorizonHours),
	}

	prevActive := map[string]bool{}
	prevCondition := domain.ConditionNeutral

	for _, fs := range forecast.Slots {
		condition, need := deriveCondition(cfg, fs)

		if condition != prevCondition {
			prevActive = map[string]bool{}
		}

		slot := buildSlot(cfg, fs.HourOffset, condition, need, ordered, availableIntensity, prevActive)
		plan.Slots = append(plan.Slots, slot)

		prevActive = map[string]bool{}
		for id := range slot.Assignments {
			prevActive[id] = true
		}
		prevCondition = condition
	}

	return plan
}

// deriveCondition maps one forecast slot to a driving condition and a
// need magnitude in intensity units.
func deriveCondition(cfg Config, fs domain.ForecastSlot) (domain.Condition, float64) {
	coldThreshold := cfg.ColdBelowC
	if fs.CloudCoverPct > cfg.OvercastCloudPct {
		// No solar gain under heavy cloud; treat slightly warmer hours
		// as heating hours too.
		coldThreshold += 2
	}

	switch {
	case fs.TemperatureC < coldThreshold:
		return domain.ConditionCold, (coldThreshold - fs.TemperatureC) * cfg.NeedPerDegree
	case fs.TemperatureC > cfg.HotAboveC:
		return domain.ConditionHot, (fs.TemperatureC - cfg.HotAboveC) * cfg.NeedPerDegree
	default:
		return domain.ConditionNeutral, 0
	}
}

// neededCapabilities maps a condition to the capability tags that can
// serve it.
func neededCapabilities(condition domain.Condition) []domain.Capability {
	switch condition {
	case domain.ConditionCold:
		return []domain.Capability{
			domain.CapHeating, domain.CapHotWater, domain.CapThermalStorage,
		}
	case domain.ConditionHot:
		return []domain.Capability{
			domain.CapCooling, domain.CapInsulation,
		}
	default:
		return nil
	}
}

// heatConsuming reports whether the system can absorb routed server heat.
func heatConsuming(r *domain.SystemRecord) bool {
	return r.HasAnyCapability(domain.CapHeating, domain.CapHotWater, domain.CapThermalStorage)
}

type candidate struct {
	record domain.SystemRecord
	score  float64
}

func buildSlot(
	cfg Config,
	hour int,
	condition domain.Condition,
	need float64,
	systems []domain.SystemRecord,
	availableIntensity float64,
	prevActive map[string]bool,
) domain.PlanSlot {
	slot := domain.PlanSlot{
		HourOffset:  hour,
		Condition:   condition,
		Assignments: map[string]float64{},
	}

	if condition == domain.ConditionNeutral {
		slot.Rationale = "no active thermal need"
		return slot
	}

	needed := neededCapabilities(condition)
	candidates := make([]candidate, 0, len(systems))
	for _, r := range systems {
		if !r.HasAnyCapability(needed...) {
			continue
		}
		score := r.Capacity
		if heatConsuming(&r) {
			score += cfg.HeatAffinityWeight * availableIntensity
		}
		if prevActive[r.ID] {
			score += cfg.ContinuityBonus
		}
		candidates = append(candidates, candidate{record: r, score: score})
	}

	// Rank best-first; id ties keep the run deterministic.
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].record.ID < candidates[j].record.ID
	})

	remaining := need
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		intensity := c.record.Capacity
		if intensity > remaining {
			intensity = remaining
		}
		if intensity <= 0 {
			continue
		}
		slot.Assignments[c.record.ID] = intensity
		remaining -= intensity
		if heatConsuming(&c.record) && cfg.WattsPerIntensityPoint > 0 {
			slot.ExpectedHeatRoutedWatts += intensity * cfg.WattsPerIntensityPoint
		}
	}

	// Routed heat cannot exceed what the server tracker reports available.
	if maxWatts := availableIntensity * cfg.WattsPerIntensityPoint; slot.ExpectedHeatRoutedWatts > maxWatts {
		slot.ExpectedHeatRoutedWatts = maxWatts
	}

	switch {
	case len(slot.Assignments) == 0:
		slot.Rationale = fmt.Sprintf("%s need %.0f unmet: no capable systems registered", condition, need)
	case remaining > 0:
		slot.Rationale = fmt.Sprintf("%s need %.0f partially met, %.0f unmet after exhausting capacity",
			condition, need, remaining)
	default:
		slot.Rationale = fmt.Sprintf("%s need %.0f fully met by %d system(s)",
			condition, need, len(slot.Assignments))
	}

	return slot
}
