package domain

import "fmt"

// Condition is the driving thermal condition derived from one forecast slot.
type Condition string

const (
	// ConditionCold means the slot temperature is below the heating threshold.
	ConditionCold Condition = "cold"
	// ConditionHot means the slot temperature is above the cooling threshold.
	ConditionHot Condition = "hot"
	// ConditionNeutral means no active thermal need.
	ConditionNeutral Condition = "neutral"
)

// PlanSlot is one hour of the output schedule.
type PlanSlot struct {
	HourOffset              int                `json:"hour_offset"`
	Condition               Condition          `json:"condition"`
	Assignments             map[string]float64 `json:"assignments"` // system id -> intensity 0..100
	Rationale               string             `json:"rationale"`
	ExpectedHeatRoutedWatts float64            `json:"expected_heat_routed_watts"`
}

// Plan is an ordered 72-slot schedule. A planning run always produces a
// fresh Plan; slots are never mutated after the run returns.
type Plan struct {
	GeneratedAt int64      `json:"generated_at"` // unix millis UTC
	Slots       []PlanSlot `json:"slots"`
}

// Validate checks the plan shape and the per-system capacity invariant.
func (p *Plan) Validate(systems []SystemRecord) error {
	if len(p.Slots) != PlanHorizonHours {
		return fmt.Errorf("plan must have %d slots, got %d", PlanHorizonHours, len(p.Slots))
	}
	capacities := make(map[string]float64, len(systems))
	for _, s := range systems {
		capacities[s.ID] = s.Capacity
	}
	for i, slot := range p.Slots {
		if slot.HourOffset != i {
			return fmt.Errorf("slot %d has hour_offset %d", i, slot.HourOffset)
		}
		for id, intensity := range slot.Assignments {
			capMax, ok := capacities[id]
			if !ok {
				return fmt.Errorf("slot %d assigns unknown system %q", i, id)
			}
			if intensity < 0 || intensity > capMax {
				return fmt.Errorf("slot %d assigns %.1f to %q beyond capacity %.1f", i, intensity, id, capMax)
			}
		}
	}
	return nil
}
