// Package thermal tracks the latest server heat reading and derives
// sustainability accounting from it.
package thermal

import (
	"fmt"
	"sync"
	"time"

	"github.com/aetheris-os/aetheris/internal/domain"
)

// Config holds the sustainability accounting constants.
type Config struct {
	// CO2FactorKgPerKWh converts scavenged energy to avoided emissions.
	CO2FactorKgPerKWh float64
	// BaselineKWh is the daily scavenging target that maps to score 100.
	BaselineKWh float64
	// MaxInterval caps the integration window so a long gap between
	// readings does not credit phantom energy.
	MaxInterval time.Duration
}

// Tracker holds the current thermal snapshot. Record and Current are
// atomic with respect to each other.
type Tracker struct {
	cfg Config
	now func() time.Time

	mu    sync.Mutex
	state domain.ThermalState
}

// NewTracker creates a tracker in the zero state.
func NewTracker(cfg Config) *Tracker {
	return &Tracker{cfg: cfg, now: time.Now}
}

// Record ingests a heat reading and returns the updated snapshot.
// Scavenged energy accumulates as watts integrated over the elapsed
// interval since the previous reading.
func (t *Tracker) Record(heatWatts, ambientC float64) (domain.ThermalState, error) {
	if heatWatts < 0 {
		return domain.ThermalState{}, fmt.Errorf("heat_output_watts must be non-negative, got %g: %w",
			heatWatts, domain.ErrValidation)
	}

	now := t.now().UTC()

	t.mu.Lock()
	defer t.mu.Unlock()

	elapsed := time.Duration(0)
	if t.state.RecordedAt > 0 {
		elapsed = now.Sub(time.UnixMilli(t.state.RecordedAt))
		if elapsed < 0 {
			elapsed = 0
		}
		if elapsed > t.cfg.MaxInterval {
			elapsed = t.cfg.MaxInterval
		}
	}

	// Energy credited for the interval comes from the previous power
	// level, which held until this reading arrived.
	scavenged := t.state.EnergyScavengedKWh +
		t.state.HeatOutputWatts/1000*elapsed.Hours()

	score := 0.0
	if t.cfg.BaselineKWh > 0 {
		score = 100 * scavenged / t.cfg.BaselineKWh
	}
	if score > 100 {
		score = 100
	}

	t.state = domain.ThermalState{
		HeatOutputWatts:     heatWatts,
		AmbientTemperatureC: ambientC,
		EnergyScavengedKWh:  scavenged,
		CO2AvoidedKg:        scavenged * t.cfg.CO2FactorKgPerKWh,
		SustainabilityScore: score,
		RecordedAt:          now.UnixMilli(),
	}
	return t.state, nil
}

// Current returns the latest snapshot, or the zero state before the
// first reading.
func (t *Tracker) Current() domain.ThermalState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
