package thermal

import (
	"errors"
	"testing"
	"time"

	"github.com/aetheris-os/aetheris/internal/domain"
)

func testConfig() Config {
	return Config{
		CO2FactorKgPerKWh: 0.4,
		BaselineKWh:       1.56,
		MaxInterval:       15 * time.Minute,
	}
}

// fixedClock advances manually between readings.
type fixedClock struct {
	t time.Time
}

func (c *fixedClock) now() time.Time { return c.t }

func newTestTracker() (*Tracker, *fixedClock) {
	clock := &fixedClock{t: time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)}
	tr := NewTracker(testConfig())
	tr.now = clock.now
	return tr, clock
}

func TestZeroStateBeforeFirstReading(t *testing.T) {
	tr := NewTracker(testConfig())

	state := tr.Current()
	if state != (domain.ThermalState{}) {
		t.Errorf("expected zero state, got %+v", state)
	}
}

func TestRecordFirstReading(t *testing.T) {
	tr, _ := newTestTracker()

	state, err := tr.Record(65, 21.5)
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if state.HeatOutputWatts != 65 {
		t.Errorf("heat watts = %g, want 65", state.HeatOutputWatts)
	}
	if state.AmbientTemperatureC != 21.5 {
		t.Errorf("ambient = %g, want 21.5", state.AmbientTemperatureC)
	}
	// No prior interval, so nothing scavenged yet.
	if state.EnergyScavengedKWh != 0 {
		t.Errorf("first reading must not credit energy, got %g", state.EnergyScavengedKWh)
	}
	if state.RecordedAt == 0 {
		t.Error("recorded_at must be set")
	}
}

func TestRecordIntegratesEnergy(t *testing.T) {
	tr, clock := newTestTracker()

	if _, err := tr.Record(65, 21); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	clock.t = clock.t.Add(10 * time.Minute)
	state, err := tr.Record(65, 21)
	if err != nil {
		t.Fatalf("second reading: %v", err)
	}

	// 65 W for 10 minutes = 0.065 kW * (1/6) h.
	want := 0.065 / 6
	if diff := state.EnergyScavengedKWh - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("scavenged = %g, want %g", state.EnergyScavengedKWh, want)
	}
	if diff := state.CO2AvoidedKg - want*0.4; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("co2 = %g, want %g", state.CO2AvoidedKg, want*0.4)
	}
	wantScore := 100 * want / 1.56
	if diff := state.SustainabilityScore - wantScore; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("score = %g, want %g", state.SustainabilityScore, wantScore)
	}
}

func TestRecordCapsLongGaps(t *testing.T) {
	tr, clock := newTestTracker()

	if _, err := tr.Record(1000, 21); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	clock.t = clock.t.Add(6 * time.Hour)
	state, err := tr.Record(1000, 21)
	if err != nil {
		t.Fatalf("second reading: %v", err)
	}

	// Credit is capped at the 15-minute interval, not 6 hours.
	want := 1.0 * 0.25
	if diff := state.EnergyScavengedKWh - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("scavenged = %g, want capped %g", state.EnergyScavengedKWh, want)
	}
}

func TestScoreClampedAt100(t *testing.T) {
	tr, clock := newTestTracker()

	if _, err := tr.Record(100000, 21); err != nil {
		t.Fatalf("first reading: %v", err)
	}
	clock.t = clock.t.Add(15 * time.Minute)
	state, err := tr.Record(100000, 21)
	if err != nil {
		t.Fatalf("second reading: %v", err)
	}
	if state.SustainabilityScore > 100 {
		t.Errorf("score %g exceeds 100", state.SustainabilityScore)
	}
}

func TestRecordRejectsNegativeWatts(t *testing.T) {
	tr, _ := newTestTracker()

	if _, err := tr.Record(-1, 21); !errors.Is(err, domain.ErrValidation) {
		t.Errorf("expected ErrValidation, got %v", err)
	}
}

func TestEnergyAccumulatesAcrossReadings(t *testing.T) {
	tr, clock := newTestTracker()

	if _, err := tr.Record(65, 21); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(10 * time.Minute)
	if _, err := tr.Record(65, 21); err != nil {
		t.Fatal(err)
	}
	clock.t = clock.t.Add(10 * time.Minute)
	state, err := tr.Record(0, 21)
	if err != nil {
		t.Fatal(err)
	}

	want := 2 * 0.065 / 6
	if diff := state.EnergyScavengedKWh - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("scavenged = %g, want accumulated %g", state.EnergyScavengedKWh, want)
	}
}
