package domain

import (
	"fmt"
	"time"
)

// PlanHorizonHours is the fixed length of a planning window.
const PlanHorizonHours = 72

// ForecastSlot is one hour of weather.
type ForecastSlot struct {
	HourOffset    int       `json:"hour_offset"`
	TemperatureC  float64   `json:"temperature_c"`
	HumidityPct   float64   `json:"humidity_pct"`
	CloudCoverPct float64   `json:"cloud_cover_pct"`
	Timestamp     time.Time `json:"timestamp"`
}

// Forecast is an immutable 72-hour hourly window.
type Forecast struct {
	Slots []ForecastSlot `json:"slots"`
}

// NewForecast validates the slot sequence: exactly PlanHorizonHours slots,
// hour offsets 0..71 with no gaps.
func NewForecast(slots []ForecastSlot) (Forecast, error) {
	if len(slots) != PlanHorizonHours {
		return Forecast{}, fmt.Errorf(
			"forecast must have exactly %d slots, got %d: %w",
			PlanHorizonHours, len(slots), ErrForecastUnavailable,
		)
	}
	for i, s := range slots {
		if s.HourOffset != i {
			return Forecast{}, fmt.Errorf(
				"forecast slot %d has hour_offset %d: %w", i, s.HourOffset, ErrForecastUnavailable,
			)
		}
	}
	out := make([]ForecastSlot, len(slots))
	copy(out, slots)
	return Forecast{Slots: out}, nil
}
