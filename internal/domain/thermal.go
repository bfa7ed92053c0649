package domain

// ThermalState is the current server/building thermal snapshot with derived
// sustainability metrics. Derived fields are recomputed on every reading.
type ThermalState struct {
	HeatOutputWatts     float64 `json:"heat_output_watts"`
	AmbientTemperatureC float64 `json:"ambient_temperature_c"`
	EnergyScavengedKWh  float64 `json:"energy_scavenged_kwh"`
	CO2AvoidedKg        float64 `json:"co2_avoided_kg"`
	SustainabilityScore float64 `json:"sustainability_score"` // clamped [0,100]
	RecordedAt          int64   `json:"recorded_at"`          // unix millis UTC, 0 before first reading
}
