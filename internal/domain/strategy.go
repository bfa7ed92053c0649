package domain

// HeatSourceServer is the only routing source this engine knows: captured
// server waste heat.
const HeatSourceServer = "server_heat"

// RoutingStep directs a share of captured heat to one building system.
type RoutingStep struct {
	From      string  `json:"from"` // always HeatSourceServer
	To        string  `json:"to"`   // system id
	Intensity float64 `json:"intensity"`
	Reason    string  `json:"reason"`
}

// Strategy is an ordered heat-routing decision. The sum of step intensities
// never exceeds the intensity equivalent of the currently available heat.
type Strategy struct {
	Steps          []RoutingStep `json:"steps"`
	TotalIntensity float64       `json:"total_intensity"`
	Narrative      string        `json:"narrative,omitempty"`
}
