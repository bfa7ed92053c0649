package chi

import (
	"math"

	"github.com/aetheris-os/aetheris/internal/domain"
)

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type upsertSystemRequest struct {
	ID           string   `json:"id,omitempty"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Capacity     float64  `json:"capacity"`
}

func (r *upsertSystemRequest) toDomain() (domain.SystemRecord, error) {
	caps := make([]domain.Capability, 0, len(r.Capabilities))
	for _, s := range r.Capabilities {
		c, err := domain.ParseCapability(s)
		if err != nil {
			return domain.SystemRecord{}, err
		}
		caps = append(caps, c)
	}
	return domain.SystemRecord{
		ID:           r.ID,
		Name:         r.Name,
		Description:  r.Description,
		Capabilities: caps,
		Capacity:     r.Capacity,
	}, nil
}

type systemResponse struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Description  string   `json:"description"`
	Capabilities []string `json:"capabilities"`
	Capacity     float64  `json:"capacity"`
	CreatedAt    int64    `json:"created_at"`
	UpdatedAt    int64    `json:"updated_at"`
}

func systemToResponse(rec domain.SystemRecord) systemResponse {
	caps := make([]string, len(rec.Capabilities))
	for i, c := range rec.Capabilities {
		caps[i] = string(c)
	}
	return systemResponse{
		ID:           rec.ID,
		Name:         rec.Name,
		Description:  rec.Description,
		Capabilities: caps,
		Capacity:     rec.Capacity,
		CreatedAt:    rec.CreatedAt,
		UpdatedAt:    rec.UpdatedAt,
	}
}

type listSystemsResponse struct {
	Items []systemResponse `json:"items"`
	Total int              `json:"total"`
}

type searchRequest struct {
	Query string `json:"query"`
	TopK  int    `json:"top_k,omitempty"`
}

type matchResponse struct {
	System       systemResponse `json:"system"`
	Score        float64        `json:"score"`
	MatchPercent float64        `json:"match_percent"`
}

func matchToResponse(m domain.Match) matchResponse {
	return matchResponse{
		System:       systemToResponse(m.Record),
		Score:        m.Score,
		MatchPercent: math.Round(m.Score*1000) / 10, // one decimal place
	}
}

type searchResponse struct {
	Items []matchResponse `json:"items"`
	Total int             `json:"total"`
}

type intentRequest struct {
	Utterance string `json:"utterance"`
}

// intentResponse pairs the resolved directive with the heat-routing
// strategy built for it. The strategy is omitted when routing fails.
type intentResponse struct {
	Directive domain.Directive `json:"directive"`
	Strategy  *domain.Strategy `json:"strategy,omitempty"`
}

type readingRequest struct {
	HeatOutputWatts     float64 `json:"heat_output_watts"`
	AmbientTemperatureC float64 `json:"ambient_temperature_c"`
}
