package domain

import (
	"fmt"
	"sort"
	"strings"
)

// Capability is a closed vocabulary tag describing what a building system can do.
type Capability string

const (
	// CapHeating marks systems that can deliver heat to occupied space.
	CapHeating Capability = "heating"
	// CapCooling marks systems that can remove heat from occupied space.
	CapCooling Capability = "cooling"
	// CapHotWater marks systems that can absorb heat into domestic hot water.
	CapHotWater Capability = "hot_water"
	// CapThermalStorage marks systems that can bank heat for later use (PCM, cistern).
	CapThermalStorage Capability = "thermal_storage"
	// CapInsulation marks passive envelope systems (blinds, dynamic glazing).
	CapInsulation Capability = "insulation"
	// CapFiltration marks air/water filtration systems.
	CapFiltration Capability = "filtration"
)

// Capabilities lists every valid capability tag.
func Capabilities() []Capability {
	return []Capability{
		CapHeating, CapCooling, CapHotWater,
		CapThermalStorage, CapInsulation, CapFiltration,
	}
}

// ParseCapability validates a capability tag.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Capabilities() {
		if c == known {
			return c, nil
		}
	}
	return "", fmt.Errorf("unknown capability %q: %w", s, ErrValidation)
}

// MaxCapacity is the upper bound of the normalized intensity unit.
const MaxCapacity = 100.0

// SystemRecord is one building subsystem entry. The embedding vector lives
// only in the vector store; the record here carries the metadata half.
type SystemRecord struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description"`
	Capabilities []Capability `json:"capabilities"`
	Capacity     float64      `json:"capacity"`
	CreatedAt    int64        `json:"created_at"` // unix millis UTC
	UpdatedAt    int64        `json:"updated_at"` // unix millis UTC
}

// Validate checks required fields and bounds.
func (r *SystemRecord) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("name is required: %w", ErrValidation)
	}
	if strings.TrimSpace(r.Description) == "" {
		return fmt.Errorf("description is required: %w", ErrValidation)
	}
	if r.Capacity < 0 || r.Capacity > MaxCapacity {
		return fmt.Errorf("capacity %.1f out of range [0, %.0f]: %w", r.Capacity, MaxCapacity, ErrValidation)
	}
	seen := make(map[Capability]bool, len(r.Capabilities))
	for _, c := range r.Capabilities {
		if _, err := ParseCapability(string(c)); err != nil {
			return err
		}
		if seen[c] {
			return fmt.Errorf("duplicate capability %q: %w", c, ErrValidation)
		}
		seen[c] = true
	}
	return nil
}

// HasCapability reports whether the record carries the given tag.
func (r *SystemRecord) HasCapability(c Capability) bool {
	for _, have := range r.Capabilities {
		if have == c {
			return true
		}
	}
	return false
}

// HasAnyCapability reports whether the record carries at least one of the tags.
func (r *SystemRecord) HasAnyCapability(cs ...Capability) bool {
	for _, c := range cs {
		if r.HasCapability(c) {
			return true
		}
	}
	return false
}

// EmbeddingText is the canonical text embedded for a record.
func (r *SystemRecord) EmbeddingText() string {
	return r.Name + "\n" + r.Description
}

// SortRecords orders records by creation time, ties broken by id, for stable listing.
func SortRecords(records []SystemRecord) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].CreatedAt != records[j].CreatedAt {
			return records[i].CreatedAt < records[j].CreatedAt
		}
		return records[i].ID < records[j].ID
	})
}

// Match is one similarity search hit: a record plus its normalized score.
type Match struct {
	Record SystemRecord `json:"record"`
	Score  float64      `json:"score"` // cosine similarity normalized to [0,1]
}
