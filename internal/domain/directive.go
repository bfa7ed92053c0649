package domain

import (
	"fmt"
	"strings"
)

// Goal is the closed set of operational goals an utterance can resolve to.
type Goal string

const (
	// GoalIncreaseComfort raises delivered heat to occupied space. Safe default.
	GoalIncreaseComfort Goal = "increase_comfort"
	// GoalPrioritizeHotWater routes heat into domestic hot water.
	GoalPrioritizeHotWater Goal = "prioritize_hot_water"
	// GoalPrioritizeStorage banks heat into thermal storage.
	GoalPrioritizeStorage Goal = "prioritize_storage"
	// GoalReduceLoad backs off active systems to cut energy draw.
	GoalReduceLoad Goal = "reduce_load"
)

// ParseGoal validates a goal name.
func ParseGoal(s string) (Goal, error) {
	g := Goal(strings.ToLower(strings.TrimSpace(s)))
	switch g {
	case GoalIncreaseComfort, GoalPrioritizeHotWater, GoalPrioritizeStorage, GoalReduceLoad:
		return g, nil
	}
	return "", fmt.Errorf("unknown goal %q: %w", s, ErrValidation)
}

// Directive is a resolved structured intent. Ephemeral, produced per request.
type Directive struct {
	Goal                Goal    `json:"goal"`
	Confidence          float64 `json:"confidence"` // [0,1]
	MatchedExemplarID   string  `json:"matched_exemplar_id,omitempty"`
	MatchedExemplar     string  `json:"matched_exemplar,omitempty"`
	UsedDefaultFallback bool    `json:"used_default_fallback"`
}
