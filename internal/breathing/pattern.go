// Package breathing implements the breathing pacer: a timed phase state
// machine (inhale, hold, exhale, optional second hold) repeated for a fixed
// number of cycles, plus the built-in pattern catalog.
package breathing

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// Phase is one segment of a breathing cycle.
type Phase string

const (
	PhaseInhale Phase = "inhale"
	PhaseHold   Phase = "hold"
	PhaseExhale Phase = "exhale"
	PhaseHold2  Phase = "hold2"
)

// Valid reports whether p is one of the four known phases.
func (p Phase) Valid() bool {
	switch p {
	case PhaseInhale, PhaseHold, PhaseExhale, PhaseHold2:
		return true
	}
	return false
}

// Category groups patterns in the picker.
type Category string

const (
	CategoryRelaxation   Category = "relaxation"
	CategoryEnergy       Category = "energy"
	CategoryFocus        Category = "focus"
	CategorySleep        Category = "sleep"
	CategoryStressRelief Category = "stress-relief"
)

var (
	// ErrInvalidPattern is returned when a pattern has a non-positive
	// duration or fewer than one cycle.
	ErrInvalidPattern = errors.New("invalid breathing pattern")
	// ErrUnknownPattern is returned by lookups for an ID not in the catalog.
	ErrUnknownPattern = errors.New("unknown breathing pattern")
)

// Pattern is an immutable breathing rhythm. Durations are in seconds.
// Hold2 == 0 means the pattern has three phases.
type Pattern struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Inhale      float64  `json:"inhale"`
	Hold        float64  `json:"hold"`
	Exhale      float64  `json:"exhale"`
	Hold2       float64  `json:"hold2,omitempty"`
	Cycles      int      `json:"cycles"`
}

// HasHold2 reports whether the pattern includes the fourth phase.
func (p Pattern) HasHold2() bool { return p.Hold2 > 0 }

// Phases returns the phase order of one cycle.
func (p Pattern) Phases() []Phase {
	if p.HasHold2() {
		return []Phase{PhaseInhale, PhaseHold, PhaseExhale, PhaseHold2}
	}
	return []Phase{PhaseInhale, PhaseHold, PhaseExhale}
}

// Duration returns the configured length of phase in seconds. Unknown phases
// and an absent hold2 return 0.
func (p Pattern) Duration(phase Phase) float64 {
	switch phase {
	case PhaseInhale:
		return p.Inhale
	case PhaseHold:
		return p.Hold
	case PhaseExhale:
		return p.Exhale
	case PhaseHold2:
		return p.Hold2
	}
	return 0
}

// CycleSeconds is the length of one full cycle.
func (p Pattern) CycleSeconds() float64 {
	return p.Inhale + p.Hold + p.Exhale + p.Hold2
}

// TotalSeconds is the nominal session length.
func (p Pattern) TotalSeconds() float64 {
	return p.CycleSeconds() * float64(p.Cycles)
}

// Validate checks the invariants every pacer relies on.
func (p Pattern) Validate() error {
	check := func(name string, v float64) error {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: %s must be a positive number of seconds, got %v", ErrInvalidPattern, name, v)
		}
		return nil
	}
	if err := check("inhale", p.Inhale); err != nil {
		return err
	}
	if err := check("hold", p.Hold); err != nil {
		return err
	}
	if err := check("exhale", p.Exhale); err != nil {
		return err
	}
	if p.Hold2 != 0 {
		if err := check("hold2", p.Hold2); err != nil {
			return err
		}
	}
	if p.Cycles < 1 {
		return fmt.Errorf("%w: cycles must be at least 1, got %d", ErrInvalidPattern, p.Cycles)
	}
	return nil
}

var catalog = []Pattern{
	{ID: "box", Name: "Box Breathing", Category: CategoryRelaxation,
		Description: "Equal inhale, hold, exhale, hold (4-4-4-4). Steadies attention and takes the edge off stress.",
		Inhale:      4, Hold: 4, Exhale: 4, Hold2: 4, Cycles: 10},
	{ID: "relaxation", Name: "4-7-8 Breathing", Category: CategoryRelaxation,
		Description: "Deep relaxation pattern (4-7-8) for winding down and easing anxiety.",
		Inhale:      4, Hold: 7, Exhale: 8, Cycles: 8},
	{ID: "calm", Name: "Calm Breathing", Category: CategoryRelaxation,
		Description: "Gentle 4-4-4 pattern for everyday relaxation.",
		Inhale:      4, Hold: 4, Exhale: 4, Cycles: 10},

	{ID: "energy", Name: "Energy Breathing", Category: CategoryEnergy,
		Description: "Quick energizing pattern (3-1-3-1) to boost alertness.",
		Inhale:      3, Hold: 1, Exhale: 3, Hold2: 1, Cycles: 12},
	{ID: "power", Name: "Power Breathing", Category: CategoryEnergy,
		Description: "Intense energizing pattern (2-1-2-1).",
		Inhale:      2, Hold: 1, Exhale: 2, Hold2: 1, Cycles: 15},

	{ID: "focus", Name: "Focus Breathing", Category: CategoryFocus,
		Description: "Concentration pattern (5-5-5) for mental clarity.",
		Inhale:      5, Hold: 5, Exhale: 5, Cycles: 8},
	{ID: "mindful", Name: "Mindful Breathing", Category: CategoryFocus,
		Description: "Mindfulness pattern (6-2-7) for awareness and presence.",
		Inhale:      6, Hold: 2, Exhale: 7, Cycles: 6},

	{ID: "sleep", Name: "Sleep Breathing", Category: CategorySleep,
		Description: "Deep sleep pattern (4-6-4) to prepare the body for rest.",
		Inhale:      4, Hold: 6, Exhale: 4, Cycles: 6},
	{ID: "deep-sleep", Name: "Deep Sleep", Category: CategorySleep,
		Description: "Slow sleep pattern (3-7-5) for restorative sleep.",
		Inhale:      3, Hold: 7, Exhale: 5, Cycles: 5},

	{ID: "stress-relief", Name: "Stress Relief", Category: CategoryStressRelief,
		Description: "Quick stress relief (5-3-6) to calm the nervous system.",
		Inhale:      5, Hold: 3, Exhale: 6, Cycles: 7},
	{ID: "anxiety", Name: "Anxiety Relief", Category: CategoryStressRelief,
		Description: "Anxiety reduction (4-8-6) to soothe racing thoughts.",
		Inhale:      4, Hold: 8, Exhale: 6, Cycles: 6},
}

// DefaultPatternID is selected when nothing else is configured.
const DefaultPatternID = "box"

// Patterns returns a copy of the built-in catalog in display order.
func Patterns() []Pattern {
	out := make([]Pattern, len(catalog))
	copy(out, catalog)
	return out
}

// PatternByID looks up a built-in pattern. IDs are matched case-insensitively.
func PatternByID(id string) (Pattern, error) {
	id = strings.ToLower(strings.TrimSpace(id))
	for _, p := range catalog {
		if p.ID == id {
			return p, nil
		}
	}
	return Pattern{}, fmt.Errorf("%w: %q", ErrUnknownPattern, id)
}

// MustPattern is PatternByID for IDs known at compile time.
func MustPattern(id string) Pattern {
	p, err := PatternByID(id)
	if err != nil {
		panic(err)
	}
	return p
}

// PatternsByCategory returns the built-in patterns in category c.
func PatternsByCategory(c Category) []Pattern {
	var out []Pattern
	for _, p := range catalog {
		if p.Category == c {
			out = append(out, p)
		}
	}
	return out
}
