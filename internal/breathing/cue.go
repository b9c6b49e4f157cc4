package breathing

// CueText is the spoken prompt for entering phase.
func CueText(phase Phase) string {
	switch phase {
	case PhaseInhale:
		return "Breathe in..."
	case PhaseHold:
		return "Hold..."
	case PhaseExhale:
		return "Breathe out..."
	case PhaseHold2:
		return "Rest..."
	}
	return ""
}

// Progress is the fraction of the current phase already elapsed, in [0, 1].
// Visual scenes use it to scale the breathing shape.
func Progress(timeRemaining, phaseDuration float64) float64 {
	if phaseDuration <= 0 {
		return 1
	}
	v := 1 - timeRemaining/phaseDuration
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
