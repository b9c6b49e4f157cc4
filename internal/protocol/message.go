// Package protocol defines the JSON envelope pushed to live clients over
// websocket and Wails events, and the control messages they send back.
package protocol

// Event types pushed to clients.
const (
	TypePhaseChange     = "phase_change"
	TypeTimeUpdate      = "time_update"
	TypeCycleComplete   = "cycle_complete"
	TypeSessionComplete = "session_complete"
	TypeAudioLevel      = "audio_level"
	TypeState           = "state"
	TypeError           = "error"
	TypePong            = "pong"
)

// Control types sent by clients.
const (
	TypeStart  = "start"
	TypePause  = "pause"
	TypeResume = "resume"
	TypeStop   = "stop"
	TypePing   = "ping"
)

// Event is the JSON envelope exchanged with live clients.
type Event struct {
	Type          string  `json:"type"`
	Phase         string  `json:"phase,omitempty"`
	TimeRemaining float64 `json:"time_remaining,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Cycle         int     `json:"cycle,omitempty"`
	Cue           string  `json:"cue,omitempty"`
	Level         float64 `json:"level,omitempty"`
	PatternID     string  `json:"pattern_id,omitempty"`
	TS            int64   `json:"ts,omitempty"`
	Error         string  `json:"error,omitempty"`
	State         *State  `json:"state,omitempty"`
}

// State is a snapshot of the pacer and the ambience.
type State struct {
	Active        bool     `json:"active"`
	Paused        bool     `json:"paused"`
	Phase         string   `json:"phase"`
	TimeRemaining float64  `json:"time_remaining"`
	PhaseDuration float64  `json:"phase_duration"`
	Progress      float64  `json:"progress"`
	Cue           string   `json:"cue"`
	CycleCount    int      `json:"cycle_count"`
	TotalCycles   int      `json:"total_cycles"`
	ElapsedTime   float64  `json:"elapsed_time"`
	PatternID     string   `json:"pattern_id"`
	PatternName   string   `json:"pattern_name"`
	Ambience      *Texture `json:"ambience,omitempty"`
}

// Texture describes the playing ambience.
type Texture struct {
	Kind        string  `json:"kind"`
	Volume      float64 `json:"volume"`
	Serendipity float64 `json:"serendipity"`
}
