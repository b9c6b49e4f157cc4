package ambience

import (
	"context"
	"log"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/synth"
)

// tone is a cue pitch through a resonant low-pass.
type tone struct {
	freq, cutoff, q float64
}

var transitionTones = map[string]tone{
	"inhale": {523, 3000, 2},   // C5
	"hold":   {440, 2000, 1},   // A4
	"exhale": {349, 1500, 0.5}, // F4
	"hold2":  {392, 1800, 1.5}, // G4
}

var defaultTone = tone{440, 2000, 1}

// Transition cue envelope, in seconds.
const (
	cueAttack  = 0.15
	cueDecay   = 0.3
	cueRelease = 0.4
	cuePeak    = 0.6
	cueSustain = 0.4
)

// CueDuration is how long a transition cue stays in the mix.
const CueDuration = 850 * time.Millisecond

// PlayPhaseTransition plays the short tone announcing phase. Unknown
// phases get the hold tone.
func (e *Engine) PlayPhaseTransition(phase string) {
	t, ok := transitionTones[phase]
	if !ok {
		t = defaultTone
	}
	osc := synth.NewOsc(synth.Sine, synth.Const(t.freq))
	f := synth.NewFilter(osc, synth.Lowpass, synth.Const(t.cutoff), synth.Const(t.q))
	env := synth.NewEnvelope(0).
		LinearTo(cuePeak, cueAttack).
		LinearTo(cueSustain, cueAttack+cueDecay).
		LinearTo(0, cueAttack+cueDecay+cueRelease)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.playShotLocked(e.transMix, synth.NewGain(f, synth.Curve(env)), CueDuration)
}

// SetCueVolume sets the gain of transition cues.
func (e *Engine) SetCueVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cueVolume = clamp01(v)
	setGain(e.transition, e.cueVolume)
}

// beepPattern is the spoken-cue fallback: a run of sine beeps of one pitch
// whose levels spell out the phase.
type beepPattern struct {
	freq   float64
	step   float64 // seconds per beep slot
	levels []float64
}

var beepPatterns = map[string]beepPattern{
	"inhale": {800, 0.3, []float64{1, 0.5, 1}},
	"hold":   {600, 0.2, []float64{1}},
	"exhale": {400, 0.4, []float64{1, 0.3, 1, 0.3, 1}},
	"hold2":  {500, 0.15, []float64{1, 0.5}},
}

// PlayBeepPattern plays the beep fallback used when no voice is available.
func (e *Engine) PlayBeepPattern(phase string) {
	p, ok := beepPatterns[phase]
	if !ok {
		p = beepPattern{800, 0.2, []float64{1}}
	}
	env := synth.NewEnvelope(0)
	for i, lvl := range p.levels {
		start := float64(i) * p.step
		env.SetAt(lvl*0.3, start).LinearTo(0, start+p.step*0.8)
	}
	osc := synth.NewOsc(synth.Sine, synth.Const(p.freq))
	d := synth.Seconds(p.step * float64(len(p.levels)))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.playShotLocked(e.voiceMix, synth.NewGain(osc, synth.Curve(env)), d)
}

// pad is a soft low triangle under each phase.
type pad struct {
	freq, cutoff, seconds float64
}

var phasePads = map[string]pad{
	"inhale": {150, 600, 1.2},
	"hold":   {180, 800, 0.8},
	"exhale": {120, 400, 1.5},
	"hold2":  {160, 700, 1.0},
}

// PlayPhasePad plays the ambient pad for phase.
func (e *Engine) PlayPhasePad(phase string) {
	p, ok := phasePads[phase]
	if !ok {
		p = pad{200, 800, 1.0}
	}
	osc := synth.NewOsc(synth.Triangle, synth.Const(p.freq))
	f := synth.NewFilter(osc, synth.Lowpass, synth.Const(p.cutoff), synth.Const(0.5))
	env := synth.NewEnvelope(0).LinearTo(0.1, 0.3).LinearTo(0, p.seconds-0.5)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.playShotLocked(e.padMix, synth.NewGain(f, synth.Curve(env)), synth.Seconds(p.seconds))
}

// TestTone plays a quiet 440 Hz tone for two seconds straight into the
// master bus, for checking the output path and the level meter.
func (e *Engine) TestTone(ctx context.Context) error {
	if err := e.EnsureContext(ctx); err != nil {
		return err
	}
	osc := synth.NewOsc(synth.Sine, synth.Const(440))

	e.mu.Lock()
	defer e.mu.Unlock()
	e.playShotLocked(e.toneMix, synth.NewGain(osc, synth.Const(0.1)), 2*time.Second)
	log.Println("[ambience] test tone")
	return nil
}
