// Package ambience is the procedural audio engine. It synthesises ambient
// textures and short cue tones into a small mixing graph:
//
//	master ─┬─ background bus ─┬─ texture (bed + transients)
//	        │                  └─ asset loop
//	        ├─ transition cues
//	        ├─ voice fallback beeps
//	        └─ phase pads
//
// The master output is tapped for level metering and pulled by one
// output.Device on its own goroutine.
package ambience

import (
	"context"
	"fmt"
	"log"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/effects"

	"github.com/j-emboi/sarcastic-serenity/internal/level"
	"github.com/j-emboi/sarcastic-serenity/internal/output"
	"github.com/j-emboi/sarcastic-serenity/internal/synth"
)

// Default bus gains.
const (
	DefaultCueVolume = 0.5
	voiceBusGain     = 0.4
	padBusGain       = 0.2
)

// TextureState describes the texture currently playing.
type TextureState struct {
	Kind        Kind    `json:"kind"`
	Volume      float64 `json:"volume"`
	Serendipity float64 `json:"serendipity"`
}

// texture owns every node and timer of one running preset.
type texture struct {
	state  TextureState
	noise  []float64
	mix    *bus
	ctrl   *beep.Ctrl
	nodes  map[*beep.Ctrl]struct{}
	timers *timerSet
}

func newTexture(state TextureState, noise []float64) *texture {
	mix := &bus{}
	return &texture{
		state:  state,
		noise:  noise,
		mix:    mix,
		ctrl:   &beep.Ctrl{Streamer: mix},
		nodes:  make(map[*beep.Ctrl]struct{}),
		timers: newTimerSet(),
	}
}

func (t *texture) add(s beep.Streamer) *beep.Ctrl {
	c := &beep.Ctrl{Streamer: s}
	t.nodes[c] = struct{}{}
	t.mix.Add(c)
	return c
}

func (t *texture) remove(c *beep.Ctrl) {
	if _, ok := t.nodes[c]; !ok {
		return
	}
	c.Streamer = nil
	t.mix.Remove(c)
	delete(t.nodes, c)
}

// stop silences the texture and detaches every node from its bus. The
// caller detaches t.ctrl from the background bus.
func (t *texture) stop() {
	t.timers.stop()
	for c := range t.nodes {
		c.Streamer = nil
	}
	clear(t.nodes)
	t.mix.Clear()
	t.ctrl.Streamer = nil
}

// Option configures an Engine.
type Option func(*Engine)

// WithDevice plays through d instead of the default PortAudio output.
func WithDevice(d output.Device) Option {
	return func(e *Engine) { e.dev = d }
}

// WithScheduler replaces the timer source for stochastic events.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) { e.sched = s }
}

// WithRand seeds the engine's random source.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) { e.rng = r }
}

// Engine is the procedural audio engine. All methods are safe for
// concurrent use.
type Engine struct {
	// devMu serialises device lifecycle. It is never held together with mu
	// because the device's render goroutine takes mu.
	devMu  sync.Mutex
	dev    output.Device
	opened bool
	silent bool

	mu         sync.Mutex
	master     *effects.Volume
	bg         *effects.Volume
	bgMix      *bus
	bgGain     float64
	transition *effects.Volume
	transMix   *bus
	voiceMix   *bus
	padMix     *bus
	toneMix    *bus
	tap        *level.Tap

	tex        *texture
	asset      *beep.Ctrl
	assetClose func() error
	shots      map[*beep.Ctrl]*bus
	shotTimers *timerSet
	cueVolume  float64

	rng   *rand.Rand
	sched Scheduler

	levelMu  sync.Mutex
	analyser *level.Analyser
	levelCb  func(float64)
	monStop  chan struct{}
	monDone  chan struct{}
}

// New builds the mixing graph. The output device is opened lazily by
// EnsureContext.
func New(opts ...Option) *Engine {
	e := &Engine{
		bgMix:      &bus{},
		transMix:   &bus{},
		voiceMix:   &bus{},
		padMix:     &bus{},
		toneMix:    &bus{},
		shots:      make(map[*beep.Ctrl]*bus),
		shotTimers: newTimerSet(),
		bgGain:     1,
		cueVolume:  DefaultCueVolume,
		analyser:   level.NewAnalyser(),
	}
	for _, o := range opts {
		o(e)
	}
	if e.dev == nil {
		e.dev = output.NewPortAudio(-1)
	}
	if e.sched == nil {
		e.sched = SystemScheduler{}
	}
	if e.rng == nil {
		e.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	e.bg = newGain(e.bgMix, e.bgGain)
	e.transition = newGain(e.transMix, e.cueVolume)
	mix := &beep.Mixer{}
	mix.Add(e.bg, e.transition, newGain(e.voiceMix, voiceBusGain), newGain(e.padMix, padBusGain), e.toneMix)
	e.master = newGain(mix, 1)
	e.tap = level.NewTap(e.master, level.FFTSize*4)
	return e
}

// newGain wraps s in a volume stage at linear gain g.
func newGain(s beep.Streamer, g float64) *effects.Volume {
	v := &effects.Volume{Streamer: s, Base: 2}
	setGain(v, g)
	return v
}

// setGain converts a linear gain to the Volume's log2 scale. log2(0) is
// -Inf, so zero is expressed as Silent.
func setGain(v *effects.Volume, g float64) {
	if g <= 0 {
		v.Volume = 0
		v.Silent = true
		return
	}
	v.Volume = math.Log2(g)
	v.Silent = false
}

// renderer is the streamer handed to the output device.
type renderer struct{ e *Engine }

func (r renderer) Stream(samples [][2]float64) (n int, ok bool) {
	r.e.mu.Lock()
	defer r.e.mu.Unlock()
	defer func() {
		if v := recover(); v != nil {
			log.Printf("[ambience] render: %v", v)
			clear(samples)
			n, ok = len(samples), true
		}
	}()
	r.e.tap.Stream(samples)
	return len(samples), true
}

func (renderer) Err() error { return nil }

// EnsureContext opens the output device on first use and resumes it if it
// is suspended. When no device can be opened the engine logs once and
// stays silent; later calls return nil without retrying.
func (e *Engine) EnsureContext(ctx context.Context) error {
	e.devMu.Lock()
	defer e.devMu.Unlock()

	if e.silent {
		return nil
	}
	if !e.opened {
		if err := e.dev.Open(renderer{e}); err != nil {
			e.silent = true
			log.Printf("[ambience] no output, continuing silent: %v", err)
			return nil
		}
		e.opened = true
		log.Printf("[ambience] output=%s state=%s", e.dev.Name(), e.dev.State())
	}
	// StopAll ends monitoring; every reopen of the graph brings it back.
	e.StartAudioLevelMonitoring()
	if e.dev.State() == output.StateSuspended {
		if err := e.dev.Resume(ctx); err != nil {
			return fmt.Errorf("resume output: %w", err)
		}
		log.Printf("[ambience] output resumed state=%s", e.dev.State())
	}
	return nil
}

// Silent reports whether the engine fell back to silent mode.
func (e *Engine) Silent() bool {
	e.devMu.Lock()
	defer e.devMu.Unlock()
	return e.silent
}

// StartPreset replaces the current texture with kind at volume, overlaid
// with stochastic events paced by serendipity. An unknown kind fails
// before anything is stopped.
func (e *Engine) StartPreset(ctx context.Context, kind Kind, volume, serendipity float64) error {
	rc, ok := recipes[kind]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPreset, kind)
	}
	if err := e.EnsureContext(ctx); err != nil {
		return err
	}

	state := TextureState{Kind: kind, Volume: clamp01(volume), Serendipity: clamp01(serendipity)}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.stopTextureLocked()
	tex := newTexture(state, synth.NoiseBuffer(rc.color, noiseSeconds, e.rng))
	e.bgMix.Add(tex.ctrl)
	if rc.base != nil {
		tex.add(synth.Stream(rc.base(tex.noise, state.Volume), 0))
	}
	e.tex = tex

	if tr := rc.transient; tr != nil && state.Serendipity > 0 {
		if tr.first == nil {
			e.emitTransientLocked(tex, tr)
		} else {
			tex.timers.add(e.sched, tr.first(e.rng), func() { e.fireTransient(tex, tr) })
		}
	}
	log.Printf("[ambience] preset=%s volume=%.2f serendipity=%.2f", kind, state.Volume, state.Serendipity)
	return nil
}

func (e *Engine) fireTransient(tex *texture, tr *transientSpec) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tex != tex {
		return
	}
	e.emitTransientLocked(tex, tr)
}

// emitTransientLocked plays one event and schedules the next. A failing
// generator is logged and ends that texture's overlay.
func (e *Engine) emitTransientLocked(tex *texture, tr *transientSpec) {
	defer func() {
		if v := recover(); v != nil {
			log.Printf("[ambience] %s %s: %v", tex.state.Kind, tr.name, v)
		}
	}()

	peak := tex.state.Volume * tr.level * tex.state.Serendipity
	b := tr.make(e.rng, tex.noise, peak)
	node := tex.add(synth.Stream(b.node, b.lifetime))
	tex.timers.add(e.sched, b.lifetime, func() {
		e.mu.Lock()
		tex.remove(node)
		e.mu.Unlock()
	})
	tex.timers.add(e.sched, nextDelay(tex.state.Kind, e.rng, tex.state.Serendipity), func() {
		e.fireTransient(tex, tr)
	})
}

func (e *Engine) stopTextureLocked() bool {
	if e.tex == nil {
		return false
	}
	e.tex.stop()
	e.bgMix.Remove(e.tex.ctrl)
	e.tex = nil
	return true
}

// StopProceduralNoise stops the current texture and all of its pending
// events. It is a no-op when nothing is playing.
func (e *Engine) StopProceduralNoise() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stopTextureLocked() {
		log.Println("[ambience] texture stopped")
	}
}

// Texture returns the running texture, if any.
func (e *Engine) Texture() (TextureState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.tex == nil {
		return TextureState{}, false
	}
	return e.tex.state, true
}

// SetBackgroundVolume sets the background bus gain in place.
func (e *Engine) SetBackgroundVolume(v float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.setBackgroundLocked(v)
}

func (e *Engine) setBackgroundLocked(v float64) {
	v = clamp01(v)
	e.bgGain = v
	setGain(e.bg, v)
}

// BackgroundVolume returns the background bus gain.
func (e *Engine) BackgroundVolume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.bgGain
}

// DuckBackground scales the background gain by factor and returns a func
// that restores the gain it found.
func (e *Engine) DuckBackground(factor float64) (restore func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	orig := e.bgGain
	e.setBackgroundLocked(orig * factor)
	return func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		e.setBackgroundLocked(orig)
	}
}

// playShotLocked adds a bounded one-shot node to bus and removes it after d.
func (e *Engine) playShotLocked(b *bus, sig synth.Signal, d time.Duration) {
	c := &beep.Ctrl{Streamer: synth.Stream(sig, d)}
	b.Add(c)
	e.shots[c] = b
	e.shotTimers.add(e.sched, d, func() {
		e.mu.Lock()
		defer e.mu.Unlock()
		if b, ok := e.shots[c]; ok {
			c.Streamer = nil
			b.Remove(c)
			delete(e.shots, c)
		}
	})
}

// ActiveNodes counts the generator nodes currently in the mix. Every
// counted node is attached to exactly one bus.
func (e *Engine) ActiveNodes() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := len(e.shots)
	if e.tex != nil {
		n += len(e.tex.nodes)
	}
	if e.asset != nil {
		n++
	}
	return n
}

// PendingTimers counts scheduled but not yet fired events.
func (e *Engine) PendingTimers() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := e.shotTimers.len()
	if e.tex != nil {
		n += e.tex.timers.len()
	}
	return n
}

// StopAll stops the asset loop, the texture, in-flight cues and level
// monitoring. The engine stays usable: the next EnsureContext, and so the
// next preset, track or test tone, restarts monitoring.
func (e *Engine) StopAll() {
	e.mu.Lock()
	e.stopBackgroundLocked()
	e.stopTextureLocked()
	e.shotTimers.stop()
	for c, b := range e.shots {
		c.Streamer = nil
		b.Remove(c)
	}
	clear(e.shots)
	e.shotTimers = newTimerSet()
	e.mu.Unlock()

	e.StopAudioLevelMonitoring()
}

// Close stops everything and releases the output device.
func (e *Engine) Close() error {
	e.StopAll()

	e.devMu.Lock()
	defer e.devMu.Unlock()
	if !e.opened {
		return nil
	}
	e.opened = false
	return e.dev.Close()
}
