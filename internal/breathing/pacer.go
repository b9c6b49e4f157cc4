package breathing

import (
	"log"
	"sync"
	"time"
)

// EventKind identifies a pacer notification.
type EventKind string

const (
	EventPhaseChange     EventKind = "phase_change"
	EventTimeUpdate      EventKind = "time_update"
	EventCycleComplete   EventKind = "cycle_complete"
	EventSessionComplete EventKind = "session_complete"
)

// Event is delivered to every subscriber. Only the fields relevant to Kind
// are set: Phase and Duration for phase changes, TimeRemaining and Phase for
// time updates, Cycle for cycle completions.
type Event struct {
	Kind          EventKind `json:"kind"`
	Phase         Phase     `json:"phase,omitempty"`
	TimeRemaining float64   `json:"time_remaining,omitempty"`
	Duration      float64   `json:"duration,omitempty"`
	Cycle         int       `json:"cycle,omitempty"`
}

// Listener receives pacer events synchronously on the ticking goroutine.
type Listener func(Event)

// State is a snapshot of the pacer. It is a value; mutating it has no effect
// on the pacer that produced it.
type State struct {
	Active        bool    `json:"active"`
	Paused        bool    `json:"paused"`
	Phase         Phase   `json:"phase"`
	TimeRemaining float64 `json:"time_remaining"`
	CycleCount    int     `json:"cycle_count"`
	TotalCycles   int     `json:"total_cycles"`
	ElapsedTime   float64 `json:"elapsed_time"`
	Pattern       Pattern `json:"pattern"`
}

// PhaseDuration is the nominal length of the current phase.
func (s State) PhaseDuration() float64 { return s.Pattern.Duration(s.Phase) }

func initialState(p Pattern) State {
	return State{
		Phase:         PhaseInhale,
		TimeRemaining: p.Inhale,
		CycleCount:    1,
		TotalCycles:   p.Cycles,
		Pattern:       p,
	}
}

// step advances s by dt seconds. It emits one time update and performs at
// most one phase transition; a new phase always starts at its full duration.
func step(s State, dt float64) (State, []Event) {
	if !s.Active {
		return s, nil
	}
	if dt < 0 {
		dt = 0
	}

	s.ElapsedTime += dt
	s.TimeRemaining -= dt
	events := []Event{{Kind: EventTimeUpdate, Phase: s.Phase, TimeRemaining: s.TimeRemaining}}

	if s.TimeRemaining > 0 {
		return s, events
	}
	return transition(s, events)
}

func transition(s State, events []Event) (State, []Event) {
	phases := s.Pattern.Phases()
	// A hold2 left over from a previous pattern closes the cycle.
	idx := len(phases) - 1
	for i, ph := range phases {
		if ph == s.Phase {
			idx = i
			break
		}
	}
	next := (idx + 1) % len(phases)

	if next == 0 {
		s.CycleCount++
		events = append(events, Event{Kind: EventCycleComplete, Cycle: s.CycleCount - 1})
		if s.CycleCount > s.TotalCycles {
			s.Active = false
			return s, append(events, Event{Kind: EventSessionComplete})
		}
	}

	s.Phase = phases[next]
	s.TimeRemaining = s.Pattern.Duration(s.Phase)
	return s, append(events, Event{Kind: EventPhaseChange, Phase: s.Phase, Duration: s.TimeRemaining})
}

type subscription struct {
	id int
	fn Listener
}

// Pacer runs a breathing pattern against a frame clock and fans its events
// out to subscribers. Events are queued under the pacer's lock in the order
// they happen and delivered outside it, one goroutine at a time, so
// listeners see a single ordered stream and may call back into the pacer.
type Pacer struct {
	mu        sync.Mutex
	state     State
	lastTick  time.Time
	gen       uint64
	stop      func()
	destroyed bool
	queue     []Event
	draining  bool

	clock  Clock
	frames Frames

	subMu  sync.Mutex
	subs   []subscription
	nextID int
}

// Option configures a Pacer.
type Option func(*Pacer)

// WithClock sets the time source. Defaults to SystemClock.
func WithClock(c Clock) Option {
	return func(p *Pacer) { p.clock = c }
}

// WithFrames sets the frame driver. Defaults to TickerFrames at 60 fps.
func WithFrames(f Frames) Option {
	return func(p *Pacer) { p.frames = f }
}

// NewPacer returns an idle pacer positioned at the start of pattern.
func NewPacer(pattern Pattern, opts ...Option) (*Pacer, error) {
	if err := pattern.Validate(); err != nil {
		return nil, err
	}
	p := &Pacer{state: initialState(pattern)}
	for _, opt := range opts {
		opt(p)
	}
	if p.clock == nil {
		p.clock = SystemClock{}
	}
	if p.frames == nil {
		tf := NewTickerFrames(DefaultFrameRate)
		tf.Clock = p.clock
		p.frames = tf
	}
	return p, nil
}

// Start begins a fresh session from cycle 1, inhale. It is a no-op while a
// session is already running or after Destroy.
func (p *Pacer) Start() {
	p.mu.Lock()
	if p.destroyed || p.state.Active {
		p.mu.Unlock()
		return
	}
	pattern := p.state.Pattern
	p.state = initialState(pattern)
	p.state.Active = true
	p.lastTick = p.clock.Now()
	p.queue = append(p.queue, Event{Kind: EventPhaseChange, Phase: PhaseInhale, Duration: pattern.Inhale})
	p.runLocked()
	p.mu.Unlock()

	log.Printf("[pacer] started pattern=%s cycles=%d", pattern.ID, pattern.Cycles)
	p.drain()
}

// Stop ends the session. State is left where it was.
func (p *Pacer) Stop() {
	p.mu.Lock()
	wasRunning := p.state.Active || p.state.Paused
	p.state.Active = false
	p.state.Paused = false
	p.haltLocked()
	p.mu.Unlock()

	if wasRunning {
		log.Println("[pacer] stopped")
	}
}

// Pause suspends ticking without touching phase, cycle or remaining time.
func (p *Pacer) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.state.Active {
		return
	}
	p.state.Active = false
	p.state.Paused = true
	p.haltLocked()
	log.Println("[pacer] paused")
}

// Resume continues a paused session. The time spent paused never counts
// toward the current phase.
func (p *Pacer) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.destroyed || !p.state.Paused {
		return
	}
	p.state.Active = true
	p.state.Paused = false
	p.lastTick = p.clock.Now()
	p.runLocked()
	log.Println("[pacer] resumed")
}

// SetPattern replaces the pattern. While a session is running the remaining
// time of the current phase is kept and the new durations apply from the
// next transition; otherwise the pacer is reset to the start of pattern.
func (p *Pacer) SetPattern(pattern Pattern) error {
	if err := pattern.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.state.Pattern = pattern
	p.state.TotalCycles = pattern.Cycles
	if !p.state.Active {
		p.state.Paused = false
		p.state.Phase = PhaseInhale
		p.state.TimeRemaining = pattern.Inhale
		p.state.CycleCount = 1
		p.state.ElapsedTime = 0
	}
	log.Printf("[pacer] pattern changed to %s", pattern.ID)
	return nil
}

// State returns a snapshot of the pacer.
func (p *Pacer) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Destroy stops the pacer for good and drops every subscriber.
func (p *Pacer) Destroy() {
	p.Stop()
	p.mu.Lock()
	p.destroyed = true
	p.mu.Unlock()

	p.subMu.Lock()
	p.subs = nil
	p.subMu.Unlock()
}

// Advance feeds dt of elapsed time through the state machine as one tick,
// independent of the frame driver. It is a no-op unless a session is active.
func (p *Pacer) Advance(dt time.Duration) {
	p.mu.Lock()
	if !p.state.Active {
		p.mu.Unlock()
		return
	}
	p.lastTick = p.lastTick.Add(dt)
	p.applyLocked(dt.Seconds())
	p.mu.Unlock()
	p.drain()
}

// Subscribe registers fn for every event and returns a function that
// removes it.
func (p *Pacer) Subscribe(fn Listener) func() {
	if fn == nil {
		return func() {}
	}
	p.subMu.Lock()
	p.nextID++
	id := p.nextID
	p.subs = append(p.subs, subscription{id: id, fn: fn})
	p.subMu.Unlock()

	return func() {
		p.subMu.Lock()
		defer p.subMu.Unlock()
		for i, s := range p.subs {
			if s.id == id {
				p.subs = append(p.subs[:i:i], p.subs[i+1:]...)
				return
			}
		}
	}
}

// OnPhaseChange registers fn for phase changes.
func (p *Pacer) OnPhaseChange(fn func(Phase)) func() {
	return p.Subscribe(func(ev Event) {
		if ev.Kind == EventPhaseChange {
			fn(ev.Phase)
		}
	})
}

// OnTimeUpdate registers fn for per-frame time updates.
func (p *Pacer) OnTimeUpdate(fn func(timeRemaining float64, phase Phase)) func() {
	return p.Subscribe(func(ev Event) {
		if ev.Kind == EventTimeUpdate {
			fn(ev.TimeRemaining, ev.Phase)
		}
	})
}

// OnCycleComplete registers fn for completed cycles.
func (p *Pacer) OnCycleComplete(fn func(cycle int)) func() {
	return p.Subscribe(func(ev Event) {
		if ev.Kind == EventCycleComplete {
			fn(ev.Cycle)
		}
	})
}

// OnSessionComplete registers fn for the end of the session.
func (p *Pacer) OnSessionComplete(fn func()) func() {
	return p.Subscribe(func(ev Event) {
		if ev.Kind == EventSessionComplete {
			fn()
		}
	})
}

func (p *Pacer) runLocked() {
	p.haltLocked()
	p.gen++
	gen := p.gen
	p.stop = p.frames.Run(func(now time.Time) { p.tick(gen, now) })
}

func (p *Pacer) haltLocked() {
	p.gen++
	if p.stop != nil {
		p.stop()
		p.stop = nil
	}
}

func (p *Pacer) tick(gen uint64, now time.Time) {
	p.mu.Lock()
	if gen != p.gen || !p.state.Active {
		p.mu.Unlock()
		return
	}
	dt := now.Sub(p.lastTick).Seconds()
	p.lastTick = now
	p.applyLocked(dt)
	p.mu.Unlock()
	p.drain()
}

// applyLocked steps the state machine and queues the resulting events.
func (p *Pacer) applyLocked(dt float64) {
	var events []Event
	p.state, events = step(p.state, dt)
	p.queue = append(p.queue, events...)
	if !p.state.Active {
		p.haltLocked()
		log.Printf("[pacer] session complete cycles=%d elapsed=%.1fs", p.state.TotalCycles, p.state.ElapsedTime)
	}
}

// drain delivers queued events. Only one caller delivers at a time; events
// queued meanwhile, including by listeners, are delivered by that caller
// after the ones already queued.
func (p *Pacer) drain() {
	p.mu.Lock()
	if p.draining {
		p.mu.Unlock()
		return
	}
	p.draining = true
	for len(p.queue) > 0 {
		batch := p.queue
		p.queue = nil
		p.mu.Unlock()
		p.dispatch(batch)
		p.mu.Lock()
	}
	p.draining = false
	p.mu.Unlock()
}

func (p *Pacer) dispatch(events []Event) {
	p.subMu.Lock()
	subs := make([]subscription, len(p.subs))
	copy(subs, p.subs)
	p.subMu.Unlock()

	for _, ev := range events {
		for _, s := range subs {
			s.fn(ev)
		}
	}
}
