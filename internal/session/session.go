// Package session owns one breathing pacer and one ambience engine and
// wires them together: pacer events trigger cue sounds, drive the visual and
// voice sinks, are recorded in history and are fanned out to live
// subscribers.
package session

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

// DefaultTimeUpdateInterval throttles time updates sent to subscribers.
// Sinks still see every frame.
const DefaultTimeUpdateInterval = 100 * time.Millisecond

// VisualSink renders the breathing state, e.g. an expanding circle.
type VisualSink interface {
	UpdateBreathing(phase breathing.Phase, timeRemaining, phaseDuration float64)
}

// VoiceSink speaks phase cues. Calls are fire-and-forget.
type VoiceSink interface {
	Cue(phase breathing.Phase, text string)
}

// History records finished sessions.
type History interface {
	InsertSession(ctx context.Context, r store.SessionRecord) (int64, error)
}

// Options selects which collaborators a session drives.
type Options struct {
	// Cues plays a transition tone on each phase change.
	Cues bool
	// Pads plays a soft ambient pad under each phase.
	Pads bool
	// VoiceEnabled speaks each phase through Voice, or plays the beep
	// fallback when Voice is nil.
	VoiceEnabled bool

	Voice   VoiceSink
	Visual  VisualSink
	History History

	// TimeUpdateInterval is the minimum pacer time between time updates
	// sent to subscribers. Zero means DefaultTimeUpdateInterval; negative
	// sends every frame.
	TimeUpdateInterval time.Duration
}

// Session is safe for concurrent use.
type Session struct {
	pacer  *breathing.Pacer
	engine *ambience.Engine
	opts   Options
	subs   *registry
	unsub  func()

	mu          sync.Mutex
	running     bool
	startedAt   time.Time
	lastUpdate  float64
	restoreDuck func()
	duckTimer   *time.Timer
	closed      bool
}

// New wires pacer and engine. The session takes ownership of both and
// releases them in Close.
func New(pacer *breathing.Pacer, engine *ambience.Engine, opts Options) *Session {
	if opts.TimeUpdateInterval == 0 {
		opts.TimeUpdateInterval = DefaultTimeUpdateInterval
	}
	s := &Session{
		pacer:  pacer,
		engine: engine,
		opts:   opts,
		subs:   newRegistry(),
	}
	s.unsub = pacer.Subscribe(s.handle)
	engine.SetAudioLevelCallback(func(level float64) {
		s.subs.offer(protocol.Event{Type: protocol.TypeAudioLevel, Level: level})
	})
	return s
}

// Pacer returns the session's pacer.
func (s *Session) Pacer() *breathing.Pacer { return s.pacer }

// Engine returns the session's audio engine.
func (s *Session) Engine() *ambience.Engine { return s.engine }

func (s *Session) handle(ev breathing.Event) {
	switch ev.Kind {
	case breathing.EventPhaseChange:
		phase := string(ev.Phase)
		if s.opts.Cues {
			s.engine.PlayPhaseTransition(phase)
		}
		if s.opts.Pads {
			s.engine.PlayPhasePad(phase)
		}
		text := breathing.CueText(ev.Phase)
		if s.opts.VoiceEnabled {
			if s.opts.Voice != nil {
				s.opts.Voice.Cue(ev.Phase, text)
			} else {
				s.engine.PlayBeepPattern(phase)
			}
		}
		if s.opts.Visual != nil {
			s.opts.Visual.UpdateBreathing(ev.Phase, ev.Duration, ev.Duration)
		}
		s.notify(protocol.Event{
			Type:          protocol.TypePhaseChange,
			Phase:         phase,
			TimeRemaining: ev.Duration,
			Duration:      ev.Duration,
			Cue:           text,
		})

	case breathing.EventTimeUpdate:
		st := s.pacer.State()
		if s.opts.Visual != nil {
			s.opts.Visual.UpdateBreathing(ev.Phase, ev.TimeRemaining, st.PhaseDuration())
		}
		if !s.dueTimeUpdate(st.ElapsedTime) {
			return
		}
		s.subs.offer(protocol.Event{
			Type:          protocol.TypeTimeUpdate,
			Phase:         string(ev.Phase),
			TimeRemaining: ev.TimeRemaining,
			Duration:      st.PhaseDuration(),
		})

	case breathing.EventCycleComplete:
		s.notify(protocol.Event{Type: protocol.TypeCycleComplete, Cycle: ev.Cycle})

	case breathing.EventSessionComplete:
		s.finish(true)
		s.notify(protocol.Event{Type: protocol.TypeSessionComplete})
	}
}

// notify pushes a pacer event without blocking the frame goroutine. A
// subscriber whose buffer is full misses the event.
func (s *Session) notify(ev protocol.Event) {
	if n := s.subs.offer(ev); n > 0 {
		slog.Debug("event dropped for slow subscribers", "type", ev.Type, "subscribers", n)
	}
}

func (s *Session) dueTimeUpdate(elapsed float64) bool {
	if s.opts.TimeUpdateInterval < 0 {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if elapsed >= s.lastUpdate && elapsed-s.lastUpdate < s.opts.TimeUpdateInterval.Seconds() {
		return false
	}
	s.lastUpdate = elapsed
	return true
}

// finish records the current run in history once.
func (s *Session) finish(completed bool) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	startedAt := s.startedAt
	s.mu.Unlock()

	st := s.pacer.State()
	cycles := st.CycleCount - 1
	if cycles > st.TotalCycles {
		cycles = st.TotalCycles
	}
	rec := store.SessionRecord{
		PatternID:       st.Pattern.ID,
		StartedAt:       startedAt,
		EndedAt:         time.Now().UTC(),
		CyclesCompleted: cycles,
		TotalCycles:     st.TotalCycles,
		ElapsedSeconds:  st.ElapsedTime,
		Completed:       completed,
	}
	if tex, ok := s.engine.Texture(); ok {
		rec.Preset = string(tex.Kind)
	}
	slog.Info("session finished", "pattern_id", rec.PatternID, "cycles", cycles, "completed", completed)

	if s.opts.History == nil {
		return
	}
	if _, err := s.opts.History.InsertSession(context.Background(), rec); err != nil {
		slog.Error("record session", "err", err)
	}
}

// Start begins a session with the current pattern. Audio problems are
// logged and never stop the pacer.
func (s *Session) Start(ctx context.Context) {
	st := s.pacer.State()
	if st.Active {
		return
	}
	if st.Paused {
		s.pacer.Stop()
		s.finish(false)
	}
	if err := s.engine.EnsureContext(ctx); err != nil {
		slog.Warn("audio unavailable", "err", err)
	}

	s.mu.Lock()
	s.running = true
	s.startedAt = time.Now().UTC()
	s.lastUpdate = 0
	s.mu.Unlock()

	s.pacer.Start()
	s.BroadcastState()
}

// StartPattern abandons any running session, selects p and starts.
func (s *Session) StartPattern(ctx context.Context, p breathing.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if st := s.pacer.State(); st.Active || st.Paused {
		s.Stop()
	}
	if err := s.pacer.SetPattern(p); err != nil {
		return err
	}
	s.Start(ctx)
	return nil
}

// Pause suspends the pacer.
func (s *Session) Pause() {
	s.pacer.Pause()
	s.BroadcastState()
}

// Resume continues a paused pacer.
func (s *Session) Resume() {
	s.pacer.Resume()
	s.BroadcastState()
}

// Stop ends the session early and records it as incomplete.
func (s *Session) Stop() {
	s.pacer.Stop()
	s.finish(false)
	s.BroadcastState()
}

// SetPattern changes the pattern; a running session keeps its current
// phase timing until the next transition. A paused session is abandoned
// and recorded as incomplete.
func (s *Session) SetPattern(p breathing.Pattern) error {
	if err := p.Validate(); err != nil {
		return err
	}
	if s.pacer.State().Paused {
		s.pacer.Stop()
		s.finish(false)
	}
	if err := s.pacer.SetPattern(p); err != nil {
		return err
	}
	s.BroadcastState()
	return nil
}

// State returns a snapshot of the pacer and the ambience.
func (s *Session) State() protocol.State {
	st := s.pacer.State()
	pd := st.PhaseDuration()
	out := protocol.State{
		Active:        st.Active,
		Paused:        st.Paused,
		Phase:         string(st.Phase),
		TimeRemaining: st.TimeRemaining,
		PhaseDuration: pd,
		Progress:      breathing.Progress(st.TimeRemaining, pd),
		Cue:           breathing.CueText(st.Phase),
		CycleCount:    st.CycleCount,
		TotalCycles:   st.TotalCycles,
		ElapsedTime:   st.ElapsedTime,
		PatternID:     st.Pattern.ID,
		PatternName:   st.Pattern.Name,
	}
	if tex, ok := s.engine.Texture(); ok {
		out.Ambience = &protocol.Texture{Kind: string(tex.Kind), Volume: tex.Volume, Serendipity: tex.Serendipity}
	}
	return out
}

// BroadcastState pushes a state snapshot to every subscriber.
func (s *Session) BroadcastState() {
	st := s.State()
	s.subs.broadcast(protocol.Event{Type: protocol.TypeState, State: &st})
}

// StartAmbience switches the ambient texture.
func (s *Session) StartAmbience(ctx context.Context, kind ambience.Kind, volume, serendipity float64) error {
	if err := s.engine.StartPreset(ctx, kind, volume, serendipity); err != nil {
		return err
	}
	s.BroadcastState()
	return nil
}

// StopAmbience stops the texture and any track loop.
func (s *Session) StopAmbience() {
	s.engine.StopProceduralNoise()
	s.engine.StopBackground()
	s.BroadcastState()
}

// SetAmbienceVolume sets the background bus gain.
func (s *Session) SetAmbienceVolume(v float64) {
	s.cancelDuck()
	s.engine.SetBackgroundVolume(v)
}

// Duck lowers the background by factor for d, then restores it. A new duck
// replaces one in progress.
func (s *Session) Duck(factor float64, d time.Duration) {
	s.cancelDuck()
	restore := s.engine.DuckBackground(factor)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.restoreDuck = restore
	s.duckTimer = time.AfterFunc(d, s.cancelDuck)
}

// cancelDuck restores a pending duck early.
func (s *Session) cancelDuck() {
	s.mu.Lock()
	restore, t := s.restoreDuck, s.duckTimer
	s.restoreDuck, s.duckTimer = nil, nil
	s.mu.Unlock()
	if t != nil {
		t.Stop()
	}
	if restore != nil {
		restore()
	}
}

// PlayTrack loops a decoded WAV track on the background bus.
func (s *Session) PlayTrack(ctx context.Context, r io.ReadSeekCloser, volume float64) error {
	s.cancelDuck()
	return s.engine.LoadAndLoopBackground(ctx, r, volume)
}

// Subscribe registers a live event consumer with a sendBuf-deep queue.
func (s *Session) Subscribe(sendBuf int) *Subscriber {
	return s.subs.add(sendBuf)
}

// Unsubscribe removes a consumer and closes its channel.
func (s *Session) Unsubscribe(id string) bool {
	return s.subs.remove(id)
}

// SubscriberCount returns the number of live consumers.
func (s *Session) SubscriberCount() int {
	return s.subs.count()
}

// SendTo delivers one event to one consumer.
func (s *Session) SendTo(id string, ev protocol.Event) bool {
	return s.subs.sendTo(id, ev)
}

// Close stops everything, records an unfinished run and releases the
// pacer, the engine and all subscribers.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.pacer.Stop()
	s.finish(false)
	s.cancelDuck()
	s.unsub()
	s.engine.RemoveAudioLevelCallback()
	s.pacer.Destroy()
	err := s.engine.Close()
	s.subs.closeAll()
	return err
}

// SetCueVolume sets the gain of transition cues.
func (s *Session) SetCueVolume(v float64) {
	s.engine.SetCueVolume(v)
}

// TestTone plays the output check tone.
func (s *Session) TestTone(ctx context.Context) error {
	return s.engine.TestTone(ctx)
}
