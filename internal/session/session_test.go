package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/output"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/store"
)

// idleScheduler never fires, so cue and transient timers stay pending.
type idleScheduler struct{}

type idleTimer struct{}

func (idleTimer) Stop() bool { return true }

func (idleScheduler) AfterFunc(time.Duration, func()) ambience.Timer { return idleTimer{} }

type visualCall struct {
	phase         breathing.Phase
	timeRemaining float64
	phaseDuration float64
}

type fakeVisual struct {
	mu    sync.Mutex
	calls []visualCall
}

func (v *fakeVisual) UpdateBreathing(phase breathing.Phase, timeRemaining, phaseDuration float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.calls = append(v.calls, visualCall{phase, timeRemaining, phaseDuration})
}

func (v *fakeVisual) count() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.calls)
}

type fakeVoice struct {
	mu    sync.Mutex
	texts []string
}

func (v *fakeVoice) Cue(_ breathing.Phase, text string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.texts = append(v.texts, text)
}

func (v *fakeVoice) all() []string {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]string(nil), v.texts...)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []store.SessionRecord
	err     error
}

func (h *fakeHistory) InsertSession(_ context.Context, r store.SessionRecord) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.err != nil {
		return 0, h.err
	}
	h.records = append(h.records, r)
	return int64(len(h.records)), nil
}

func (h *fakeHistory) all() []store.SessionRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]store.SessionRecord(nil), h.records...)
}

type harness struct {
	s       *Session
	clock   *breathing.ManualClock
	frames  *breathing.ManualFrames
	visual  *fakeVisual
	voice   *fakeVoice
	history *fakeHistory
}

func newHarness(t *testing.T, p breathing.Pattern, mutate func(*Options)) *harness {
	t.Helper()
	clock := breathing.NewManualClock(time.Unix(1_700_000_000, 0))
	frames := &breathing.ManualFrames{}
	pacer, err := breathing.NewPacer(p, breathing.WithClock(clock), breathing.WithFrames(frames))
	if err != nil {
		t.Fatalf("NewPacer: %v", err)
	}
	engine := ambience.New(ambience.WithDevice(output.NewNull()), ambience.WithScheduler(idleScheduler{}))

	h := &harness{
		clock:   clock,
		frames:  frames,
		visual:  &fakeVisual{},
		voice:   &fakeVoice{},
		history: &fakeHistory{},
	}
	opts := Options{
		Cues:         true,
		Pads:         true,
		VoiceEnabled: true,
		Voice:        h.voice,
		Visual:       h.visual,
		History:      h.history,
	}
	if mutate != nil {
		mutate(&opts)
	}
	h.s = New(pacer, engine, opts)
	t.Cleanup(func() { h.s.Close() })
	return h
}

func (h *harness) step(dt time.Duration, n int) {
	for i := 0; i < n; i++ {
		h.frames.Step(h.clock.Advance(dt))
	}
}

// drain returns the queued events, skipping level samples.
func drain(sub *Subscriber) []protocol.Event {
	var out []protocol.Event
	for {
		select {
		case ev, ok := <-sub.Send:
			if !ok {
				return out
			}
			if ev.Type != protocol.TypeAudioLevel {
				out = append(out, ev)
			}
		default:
			return out
		}
	}
}

func ofType(evs []protocol.Event, typ string) []protocol.Event {
	var out []protocol.Event
	for _, ev := range evs {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func shortPattern() breathing.Pattern {
	return breathing.Pattern{ID: "short", Name: "Short", Inhale: 1, Hold: 1, Exhale: 1, Cycles: 1}
}

func TestStartDrivesSinksAndSubscribers(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	sub := h.s.Subscribe(256)

	h.s.Start(context.Background())

	evs := drain(sub)
	if len(evs) < 2 {
		t.Fatalf("got %d events, want phase_change and state", len(evs))
	}
	if evs[0].Type != protocol.TypePhaseChange || evs[0].Phase != "inhale" || evs[0].Cue != "Breathe in..." {
		t.Fatalf("first event = %+v", evs[0])
	}
	if evs[1].Type != protocol.TypeState || evs[1].State == nil || !evs[1].State.Active {
		t.Fatalf("second event = %+v", evs[1])
	}
	if got := h.voice.all(); len(got) != 1 || got[0] != "Breathe in..." {
		t.Fatalf("voice cues = %v", got)
	}
	if h.visual.count() != 1 {
		t.Fatalf("visual calls = %d, want 1", h.visual.count())
	}
	// Transition cue and pad are in flight.
	if got := h.s.Engine().ActiveNodes(); got != 2 {
		t.Fatalf("ActiveNodes = %d, want 2", got)
	}

	// Box: 4 s inhale, then hold.
	h.step(500*time.Millisecond, 8)
	changes := ofType(drain(sub), protocol.TypePhaseChange)
	if len(changes) != 1 || changes[0].Phase != "hold" || changes[0].Duration != 4 {
		t.Fatalf("phase changes after 4s = %+v", changes)
	}
	if got := h.voice.all(); len(got) != 2 || got[1] != "Hold..." {
		t.Fatalf("voice cues = %v", got)
	}
}

func TestBeepFallbackWithoutVoice(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), func(o *Options) {
		o.Cues = false
		o.Pads = false
		o.Voice = nil
	})
	h.s.Start(context.Background())
	if got := h.s.Engine().ActiveNodes(); got != 1 {
		t.Fatalf("ActiveNodes = %d, want 1 beep pattern", got)
	}
}

func TestTimeUpdatesAreThrottled(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	sub := h.s.Subscribe(512)
	h.s.Start(context.Background())
	drain(sub)

	// One second of 60 fps frames.
	h.step(time.Second/60, 60)

	updates := ofType(drain(sub), protocol.TypeTimeUpdate)
	if len(updates) < 7 || len(updates) > 11 {
		t.Fatalf("got %d time updates in 1s, want about 10", len(updates))
	}
	for _, ev := range updates {
		if ev.Duration != 4 || ev.Phase != "inhale" {
			t.Fatalf("time update = %+v", ev)
		}
	}
	// The visual sink sees every frame plus the opening phase change.
	if got := h.visual.count(); got != 61 {
		t.Fatalf("visual calls = %d, want 61", got)
	}
}

func TestCompletedSessionIsRecorded(t *testing.T) {
	h := newHarness(t, shortPattern(), nil)
	if _, ok := h.s.Engine().Texture(); ok {
		t.Fatal("texture running before StartAmbience")
	}
	if err := h.s.StartAmbience(context.Background(), ambience.KindRain, 0.4, 0.2); err != nil {
		t.Fatalf("StartAmbience: %v", err)
	}
	sub := h.s.Subscribe(256)
	h.s.Start(context.Background())

	h.step(500*time.Millisecond, 6)

	evs := drain(sub)
	if len(ofType(evs, protocol.TypeCycleComplete)) != 1 {
		t.Fatalf("cycle_complete events = %+v", ofType(evs, protocol.TypeCycleComplete))
	}
	if len(ofType(evs, protocol.TypeSessionComplete)) != 1 {
		t.Fatal("no session_complete event")
	}
	recs := h.history.all()
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	r := recs[0]
	if !r.Completed || r.CyclesCompleted != 1 || r.TotalCycles != 1 || r.PatternID != "short" || r.Preset != "rain" {
		t.Fatalf("record = %+v", r)
	}
	if r.ElapsedSeconds < 3 {
		t.Fatalf("ElapsedSeconds = %v, want >= 3", r.ElapsedSeconds)
	}

	// Stopping after completion records nothing more.
	h.s.Stop()
	if len(h.history.all()) != 1 {
		t.Fatal("Stop after completion added a record")
	}
}

func TestStopRecordsIncompleteOnce(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	h.s.Start(context.Background())
	h.step(500*time.Millisecond, 4)

	h.s.Stop()
	h.s.Stop()

	recs := h.history.all()
	if len(recs) != 1 {
		t.Fatalf("history has %d records, want 1", len(recs))
	}
	if recs[0].Completed || recs[0].CyclesCompleted != 0 {
		t.Fatalf("record = %+v", recs[0])
	}
	if h.s.State().Active {
		t.Fatal("still active after Stop")
	}
}

func TestStartPatternReplacesRunningSession(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	h.s.Start(context.Background())
	h.step(500*time.Millisecond, 2)

	if err := h.s.StartPattern(context.Background(), breathing.MustPattern("relaxation")); err != nil {
		t.Fatalf("StartPattern: %v", err)
	}
	recs := h.history.all()
	if len(recs) != 1 || recs[0].PatternID != "box" || recs[0].Completed {
		t.Fatalf("history = %+v", recs)
	}
	st := h.s.State()
	if !st.Active || st.PatternID != "relaxation" || st.Phase != "inhale" || st.CycleCount != 1 {
		t.Fatalf("state = %+v", st)
	}

	if err := h.s.StartPattern(context.Background(), breathing.Pattern{ID: "bad"}); !errors.Is(err, breathing.ErrInvalidPattern) {
		t.Fatalf("invalid pattern err = %v", err)
	}
	if !h.s.State().Active {
		t.Fatal("invalid pattern stopped the running session")
	}
}

func TestSetPatternWhilePausedAbandonsSession(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	h.s.Start(context.Background())
	h.step(500*time.Millisecond, 4)
	h.s.Pause()

	if err := h.s.SetPattern(breathing.MustPattern("calm")); err != nil {
		t.Fatalf("SetPattern: %v", err)
	}
	recs := h.history.all()
	if len(recs) != 1 || recs[0].PatternID != "box" || recs[0].Completed {
		t.Fatalf("history = %+v", recs)
	}
	st := h.s.State()
	if st.Active || st.Paused || st.PatternID != "calm" || st.TimeRemaining != 4 {
		t.Fatalf("state after SetPattern = %+v", st)
	}

	if err := h.s.SetPattern(breathing.Pattern{ID: "bad"}); err == nil {
		t.Fatal("SetPattern accepted an invalid pattern")
	}
}

func TestPauseResumeState(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	h.s.Start(context.Background())
	h.step(500*time.Millisecond, 2)

	h.s.Pause()
	st := h.s.State()
	if st.Active || !st.Paused {
		t.Fatalf("paused state = %+v", st)
	}
	if st.Progress <= 0 || st.Progress >= 1 {
		t.Fatalf("Progress = %v", st.Progress)
	}
	before := st.TimeRemaining
	h.step(time.Second, 5)
	if got := h.s.State().TimeRemaining; got != before {
		t.Fatalf("TimeRemaining moved while paused: %v -> %v", before, got)
	}

	h.s.Resume()
	if !h.s.State().Active {
		t.Fatal("not active after Resume")
	}

	// Starting from pause abandons the paused run.
	h.s.Pause()
	h.s.Start(context.Background())
	if recs := h.history.all(); len(recs) != 1 || recs[0].Completed {
		t.Fatalf("history = %+v", recs)
	}
	if st := h.s.State(); !st.Active || st.CycleCount != 1 || st.Phase != "inhale" {
		t.Fatalf("restarted state = %+v", st)
	}
}

func TestDuckRestoresAfterDuration(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	e := h.s.Engine()
	h.s.SetAmbienceVolume(0.5)

	h.s.Duck(0.2, 20*time.Millisecond)
	if got := e.BackgroundVolume(); got != 0.1 {
		t.Fatalf("ducked volume = %v, want 0.1", got)
	}

	deadline := time.Now().Add(2 * time.Second)
	for e.BackgroundVolume() != 0.5 {
		if time.Now().After(deadline) {
			t.Fatalf("volume not restored, got %v", e.BackgroundVolume())
		}
		time.Sleep(5 * time.Millisecond)
	}

	// A volume change cancels a pending duck.
	h.s.Duck(0.5, time.Hour)
	h.s.SetAmbienceVolume(0.8)
	if got := e.BackgroundVolume(); got != 0.8 {
		t.Fatalf("volume = %v, want 0.8", got)
	}
}

func TestHistoryErrorDoesNotBreakStop(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	h.history.err = errors.New("disk full")
	h.s.Start(context.Background())
	h.s.Stop()
	if h.s.State().Active {
		t.Fatal("still active")
	}
}

func TestSubscribersAndClose(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	a := h.s.Subscribe(8)
	b := h.s.Subscribe(8)
	if h.s.SubscriberCount() != 2 {
		t.Fatalf("SubscriberCount = %d", h.s.SubscriberCount())
	}

	if !h.s.SendTo(a.ID, protocol.Event{Type: protocol.TypePong}) {
		t.Fatal("SendTo failed")
	}
	if got := ofType(drain(a), protocol.TypePong); len(got) != 1 {
		t.Fatalf("a got %+v", got)
	}
	if got := drain(b); len(got) != 0 {
		t.Fatalf("b got %+v", got)
	}

	if !h.s.Unsubscribe(b.ID) || h.s.Unsubscribe(b.ID) {
		t.Fatal("Unsubscribe should succeed exactly once")
	}
	if h.s.SendTo(b.ID, protocol.Event{Type: protocol.TypePong}) {
		t.Fatal("SendTo removed subscriber succeeded")
	}

	h.s.Start(context.Background())
	if err := h.s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := h.s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if len(h.history.all()) != 1 {
		t.Fatal("Close did not record the running session")
	}
	for range a.Send {
	}
	if c := h.s.Subscribe(1); c != nil {
		if _, ok := <-c.Send; ok {
			t.Fatal("subscriber added after Close is open")
		}
	}
}

func TestBroadcastSkipsFullSubscriber(t *testing.T) {
	r := newRegistry()
	full := r.add(1)
	ok := r.add(4)
	r.broadcast(protocol.Event{Type: protocol.TypeState})

	start := time.Now()
	r.broadcast(protocol.Event{Type: protocol.TypeCycleComplete})
	if time.Since(start) > 10*SendTimeout {
		t.Fatal("broadcast blocked on a full subscriber")
	}
	if len(full.Send) != 1 || len(ok.Send) != 2 {
		t.Fatalf("queue lengths full=%d ok=%d", len(full.Send), len(ok.Send))
	}

	r.offer(protocol.Event{Type: protocol.TypeAudioLevel})
	if len(full.Send) != 1 || len(ok.Send) != 3 {
		t.Fatalf("after offer full=%d ok=%d", len(full.Send), len(ok.Send))
	}
}

func TestStalledSubscriberDoesNotDelayFrames(t *testing.T) {
	h := newHarness(t, breathing.MustPattern("box"), nil)
	stalled := h.s.Subscribe(1)
	live := h.s.Subscribe(256)
	stalled.Send <- protocol.Event{Type: protocol.TypeState}

	h.s.Start(context.Background())
	begin := time.Now()
	h.step(time.Second, 16)
	if took := time.Since(begin); took >= SendTimeout {
		t.Fatalf("16 frames with 4 transitions took %v behind a stalled subscriber", took)
	}

	var changes int
	for _, ev := range drain(live) {
		if ev.Type == protocol.TypePhaseChange {
			changes++
		}
	}
	if changes != 5 {
		t.Fatalf("live subscriber got %d phase changes, want 5", changes)
	}
	if len(stalled.Send) != 1 {
		t.Fatalf("stalled queue = %d", len(stalled.Send))
	}
}

func TestBuildFromConfig(t *testing.T) {
	cfg := config.Default()
	cfg.OutputBackend = "none"
	cfg.CueVolume = 0.25
	cfg.Volume = 0.7

	s, err := Build(breathing.MustPattern("calm"), cfg, Options{})
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	defer s.Close()

	if got := s.Engine().BackgroundVolume(); got != 0.7 {
		t.Fatalf("BackgroundVolume = %v, want 0.7", got)
	}
	if !s.opts.Cues || !s.opts.VoiceEnabled {
		t.Fatalf("options not taken from config: %+v", s.opts)
	}
	if st := s.State(); st.PatternID != "calm" || st.Active {
		t.Fatalf("state = %+v", st)
	}

	cfg.OutputBackend = "cassette"
	if _, err := Build(breathing.MustPattern("calm"), cfg, Options{}); err == nil {
		t.Fatal("Build accepted an unknown output backend")
	}
}
