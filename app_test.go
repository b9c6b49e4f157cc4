package main

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
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

// ---------------------------------------------------------------------------
// Mock Controller
// ---------------------------------------------------------------------------

type mockController struct {
	mu sync.Mutex

	pattern  breathing.Pattern
	active   bool
	paused   bool
	starts   int
	stops    int
	texture  ambience.Kind
	volume   float64
	cueVol   float64
	ducks    []time.Duration
	closed   int
	startErr error
	toneErr  error

	visual session.VisualSink
	voice  session.VoiceSink
	send   chan protocol.Event
}

func newMockController(p breathing.Pattern, visual session.VisualSink, voice session.VoiceSink) *mockController {
	return &mockController{pattern: p, visual: visual, voice: voice, send: make(chan protocol.Event, 16)}
}

func (m *mockController) Start(context.Context) {
	m.mu.Lock()
	m.active, m.paused = true, false
	m.starts++
	m.mu.Unlock()
	m.voice.Cue(breathing.PhaseInhale, breathing.CueText(breathing.PhaseInhale))
	m.visual.UpdateBreathing(breathing.PhaseInhale, m.pattern.Inhale, m.pattern.Inhale)
}

func (m *mockController) StartPattern(ctx context.Context, p breathing.Pattern) error {
	if m.startErr != nil {
		return m.startErr
	}
	m.mu.Lock()
	m.pattern = p
	m.mu.Unlock()
	m.Start(ctx)
	return nil
}

func (m *mockController) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active {
		m.active, m.paused = false, true
	}
}

func (m *mockController) Resume() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.paused {
		m.active, m.paused = true, false
	}
}

func (m *mockController) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active, m.paused = false, false
	m.stops++
}

func (m *mockController) SetPattern(p breathing.Pattern) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pattern = p
	return nil
}

func (m *mockController) State() protocol.State {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := protocol.State{Active: m.active, Paused: m.paused, PatternID: m.pattern.ID}
	if m.texture != "" {
		st.Ambience = &protocol.Texture{Kind: string(m.texture), Volume: m.volume}
	}
	return st
}

func (m *mockController) StartAmbience(_ context.Context, kind ambience.Kind, volume, _ float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texture, m.volume = kind, volume
	return nil
}

func (m *mockController) StopAmbience() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.texture = ""
}

func (m *mockController) SetAmbienceVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.volume = v
}

func (m *mockController) SetCueVolume(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cueVol = v
}

func (m *mockController) Duck(_ float64, d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ducks = append(m.ducks, d)
}

func (m *mockController) TestTone(context.Context) error { return m.toneErr }

func (m *mockController) Subscribe(int) *session.Subscriber {
	return &session.Subscriber{ID: "s1", Send: m.send}
}

func (m *mockController) Unsubscribe(string) bool { return true }

func (m *mockController) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	if m.closed == 1 {
		close(m.send)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Event recorder
// ---------------------------------------------------------------------------

type emitted struct {
	name string
	data any
}

type recorder struct {
	mu     sync.Mutex
	events []emitted
}

func (r *recorder) emit(name string, data any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, emitted{name, data})
}

func (r *recorder) named(name string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []any
	for _, e := range r.events {
		if e.name == name {
			out = append(out, e.data)
		}
	}
	return out
}

func newTestApp(t *testing.T, cfg Config) (*App, *mockController, *recorder) {
	t.Helper()
	rec := &recorder{}
	var mock *mockController
	app := NewApp()
	app.emit = rec.emit
	app.newController = func(p breathing.Pattern, _ Config, visual session.VisualSink, voice session.VoiceSink) (Controller, error) {
		mock = newMockController(p, visual, voice)
		return mock, nil
	}
	if err := app.init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	t.Cleanup(func() { app.shutdown(context.Background()) })
	return app, mock, rec
}

// ---------------------------------------------------------------------------
// Tests
// ---------------------------------------------------------------------------

func TestMethodsBeforeStartup(t *testing.T) {
	app := NewApp()
	if got := app.Start(); got != errNotReady.Error() {
		t.Fatalf("Start before startup = %q", got)
	}
	if got := app.StartPattern("box"); got == "" {
		t.Fatal("StartPattern before startup succeeded")
	}
	app.Pause()
	app.Stop()
	if st := app.GetState(); st.Active {
		t.Fatalf("GetState before startup = %+v", st)
	}
	app.shutdown(context.Background())
}

func TestInitUsesConfiguredPattern(t *testing.T) {
	cfg := config.Default()
	cfg.PatternID = "sleep"
	app, _, _ := newTestApp(t, cfg)
	if got := app.GetState().PatternID; got != "sleep" {
		t.Fatalf("PatternID = %q, want sleep", got)
	}
}

func TestInitFallsBackToBox(t *testing.T) {
	cfg := config.Default()
	cfg.PatternID = "no-such-pattern"
	app, _, _ := newTestApp(t, cfg)
	if got := app.GetState().PatternID; got != "box" {
		t.Fatalf("PatternID = %q, want box", got)
	}
}

func TestInitRetriesSilentOnOutputFailure(t *testing.T) {
	app := NewApp()
	app.emit = (&recorder{}).emit
	var backends []string
	app.newController = func(p breathing.Pattern, cfg Config, visual session.VisualSink, voice session.VoiceSink) (Controller, error) {
		backends = append(backends, cfg.OutputBackend)
		if cfg.OutputBackend != output.BackendNone {
			return nil, errors.New("no such backend")
		}
		return newMockController(p, visual, voice), nil
	}
	cfg := config.Default()
	cfg.OutputBackend = "cassette"
	if err := app.init(cfg); err != nil {
		t.Fatalf("init: %v", err)
	}
	defer app.shutdown(context.Background())

	if len(backends) != 2 || backends[1] != output.BackendNone {
		t.Fatalf("backends tried = %v", backends)
	}
	if got := app.GetConfig().OutputBackend; got != output.BackendNone {
		t.Fatalf("OutputBackend = %q", got)
	}
}

func TestStartEmitsSinkEvents(t *testing.T) {
	app, mock, rec := newTestApp(t, config.Default())

	if got := app.Start(); got != "" {
		t.Fatalf("Start = %q", got)
	}
	if mock.starts != 1 {
		t.Fatalf("starts = %d", mock.starts)
	}

	cues := rec.named(EventVoiceCue)
	if len(cues) != 1 || cues[0].(voiceCue).Text != "Breathe in..." {
		t.Fatalf("voice cues = %#v", cues)
	}
	frames := rec.named(EventBreathing)
	if len(frames) != 1 {
		t.Fatalf("breathing frames = %#v", frames)
	}
	if f := frames[0].(breathingFrame); f.Phase != "inhale" || f.PhaseDuration != 4 || f.Progress != 0 {
		t.Fatalf("frame = %#v", f)
	}
}

func TestForwardsSessionEvents(t *testing.T) {
	_, mock, rec := newTestApp(t, config.Default())

	mock.send <- protocol.Event{Type: protocol.TypePhaseChange, Phase: "hold"}
	mock.send <- protocol.Event{Type: protocol.TypeAudioLevel, Level: 0.4}

	deadline := time.Now().Add(2 * time.Second)
	for len(rec.named("session:audio_level")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("audio level not forwarded")
		}
		time.Sleep(5 * time.Millisecond)
	}
	changes := rec.named("session:phase_change")
	if len(changes) != 1 || changes[0].(protocol.Event).Phase != "hold" {
		t.Fatalf("phase changes = %#v", changes)
	}
}

func TestPatternSelection(t *testing.T) {
	app, mock, _ := newTestApp(t, config.Default())

	if got := app.StartPattern("Relaxation"); got != "" {
		t.Fatalf("StartPattern = %q", got)
	}
	if mock.pattern.ID != "relaxation" || !mock.active {
		t.Fatalf("mock pattern = %q active = %v", mock.pattern.ID, mock.active)
	}
	if got := app.GetConfig().PatternID; got != "relaxation" {
		t.Fatalf("config PatternID = %q", got)
	}

	if got := app.StartPattern("nope"); got == "" {
		t.Fatal("StartPattern accepted an unknown pattern")
	}
	if got := app.SetPattern("calm"); got != "" || mock.pattern.ID != "calm" {
		t.Fatalf("SetPattern = %q, pattern = %q", got, mock.pattern.ID)
	}

	mock.startErr = errors.New("boom")
	if got := app.StartPattern("box"); got != "boom" {
		t.Fatalf("StartPattern error = %q", got)
	}
}

func TestPauseResumeStop(t *testing.T) {
	app, mock, _ := newTestApp(t, config.Default())
	app.Start()

	app.Pause()
	if st := app.GetState(); st.Active || !st.Paused {
		t.Fatalf("after Pause = %+v", st)
	}
	app.Resume()
	if st := app.GetState(); !st.Active {
		t.Fatalf("after Resume = %+v", st)
	}
	app.Stop()
	if st := app.GetState(); st.Active || mock.stops != 1 {
		t.Fatalf("after Stop = %+v stops = %d", st, mock.stops)
	}
}

func TestAmbienceControls(t *testing.T) {
	cfg := config.Default()
	cfg.Preset = "wind"
	app, mock, _ := newTestApp(t, cfg)

	if got := app.StartAmbience("", 0.4, 0.2); got != "" {
		t.Fatalf("StartAmbience = %q", got)
	}
	if mock.texture != ambience.KindWind || mock.volume != 0.4 {
		t.Fatalf("texture = %q volume = %v", mock.texture, mock.volume)
	}
	if got := app.StartAmbience("thunder", 0.4, 0.2); got == "" {
		t.Fatal("StartAmbience accepted an unknown preset")
	}
	if mock.texture != ambience.KindWind {
		t.Fatalf("unknown preset replaced texture with %q", mock.texture)
	}
	if got := app.StartAmbience("Rain", 0.6, 0.5); got != "" || mock.texture != ambience.KindRain {
		t.Fatalf("StartAmbience rain = %q texture = %q", got, mock.texture)
	}
	if c := app.GetConfig(); c.Preset != "rain" || c.Volume != 0.6 || c.Serendipity != 0.5 {
		t.Fatalf("config = %+v", c)
	}

	app.SetAmbienceVolume(0.25)
	app.SetCueVolume(0.75)
	app.Duck(0.5, 1500)
	app.Duck(0.5, 0)
	if mock.volume != 0.25 || mock.cueVol != 0.75 || len(mock.ducks) != 1 || mock.ducks[0] != 1500*time.Millisecond {
		t.Fatalf("volume = %v cue = %v ducks = %v", mock.volume, mock.cueVol, mock.ducks)
	}

	app.StopAmbience()
	if st := app.GetState(); st.Ambience != nil {
		t.Fatalf("ambience after stop = %+v", st.Ambience)
	}

	mock.toneErr = errors.New("device busy")
	if got := app.TestTone(); got != "device busy" {
		t.Fatalf("TestTone = %q", got)
	}
}

func TestCatalogBindings(t *testing.T) {
	app := NewApp()
	if got := len(app.GetPatterns()); got != len(breathing.Patterns()) {
		t.Fatalf("GetPatterns = %d", got)
	}
	presets := app.GetPresets()
	if len(presets) != len(ambience.Kinds()) || presets[0] != "pink" {
		t.Fatalf("GetPresets = %v", presets)
	}
}

func TestShutdownClosesOnce(t *testing.T) {
	app, mock, _ := newTestApp(t, config.Default())
	app.shutdown(context.Background())
	app.shutdown(context.Background())
	if mock.closed != 1 {
		t.Fatalf("closed = %d, want 1", mock.closed)
	}
	if got := app.Start(); got != errNotReady.Error() {
		t.Fatalf("Start after shutdown = %q", got)
	}
}
