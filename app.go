package main

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/wailsapp/wails/v2/pkg/runtime"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/output"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

// Frontend event names.
const (
	EventBreathing = "breathing:update"
	EventVoiceCue  = "voice:cue"
	eventPrefix    = "session:"
)

var errNotReady = errors.New("session is not running")

// emitter pushes one named event to the frontend.
type emitter func(name string, data any)

// App bridges the Go backend with the Wails frontend.
// Wails-bound methods (Start, Pause, Get*, Set*) are callable from JS.
// Keep this struct thin and delegate to the session.
type App struct {
	ctx            context.Context
	startupPattern string

	mu   sync.Mutex
	ctrl Controller
	cfg  Config
	emit emitter

	// newController builds the session; swapped out in tests.
	newController func(p breathing.Pattern, cfg Config, visual session.VisualSink, voice session.VoiceSink) (Controller, error)
}

// NewApp creates a new App.
func NewApp() *App {
	return &App{
		ctx:           context.Background(),
		emit:          func(string, any) {},
		newController: buildController,
	}
}

func buildController(p breathing.Pattern, cfg Config, visual session.VisualSink, voice session.VoiceSink) (Controller, error) {
	return session.Build(p, cfg, session.Options{Visual: visual, Voice: voice})
}

// startup is called when the Wails app starts.
func (a *App) startup(ctx context.Context) {
	a.ctx = ctx
	a.emit = func(name string, data any) { runtime.EventsEmit(ctx, name, data) }

	cfg := config.ApplyEnv(LoadConfig())
	if a.startupPattern != "" {
		cfg.PatternID = a.startupPattern
	}
	if err := a.init(cfg); err != nil {
		log.Printf("[app] init: %v", err)
	}
}

// init builds the session for cfg and starts forwarding its events.
func (a *App) init(cfg Config) error {
	p, err := breathing.PatternByID(cfg.PatternID)
	if err != nil {
		log.Printf("[app] pattern %q: %v, using box", cfg.PatternID, err)
		p = breathing.MustPattern("box")
	}

	ctrl, err := a.newController(p, cfg, visualSink{a.emitEvent}, voiceSink{a.emitEvent})
	if err != nil && cfg.OutputBackend != output.BackendNone {
		log.Printf("[app] output %q: %v, continuing silent", cfg.OutputBackend, err)
		cfg.OutputBackend = output.BackendNone
		ctrl, err = a.newController(p, cfg, visualSink{a.emitEvent}, voiceSink{a.emitEvent})
	}
	if err != nil {
		return err
	}

	sub := ctrl.Subscribe(256)
	a.mu.Lock()
	a.ctrl = ctrl
	a.cfg = cfg
	a.mu.Unlock()

	go a.forward(sub)
	log.Printf("[app] ready pattern=%s output=%s", p.ID, cfg.OutputBackend)
	return nil
}

// forward relays session events to the frontend until the subscription ends.
func (a *App) forward(sub *session.Subscriber) {
	for ev := range sub.Send {
		a.emitEvent(eventPrefix+ev.Type, ev)
	}
}

func (a *App) emitEvent(name string, data any) {
	a.mu.Lock()
	emit := a.emit
	a.mu.Unlock()
	emit(name, data)
}

// shutdown is called when the Wails app is closing.
func (a *App) shutdown(_ context.Context) {
	a.mu.Lock()
	ctrl := a.ctrl
	a.ctrl = nil
	a.mu.Unlock()
	if ctrl == nil {
		return
	}
	if err := ctrl.Close(); err != nil {
		log.Printf("[app] close session: %v", err)
	}
}

func (a *App) controller() (Controller, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl == nil {
		return nil, errNotReady
	}
	return a.ctrl, nil
}

// GetStartupPattern returns the pattern ID from a serenity:// link, or "".
func (a *App) GetStartupPattern() string {
	return a.startupPattern
}

// GetPatterns returns the built-in breathing patterns.
func (a *App) GetPatterns() []breathing.Pattern {
	return breathing.Patterns()
}

// GetPresets returns the ambient texture names in menu order.
func (a *App) GetPresets() []string {
	kinds := ambience.Kinds()
	out := make([]string, len(kinds))
	for i, k := range kinds {
		out[i] = string(k)
	}
	return out
}

// GetOutputDevices returns available PortAudio output devices.
func (a *App) GetOutputDevices() []output.AudioDevice {
	return output.ListDevices()
}

// GetState returns a snapshot of the pacer and the ambience.
func (a *App) GetState() protocol.State {
	ctrl, err := a.controller()
	if err != nil {
		return protocol.State{}
	}
	return ctrl.State()
}

// Start begins a session with the current pattern.
// Returns an error message string or "" on success (Wails JS binding convention).
func (a *App) Start() string {
	ctrl, err := a.controller()
	if err != nil {
		return err.Error()
	}
	ctrl.Start(a.ctx)
	return ""
}

// StartPattern abandons any running session and starts pattern id.
func (a *App) StartPattern(id string) string {
	ctrl, err := a.controller()
	if err != nil {
		return err.Error()
	}
	p, err := breathing.PatternByID(id)
	if err != nil {
		return err.Error()
	}
	if err := ctrl.StartPattern(a.ctx, p); err != nil {
		return err.Error()
	}
	a.rememberPattern(p.ID)
	return ""
}

// SetPattern switches the pattern; a running session picks it up at the
// next phase.
func (a *App) SetPattern(id string) string {
	ctrl, err := a.controller()
	if err != nil {
		return err.Error()
	}
	p, err := breathing.PatternByID(id)
	if err != nil {
		return err.Error()
	}
	if err := ctrl.SetPattern(p); err != nil {
		return err.Error()
	}
	a.rememberPattern(p.ID)
	return ""
}

func (a *App) rememberPattern(id string) {
	a.mu.Lock()
	a.cfg.PatternID = id
	a.mu.Unlock()
}

// Pause suspends the session.
func (a *App) Pause() {
	if ctrl, err := a.controller(); err == nil {
		ctrl.Pause()
	}
}

// Resume continues a paused session.
func (a *App) Resume() {
	if ctrl, err := a.controller(); err == nil {
		ctrl.Resume()
	}
}

// Stop ends the session.
func (a *App) Stop() {
	if ctrl, err := a.controller(); err == nil {
		ctrl.Stop()
	}
}

// StartAmbience plays texture preset. An empty preset uses the configured
// one.
func (a *App) StartAmbience(preset string, volume, serendipity float64) string {
	ctrl, err := a.controller()
	if err != nil {
		return err.Error()
	}
	if strings.TrimSpace(preset) == "" {
		a.mu.Lock()
		preset = a.cfg.Preset
		a.mu.Unlock()
	}
	kind, err := ambience.ParseKind(preset)
	if err != nil {
		return err.Error()
	}
	if err := ctrl.StartAmbience(a.ctx, kind, volume, serendipity); err != nil {
		return err.Error()
	}
	a.mu.Lock()
	a.cfg.Preset = string(kind)
	a.cfg.Volume = volume
	a.cfg.Serendipity = serendipity
	a.mu.Unlock()
	return ""
}

// StopAmbience silences the texture and any track loop.
func (a *App) StopAmbience() {
	if ctrl, err := a.controller(); err == nil {
		ctrl.StopAmbience()
	}
}

// SetAmbienceVolume sets the background volume in [0.0, 1.0].
func (a *App) SetAmbienceVolume(v float64) {
	if ctrl, err := a.controller(); err == nil {
		ctrl.SetAmbienceVolume(v)
	}
}

// SetCueVolume sets the transition cue volume in [0.0, 1.0].
func (a *App) SetCueVolume(v float64) {
	if ctrl, err := a.controller(); err == nil {
		ctrl.SetCueVolume(v)
	}
}

// Duck lowers the background by factor for ms milliseconds.
func (a *App) Duck(factor float64, ms int) {
	if ctrl, err := a.controller(); err == nil && ms > 0 {
		ctrl.Duck(factor, time.Duration(ms)*time.Millisecond)
	}
}

// TestTone plays the output check tone.
func (a *App) TestTone() string {
	ctrl, err := a.controller()
	if err != nil {
		return err.Error()
	}
	if err := ctrl.TestTone(a.ctx); err != nil {
		return err.Error()
	}
	return ""
}

// GetConfig returns the config in effect, including this run's changes.
func (a *App) GetConfig() Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.ctrl == nil {
		return LoadConfig()
	}
	return a.cfg
}

// SaveConfig persists the given user config to disk and applies its levels.
func (a *App) SaveConfig(cfg Config) {
	if err := SaveConfig(cfg); err != nil {
		log.Printf("[app] save config: %v", err)
	}
	a.mu.Lock()
	a.cfg = cfg
	ctrl := a.ctrl
	a.mu.Unlock()
	if ctrl != nil {
		ctrl.SetAmbienceVolume(cfg.Volume)
		ctrl.SetCueVolume(cfg.CueVolume)
	}
}

// visualSink forwards every pacer frame to the breathing circle.
type visualSink struct{ emit emitter }

type breathingFrame struct {
	Phase         string  `json:"phase"`
	TimeRemaining float64 `json:"time_remaining"`
	PhaseDuration float64 `json:"phase_duration"`
	Progress      float64 `json:"progress"`
}

func (v visualSink) UpdateBreathing(phase breathing.Phase, timeRemaining, phaseDuration float64) {
	v.emit(EventBreathing, breathingFrame{
		Phase:         string(phase),
		TimeRemaining: timeRemaining,
		PhaseDuration: phaseDuration,
		Progress:      breathing.Progress(timeRemaining, phaseDuration),
	})
}

// voiceSink hands phase narration to the webview's speech synthesis.
type voiceSink struct{ emit emitter }

type voiceCue struct {
	Phase string `json:"phase"`
	Text  string `json:"text"`
}

func (v voiceSink) Cue(phase breathing.Phase, text string) {
	v.emit(EventVoiceCue, voiceCue{Phase: string(phase), Text: text})
}
