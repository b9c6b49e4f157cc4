package main

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gdamore/tcell/v2"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/protocol"
	"github.com/j-emboi/sarcastic-serenity/internal/session"
)

const (
	frameInterval = 33 * time.Millisecond
	meterWidth    = 30
	volumeStep    = 0.1
	helpLine      = "space start/pause  s stop  ←/→ pattern  a ambience  +/- volume  t tone  q quit"
)

var phaseColors = map[string]tcell.Color{
	string(breathing.PhaseInhale): tcell.ColorSteelBlue,
	string(breathing.PhaseHold):   tcell.ColorMediumPurple,
	string(breathing.PhaseExhale): tcell.ColorSeaGreen,
	string(breathing.PhaseHold2):  tcell.ColorSlateGray,
}

type ui struct {
	screen tcell.Screen
	sess   *session.Session
	ctx    context.Context

	patterns   []breathing.Pattern
	patternIdx int
	presets    []ambience.Kind
	presetIdx  int // -1 when no texture plays
	volume     float64
	serendipity  float64
	level      float64
	status     string
}

func newUI(screen tcell.Screen, sess *session.Session, cfg config.Config) *ui {
	u := &ui{
		screen:    screen,
		sess:      sess,
		ctx:       context.Background(),
		patterns:  breathing.Patterns(),
		presets:   ambience.Kinds(),
		presetIdx: -1,
		volume:    cfg.Volume,
		serendipity: cfg.Serendipity,
	}
	current := sess.State().PatternID
	for i, p := range u.patterns {
		if p.ID == current {
			u.patternIdx = i
		}
	}
	return u
}

func (u *ui) run() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	sub := u.sess.Subscribe(64)
	defer u.sess.Unsubscribe(sub.ID)

	eventChan := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := u.screen.PollEvent()
			if ev == nil {
				return
			}
			eventChan <- ev
		}
	}()

	for {
		select {
		case ev := <-eventChan:
			if !u.handleInput(ev) {
				return
			}
		case ev, ok := <-sub.Send:
			if !ok {
				return
			}
			u.handleSessionEvent(ev)
		case <-ticker.C:
			u.draw()
		}
	}
}

func (u *ui) handleSessionEvent(ev protocol.Event) {
	switch ev.Type {
	case protocol.TypeAudioLevel:
		u.level = ev.Level
	case protocol.TypeSessionComplete:
		u.status = "Session complete"
	case protocol.TypeCycleComplete:
		u.status = fmt.Sprintf("Cycle %d done", ev.Cycle)
	}
}

// handleInput applies one terminal event and reports whether to keep running.
func (u *ui) handleInput(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return u.handleKey(ev.Key(), ev.Rune())
	case *tcell.EventResize:
		u.screen.Sync()
	}
	return true
}

func (u *ui) handleKey(k tcell.Key, r rune) bool {
	switch k {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyRight:
		u.selectPattern(1)
	case tcell.KeyLeft:
		u.selectPattern(-1)
	case tcell.KeyRune:
		return u.handleRune(r)
	}
	return true
}

func (u *ui) handleRune(r rune) bool {
	switch r {
	case 'q':
		return false
	case ' ':
		st := u.sess.State()
		switch {
		case st.Active:
			u.sess.Pause()
		case st.Paused:
			u.sess.Resume()
		default:
			u.status = ""
			u.sess.Start(u.ctx)
		}
	case 's':
		u.sess.Stop()
	case 'n':
		u.selectPattern(1)
	case 'p':
		u.selectPattern(-1)
	case 'a':
		u.cyclePreset()
	case '+', '=':
		u.setVolume(u.volume + volumeStep)
	case '-':
		u.setVolume(u.volume - volumeStep)
	case 't':
		if err := u.sess.TestTone(u.ctx); err != nil {
			u.status = err.Error()
		}
	}
	return true
}

// selectPattern moves through the catalog. A running or paused session
// restarts on the new pattern.
func (u *ui) selectPattern(delta int) {
	n := len(u.patterns)
	u.patternIdx = ((u.patternIdx+delta)%n + n) % n
	p := u.patterns[u.patternIdx]

	st := u.sess.State()
	var err error
	if st.Active || st.Paused {
		err = u.sess.StartPattern(u.ctx, p)
	} else {
		err = u.sess.SetPattern(p)
	}
	if err != nil {
		u.status = err.Error()
	}
}

// cyclePreset steps through the textures, then back to silence.
func (u *ui) cyclePreset() {
	u.presetIdx++
	if u.presetIdx >= len(u.presets) {
		u.presetIdx = -1
		u.sess.StopAmbience()
		return
	}
	if err := u.sess.StartAmbience(u.ctx, u.presets[u.presetIdx], u.volume, u.serendipity); err != nil {
		u.status = err.Error()
	}
}

func (u *ui) setVolume(v float64) {
	u.volume = math.Round(math.Max(0, math.Min(1, v))*10) / 10
	u.sess.SetAmbienceVolume(u.volume)
}

// breathScale maps a phase and its progress to the shape size in [0, 1].
func breathScale(phase string, progress float64) float64 {
	switch phase {
	case string(breathing.PhaseInhale):
		return progress
	case string(breathing.PhaseHold):
		return 1
	case string(breathing.PhaseExhale):
		return 1 - progress
	}
	return 0
}

// meter renders v in [0, 1] as a bar of width cells.
func meter(v float64, width int) string {
	filled := int(math.Round(math.Max(0, math.Min(1, v)) * float64(width)))
	return "[" + strings.Repeat("#", filled) + strings.Repeat(" ", width-filled) + "]"
}

// statusLines is the text shown under the breathing shape.
func (u *ui) statusLines(st protocol.State) []string {
	name := st.PatternName
	if name == "" {
		name = u.patterns[u.patternIdx].Name
	}
	lines := []string{name}

	switch {
	case st.Active || st.Paused:
		cue := st.Cue
		if st.Paused {
			cue = "Paused"
		}
		lines = append(lines, cue,
			fmt.Sprintf("cycle %d/%d  %.1fs", st.CycleCount, st.TotalCycles, math.Max(0, st.TimeRemaining)))
	default:
		lines = append(lines, "Press space to begin", "")
	}

	ambient := "off"
	if st.Ambience != nil {
		ambient = fmt.Sprintf("%s %.0f%%", st.Ambience.Kind, u.volume*100)
	}
	lines = append(lines,
		"ambience "+ambient,
		"level "+meter(u.level, meterWidth),
		u.status,
	)
	return lines
}

func (u *ui) draw() {
	u.screen.Clear()
	width, height := u.screen.Size()
	st := u.sess.State()
	lines := u.statusLines(st)

	shapeRows := height - len(lines) - 3
	if shapeRows > 2 {
		cy := shapeRows / 2
		maxR := float64(shapeRows)/2 - 1
		r := 1 + (maxR-1)*breathScale(st.Phase, st.Progress)
		if !st.Active && !st.Paused {
			r = 1
		}
		u.drawDisc(width/2, cy, r, phaseColors[st.Phase])
	}

	base := height - len(lines) - 2
	for i, line := range lines {
		u.drawCentered(base+i, line, tcell.StyleDefault)
	}
	u.drawCentered(height-1, helpLine, tcell.StyleDefault.Foreground(tcell.ColorGray))
	u.screen.Show()
}

// drawDisc fills a circle of radius r rows; cells are twice as tall as wide.
func (u *ui) drawDisc(cx, cy int, r float64, color tcell.Color) {
	if color == tcell.ColorDefault {
		color = tcell.ColorSteelBlue
	}
	style := tcell.StyleDefault.Foreground(color)
	ir := int(math.Ceil(r))
	for dy := -ir; dy <= ir; dy++ {
		for dx := -2 * ir; dx <= 2*ir; dx++ {
			x := float64(dx) / 2
			if x*x+float64(dy*dy) <= r*r {
				u.screen.SetContent(cx+dx, cy+dy, '█', nil, style)
			}
		}
	}
}

func (u *ui) drawCentered(y int, text string, style tcell.Style) {
	width, _ := u.screen.Size()
	runes := []rune(text)
	x := (width - len(runes)) / 2
	if x < 0 {
		x = 0
	}
	for i, r := range runes {
		u.screen.SetContent(x+i, y, r, nil, style)
	}
}
