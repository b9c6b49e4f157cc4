package ambience

import (
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/level"
)

// LevelRate is how often the level callback fires while monitoring.
const LevelRate = 60

// SetAudioLevelCallback registers cb to receive the master output level in
// [0, 1]. It replaces any previous callback.
func (e *Engine) SetAudioLevelCallback(cb func(level float64)) {
	e.levelMu.Lock()
	e.levelCb = cb
	e.levelMu.Unlock()
}

// RemoveAudioLevelCallback clears the level callback.
func (e *Engine) RemoveAudioLevelCallback() {
	e.SetAudioLevelCallback(nil)
}

// StartAudioLevelMonitoring starts sampling the master output. It is a
// no-op when already running.
func (e *Engine) StartAudioLevelMonitoring() {
	e.levelMu.Lock()
	defer e.levelMu.Unlock()
	if e.monStop != nil {
		return
	}
	e.monStop = make(chan struct{})
	e.monDone = make(chan struct{})
	go e.monitor(e.monStop, e.monDone)
}

func (e *Engine) monitoring() bool {
	e.levelMu.Lock()
	defer e.levelMu.Unlock()
	return e.monStop != nil
}

// StopAudioLevelMonitoring stops sampling and waits for the sampler to exit.
func (e *Engine) StopAudioLevelMonitoring() {
	e.levelMu.Lock()
	stop, done := e.monStop, e.monDone
	e.monStop, e.monDone = nil, nil
	e.levelMu.Unlock()
	if stop == nil {
		return
	}
	close(stop)
	<-done
}

func (e *Engine) monitor(stop, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(time.Second / LevelRate)
	defer t.Stop()
	for {
		select {
		case <-stop:
			return
		case <-t.C:
			e.sampleLevel()
		}
	}
}

// sampleLevel measures the latest master samples and reports them to the
// callback.
func (e *Engine) sampleLevel() float64 {
	samples := e.tap.Samples(level.FFTSize)
	e.levelMu.Lock()
	lvl := e.analyser.Level(samples)
	cb := e.levelCb
	e.levelMu.Unlock()
	if cb != nil {
		cb(lvl)
	}
	return lvl
}
