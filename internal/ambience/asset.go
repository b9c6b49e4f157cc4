package ambience

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/wav"

	"github.com/j-emboi/sarcastic-serenity/internal/synth"
)

// LoadAndLoopBackground decodes a WAV stream and loops it on the
// background bus at volume, replacing any previous loop. The engine owns r
// and closes it when the loop is stopped.
func (e *Engine) LoadAndLoopBackground(ctx context.Context, r io.ReadSeekCloser, volume float64) error {
	if err := e.EnsureContext(ctx); err != nil {
		r.Close()
		return err
	}
	e.StopBackground()

	streamer, format, err := wav.Decode(r)
	if err != nil {
		r.Close()
		return fmt.Errorf("decode background: %w", err)
	}

	var s beep.Streamer = beep.Loop(-1, streamer)
	if format.SampleRate != synth.SampleRate {
		s = beep.Resample(4, format.SampleRate, synth.SampleRate, s)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopBackgroundLocked()
	e.asset = &beep.Ctrl{Streamer: s}
	e.assetClose = streamer.Close
	e.bgMix.Add(e.asset)
	e.setBackgroundLocked(volume)
	log.Printf("[ambience] background loop rate=%d channels=%d volume=%.2f", format.SampleRate, format.NumChannels, volume)
	return nil
}

// StopBackground stops the asset loop. It is a no-op when none is playing.
func (e *Engine) StopBackground() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stopBackgroundLocked()
}

func (e *Engine) stopBackgroundLocked() {
	if e.asset == nil {
		return
	}
	e.asset.Streamer = nil
	e.bgMix.Remove(e.asset)
	e.asset = nil
	if e.assetClose != nil {
		if err := e.assetClose(); err != nil {
			log.Printf("[ambience] close background: %v", err)
		}
		e.assetClose = nil
	}
}
