package session

import (
	"fmt"

	"github.com/j-emboi/sarcastic-serenity/internal/ambience"
	"github.com/j-emboi/sarcastic-serenity/internal/breathing"
	"github.com/j-emboi/sarcastic-serenity/internal/config"
	"github.com/j-emboi/sarcastic-serenity/internal/output"
)

// Build constructs the pacer, the output device and the engine described by
// cfg and wires them into a session running pattern p. Cues and voice
// follow cfg unless opts already enables them.
func Build(p breathing.Pattern, cfg config.Config, opts Options) (*Session, error) {
	dev, err := output.New(cfg.OutputBackend, cfg.OutputDeviceID)
	if err != nil {
		return nil, err
	}
	pacer, err := breathing.NewPacer(p, breathing.WithFrames(breathing.NewTickerFrames(cfg.FrameRate)))
	if err != nil {
		return nil, fmt.Errorf("create pacer: %w", err)
	}
	engine := ambience.New(ambience.WithDevice(dev))
	engine.SetCueVolume(cfg.CueVolume)
	engine.SetBackgroundVolume(cfg.Volume)

	opts.Cues = opts.Cues || cfg.CuesEnabled
	opts.VoiceEnabled = opts.VoiceEnabled || cfg.VoiceEnabled
	return New(pacer, engine, opts), nil
}
