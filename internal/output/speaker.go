package output

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/speaker"
)

// speakerBuffer is the speaker's internal buffer length.
const speakerBuffer = time.Second / 10

// Speaker plays through beep's speaker package. The speaker is a process
// wide singleton, so only one Speaker should be open at a time.
type Speaker struct {
	mu    sync.Mutex
	state State
}

// NewSpeaker returns an unopened speaker device.
func NewSpeaker() *Speaker {
	return &Speaker{state: StateClosed}
}

// Open initialises the speaker at the synthesis rate and starts src.
func (s *Speaker) Open(src beep.Streamer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateClosed {
		return nil
	}
	sr := beep.SampleRate(sampleRate)
	if err := speaker.Init(sr, sr.N(speakerBuffer)); err != nil {
		return fmt.Errorf("%w: speaker init: %v", ErrNoDevice, err)
	}
	speaker.Play(src)
	s.state = StateRunning
	log.Println("[output] speaker playback started")
	return nil
}

// State implements Device.
func (s *Speaker) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Suspend implements Device.
func (s *Speaker) Suspend() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return nil
	}
	if err := speaker.Suspend(); err != nil {
		return fmt.Errorf("suspend speaker: %w", err)
	}
	s.state = StateSuspended
	return nil
}

// Resume implements Device.
func (s *Speaker) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateClosed:
		return ErrNoDevice
	case StateRunning:
		return nil
	}
	if err := speaker.Resume(); err != nil {
		return fmt.Errorf("resume speaker: %w", err)
	}
	s.state = StateRunning
	return nil
}

// Name implements Device.
func (s *Speaker) Name() string { return BackendSpeaker }

// Close implements Device.
func (s *Speaker) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateClosed {
		return nil
	}
	speaker.Clear()
	speaker.Close()
	s.state = StateClosed
	log.Println("[output] speaker closed")
	return nil
}
