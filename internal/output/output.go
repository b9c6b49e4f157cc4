// Package output owns the audio device the ambience mix is played through.
// Three backends exist: PortAudio (default), the beep speaker, and a null
// device that renders nowhere and is used by tests and headless hosts.
package output

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gopxl/beep"
)

// State mirrors the lifecycle of a browser audio context.
type State string

const (
	StateClosed    State = "closed"
	StateRunning   State = "running"
	StateSuspended State = "suspended"
)

// ErrNoDevice is returned when no usable output device could be opened.
var ErrNoDevice = errors.New("no audio output device available")

// Device plays one stereo stream until closed.
type Device interface {
	// Open starts pulling src. A device plays at most one source.
	Open(src beep.Streamer) error
	State() State
	// Resume restarts rendering after Suspend. It may block on the
	// platform and honours ctx.
	Resume(ctx context.Context) error
	Suspend() error
	Close() error
	Name() string
}

// Backend names accepted by New.
const (
	BackendPortAudio = "portaudio"
	BackendSpeaker   = "speaker"
	BackendNone      = "none"
)

// New returns an unopened device for backend. deviceID selects a PortAudio
// output device by index; -1 means the system default.
func New(backend string, deviceID int) (Device, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendPortAudio:
		return NewPortAudio(deviceID), nil
	case BackendSpeaker:
		return NewSpeaker(), nil
	case BackendNone, "null":
		return NewNull(), nil
	}
	return nil, fmt.Errorf("unknown output backend %q", backend)
}

// AudioDevice describes an available output device.
type AudioDevice struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}
