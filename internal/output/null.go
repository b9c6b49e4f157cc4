package output

import (
	"context"
	"sync"

	"github.com/gopxl/beep"
)

// Null is a device without hardware. Nothing is rendered unless the owner
// calls Pull, which lets tests step the mix deterministically.
type Null struct {
	mu    sync.Mutex
	src   beep.Streamer
	state State
	// StartSuspended opens the device in the suspended state, the way a
	// browser creates an audio context before the first user gesture.
	StartSuspended bool
}

// NewNull returns an unopened null device.
func NewNull() *Null {
	return &Null{state: StateClosed}
}

// Open implements Device.
func (n *Null) Open(src beep.Streamer) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != StateClosed {
		return nil
	}
	n.src = src
	n.state = StateRunning
	if n.StartSuspended {
		n.state = StateSuspended
	}
	return nil
}

// Pull renders frames stereo samples from the source. A device that is not
// running yields silence.
func (n *Null) Pull(frames int) [][2]float64 {
	out := make([][2]float64, frames)
	n.mu.Lock()
	src, state := n.src, n.state
	n.mu.Unlock()
	if src == nil || state != StateRunning {
		return out
	}
	done := 0
	for done < frames {
		got, ok := src.Stream(out[done:])
		done += got
		if !ok || got == 0 {
			break
		}
	}
	return out
}

// State implements Device.
func (n *Null) State() State {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.state
}

// Suspend implements Device.
func (n *Null) Suspend() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateRunning {
		n.state = StateSuspended
	}
	return nil
}

// Resume implements Device.
func (n *Null) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state == StateClosed {
		return ErrNoDevice
	}
	n.state = StateRunning
	return nil
}

// Name implements Device.
func (n *Null) Name() string { return BackendNone }

// Close implements Device.
func (n *Null) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.src = nil
	n.state = StateClosed
	return nil
}
