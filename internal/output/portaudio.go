package output

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gopxl/beep"
	"github.com/gordonklaus/portaudio"
)

const (
	sampleRate = 48000
	channels   = 2
	// FrameSize is the number of stereo frames written per blocking call
	// (20 ms @ 48 kHz).
	FrameSize = 960
)

// paStream abstracts a PortAudio stream for testing.
type paStream interface {
	Start() error
	Stop() error
	Close() error
	Write() error
}

// PortAudio plays the mix through a PortAudio blocking output stream.
type PortAudio struct {
	mu       sync.Mutex
	deviceID int
	stream   paStream
	src      beep.Streamer
	name     string

	// terminate releases the PortAudio library reference taken by Open.
	terminate func() error

	running   atomic.Bool
	suspended atomic.Bool

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPortAudio returns a device bound to the output at index deviceID, or
// the system default when deviceID is out of range.
func NewPortAudio(deviceID int) *PortAudio {
	return &PortAudio{deviceID: deviceID, stopCh: make(chan struct{})}
}

// ListDevices returns the available PortAudio output devices.
func ListDevices() []AudioDevice {
	if err := portaudio.Initialize(); err != nil {
		log.Printf("[output] portaudio init: %v", err)
		return nil
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		log.Printf("[output] list devices: %v", err)
		return nil
	}
	var out []AudioDevice
	for i, d := range devices {
		if d.MaxOutputChannels >= channels {
			out = append(out, AudioDevice{ID: i, Name: d.Name})
		}
	}
	return out
}

// resolveDevice returns the device at idx if valid, otherwise calls fallback.
func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// Open initialises PortAudio, opens the output stream and starts the
// playback loop.
func (pa *PortAudio) Open(src beep.Streamer) error {
	pa.mu.Lock()
	defer pa.mu.Unlock()

	if pa.running.Load() {
		return nil
	}
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: portaudio init: %v", ErrNoDevice, err)
	}

	devices, err := portaudio.Devices()
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}
	dev, err := resolveDevice(devices, pa.deviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: %v", ErrNoDevice, err)
	}

	buf := make([]float32, FrameSize*channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      sampleRate,
		FramesPerBuffer: FrameSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: open stream: %v", ErrNoDevice, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: start stream: %v", ErrNoDevice, err)
	}

	pa.name = dev.Name
	pa.terminate = portaudio.Terminate
	pa.startLocked(stream, src, buf)
	log.Printf("[output] portaudio playback=%s", dev.Name)
	return nil
}

func (pa *PortAudio) startLocked(stream paStream, src beep.Streamer, buf []float32) {
	pa.stream = stream
	pa.src = src
	pa.stopCh = make(chan struct{})
	pa.suspended.Store(false)
	pa.running.Store(true)

	pa.wg.Add(1)
	go func() { defer pa.wg.Done(); pa.playbackLoop(buf) }()
}

// State implements Device.
func (pa *PortAudio) State() State {
	switch {
	case !pa.running.Load():
		return StateClosed
	case pa.suspended.Load():
		return StateSuspended
	}
	return StateRunning
}

// Suspend keeps the stream open but writes silence and stops pulling the mix.
func (pa *PortAudio) Suspend() error {
	if !pa.running.Load() {
		return nil
	}
	pa.suspended.Store(true)
	return nil
}

// Resume implements Device.
func (pa *PortAudio) Resume(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !pa.running.Load() {
		return ErrNoDevice
	}
	pa.suspended.Store(false)
	return nil
}

// Name implements Device.
func (pa *PortAudio) Name() string {
	pa.mu.Lock()
	defer pa.mu.Unlock()
	if pa.name == "" {
		return BackendPortAudio
	}
	return BackendPortAudio + ":" + pa.name
}

// Close halts playback.
//
// Stopping the stream makes a blocked Pa_WriteStream return so the loop can
// exit. The loop must be gone before Pa_CloseStream frees the native stream.
func (pa *PortAudio) Close() error {
	if !pa.running.CompareAndSwap(true, false) {
		return nil
	}
	close(pa.stopCh)

	pa.mu.Lock()
	if pa.stream != nil {
		pa.stream.Stop()
	}
	pa.mu.Unlock()

	pa.wg.Wait()

	pa.mu.Lock()
	var err error
	if pa.stream != nil {
		err = pa.stream.Close()
		pa.stream = nil
	}
	if pa.terminate != nil {
		pa.terminate()
		pa.terminate = nil
	}
	pa.src = nil
	pa.mu.Unlock()

	log.Println("[output] portaudio closed")
	return err
}

// clampFloat32 clamps v to [-1.0, 1.0].
func clampFloat32(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// fillInterleaved pulls len(buf)/2 frames from src into buf. Frames src
// cannot supply are silence.
func fillInterleaved(src beep.Streamer, frames [][2]float64, buf []float32) {
	n := 0
	if src != nil {
		for n < len(frames) {
			got, ok := src.Stream(frames[n:])
			n += got
			if !ok || got == 0 {
				break
			}
		}
	}
	for i := n; i < len(frames); i++ {
		frames[i] = [2]float64{}
	}
	for i, f := range frames {
		buf[2*i] = clampFloat32(float32(f[0]))
		buf[2*i+1] = clampFloat32(float32(f[1]))
	}
}

func (pa *PortAudio) playbackLoop(buf []float32) {
	frames := make([][2]float64, len(buf)/channels)
	for {
		select {
		case <-pa.stopCh:
			return
		default:
		}

		// Write blocks until the hardware wants more samples, which paces
		// the loop. While suspended the stream is fed silence.
		if pa.suspended.Load() {
			for i := range buf {
				buf[i] = 0
			}
		} else {
			fillInterleaved(pa.src, frames, buf)
		}

		if err := pa.stream.Write(); err != nil {
			if pa.running.Load() {
				log.Printf("[output] playback write: %v", err)
			}
			return
		}
	}
}
