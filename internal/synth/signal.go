package synth

import (
	"math"
	"time"

	"github.com/gopxl/beep"
)

// Signal produces one mono sample per call at SampleRate.
type Signal interface {
	Next() float64
}

// SignalFunc adapts a function to Signal.
type SignalFunc func() float64

// Next implements Signal.
func (f SignalFunc) Next() float64 { return f() }

// Waveform selects an oscillator shape.
type Waveform int

const (
	Sine Waveform = iota
	Triangle
)

// Osc is a phase-accumulating oscillator with an automatable frequency.
type Osc struct {
	wave  Waveform
	freq  Param
	phase float64
	n     int
}

// NewOsc returns an oscillator of wave at freq Hz.
func NewOsc(wave Waveform, freq Param) *Osc {
	return &Osc{wave: wave, freq: freq}
}

// Next implements Signal.
func (o *Osc) Next() float64 {
	t := float64(o.n) / float64(SampleRate)
	o.n++

	var v float64
	switch o.wave {
	case Triangle:
		// Rises from 0 at phase 0, like a sine.
		p := o.phase + 0.75
		p -= math.Floor(p)
		v = 4*math.Abs(p-0.5) - 1
	default:
		v = math.Sin(2 * math.Pi * o.phase)
	}

	o.phase += o.freq.At(t) / float64(SampleRate)
	o.phase -= math.Floor(o.phase)
	return v
}

// Gain scales a signal by an automatable level.
type Gain struct {
	in    Signal
	level Param
	n     int
}

// NewGain wraps in with level.
func NewGain(in Signal, level Param) *Gain {
	return &Gain{in: in, level: level}
}

// Next implements Signal.
func (g *Gain) Next() float64 {
	t := float64(g.n) / float64(SampleRate)
	g.n++
	return g.in.Next() * g.level.At(t)
}

// Stream renders sig into a beep.Streamer, writing the same sample to both
// channels. A positive d bounds the stream; d <= 0 streams forever.
func Stream(sig Signal, d time.Duration) beep.Streamer {
	s := beep.StreamerFunc(func(samples [][2]float64) (int, bool) {
		for i := range samples {
			v := sig.Next()
			samples[i][0] = v
			samples[i][1] = v
		}
		return len(samples), true
	})
	if d <= 0 {
		return s
	}
	return beep.Take(SampleRate.N(d), s)
}

// Render pulls n samples from sig into a new slice.
func Render(sig Signal, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = sig.Next()
	}
	return out
}

// Seconds converts a float number of seconds to a Duration.
func Seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
