// Package synth holds the signal primitives the ambience engine is built
// from: noise colours, biquad filters, parameter envelopes, oscillators and
// the adapter that turns a mono signal into a beep.Streamer.
package synth

import (
	"fmt"
	"math/rand"

	"github.com/gopxl/beep"
)

// SampleRate is the rate every generated buffer and stream runs at.
const SampleRate = beep.SampleRate(48000)

// NoiseColor selects the spectral shape of generated noise.
type NoiseColor int

const (
	White NoiseColor = iota
	Pink
	Brown
)

func (c NoiseColor) String() string {
	switch c {
	case White:
		return "white"
	case Pink:
		return "pink"
	case Brown:
		return "brown"
	}
	return fmt.Sprintf("NoiseColor(%d)", int(c))
}

// PinkFilter shapes white noise into pink noise with Paul Kellet's
// six-pole approximation.
type PinkFilter struct {
	b0, b1, b2, b3, b4, b5, b6 float64
}

// Next consumes one white sample in [-1, 1] and returns one pink sample.
func (p *PinkFilter) Next(w float64) float64 {
	p.b0 = 0.99886*p.b0 + w*0.0555179
	p.b1 = 0.99332*p.b1 + w*0.0750759
	p.b2 = 0.96900*p.b2 + w*0.1538520
	p.b3 = 0.86650*p.b3 + w*0.3104856
	p.b4 = 0.55000*p.b4 + w*0.5329522
	p.b5 = -0.7616*p.b5 - w*0.0168980
	out := (p.b0 + p.b1 + p.b2 + p.b3 + p.b4 + p.b5 + p.b6 + w*0.5362) * 0.11
	p.b6 = w * 0.115926
	return out
}

// BrownFilter is a leaky integrator over white noise.
type BrownFilter struct {
	last float64
}

// Next consumes one white sample and returns one brown sample, gain
// compensated by 3.5.
func (b *BrownFilter) Next(w float64) float64 {
	b.last = (b.last + 0.02*w) / 1.02
	return b.last * 3.5
}

// FillNoise writes noise of color into buf using rng.
func FillNoise(color NoiseColor, buf []float64, rng *rand.Rand) {
	switch color {
	case Pink:
		var f PinkFilter
		for i := range buf {
			buf[i] = f.Next(rng.Float64()*2 - 1)
		}
	case Brown:
		var f BrownFilter
		for i := range buf {
			buf[i] = f.Next(rng.Float64()*2 - 1)
		}
	default:
		for i := range buf {
			buf[i] = rng.Float64()*2 - 1
		}
	}
}

// NoiseBuffer returns seconds of noise at SampleRate.
func NoiseBuffer(color NoiseColor, seconds float64, rng *rand.Rand) []float64 {
	n := int(seconds * float64(SampleRate))
	if n < 1 {
		n = 1
	}
	buf := make([]float64, n)
	FillNoise(color, buf, rng)
	return buf
}

// Loop plays buf forever, wrapping at the end.
type Loop struct {
	buf []float64
	pos int
}

// NewLoop returns a looping signal over buf. buf must not be empty.
func NewLoop(buf []float64) *Loop {
	return &Loop{buf: buf}
}

// Next implements Signal.
func (l *Loop) Next() float64 {
	v := l.buf[l.pos]
	l.pos++
	if l.pos == len(l.buf) {
		l.pos = 0
	}
	return v
}
