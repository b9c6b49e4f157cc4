// Package level measures how loud the ambience mix is, for driving reactive
// visuals.
//
// A Tap sits at the end of the mix and keeps the most recent samples in a
// ring buffer. An Analyser turns the last FFTSize of those samples into a
// smoothed byte spectrum, the way a browser analyser node does, and reduces
// it to a single level in [0, 1].
package level

import (
	"math"
	"sync"

	"github.com/gopxl/beep"
)

// RMS returns the root-mean-square amplitude of samples.
func RMS(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// Tap passes a stream through unchanged while capturing a mono copy.
type Tap struct {
	s    beep.Streamer
	mu   sync.Mutex
	buf  []float64
	pos  int
	size int
}

// NewTap wraps s with a ring buffer of size samples.
func NewTap(s beep.Streamer, size int) *Tap {
	if size <= 0 {
		size = FFTSize
	}
	return &Tap{s: s, buf: make([]float64, size), size: size}
}

// Stream implements beep.Streamer.
func (t *Tap) Stream(samples [][2]float64) (int, bool) {
	n, ok := t.s.Stream(samples)
	t.Write(samples[:n])
	return n, ok
}

// Err implements beep.Streamer.
func (t *Tap) Err() error {
	return t.s.Err()
}

// Write appends stereo frames to the ring as their mono mix.
func (t *Tap) Write(samples [][2]float64) {
	t.mu.Lock()
	for _, s := range samples {
		t.buf[t.pos] = (s[0] + s[1]) / 2
		t.pos = (t.pos + 1) % t.size
	}
	t.mu.Unlock()
}

// Samples returns the last n samples, oldest first.
func (t *Tap) Samples(n int) []float64 {
	if n > t.size {
		n = t.size
	}
	out := make([]float64, n)
	t.mu.Lock()
	start := (t.pos - n + t.size) % t.size
	for i := range out {
		out[i] = t.buf[(start+i)%t.size]
	}
	t.mu.Unlock()
	return out
}

// Reset zeroes the ring.
func (t *Tap) Reset() {
	t.mu.Lock()
	for i := range t.buf {
		t.buf[i] = 0
	}
	t.pos = 0
	t.mu.Unlock()
}
