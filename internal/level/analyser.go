package level

import (
	"math"
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

const (
	// FFTSize is the analysis window length in samples.
	FFTSize = 256
	// DefaultSmoothing blends each frame's magnitudes with the previous ones.
	DefaultSmoothing = 0.8
	// MinDecibels and MaxDecibels bound the byte scale: MinDecibels maps to
	// 0 and MaxDecibels to 255.
	MinDecibels = -100.0
	MaxDecibels = -30.0
)

// Analyser computes a smoothed byte spectrum of the last FFTSize samples.
// It is not safe for concurrent use.
type Analyser struct {
	smoothing float64
	window    []float64
	smoothed  []float64
	bytes     []uint8
}

// NewAnalyser returns an analyser with DefaultSmoothing.
func NewAnalyser() *Analyser {
	w := make([]float64, FFTSize)
	// Blackman window.
	const a0, a1, a2 = 0.42, 0.5, 0.08
	for i := range w {
		x := 2 * math.Pi * float64(i) / float64(FFTSize)
		w[i] = a0 - a1*math.Cos(x) + a2*math.Cos(2*x)
	}
	return &Analyser{
		smoothing: DefaultSmoothing,
		window:    w,
		smoothed:  make([]float64, FFTSize/2),
		bytes:     make([]uint8, FFTSize/2),
	}
}

// SetSmoothing sets the time-averaging constant in [0, 1).
func (a *Analyser) SetSmoothing(v float64) {
	if v < 0 {
		v = 0
	}
	if v >= 1 {
		v = 0.99
	}
	a.smoothing = v
}

// ByteFrequencyData analyses samples (shorter input is zero padded at the
// front) and returns FFTSize/2 bins scaled to [0, 255]. The returned slice
// is reused by the next call.
func (a *Analyser) ByteFrequencyData(samples []float64) []uint8 {
	in := make([]float64, FFTSize)
	off := FFTSize - len(samples)
	if off < 0 {
		samples = samples[-off:]
		off = 0
	}
	for i, s := range samples {
		in[off+i] = s * a.window[off+i]
	}

	spectrum := fft.FFTReal(in)
	scale := 255 / (MaxDecibels - MinDecibels)
	for k := range a.smoothed {
		mag := cmplx.Abs(spectrum[k]) / FFTSize
		a.smoothed[k] = a.smoothing*a.smoothed[k] + (1-a.smoothing)*mag

		db := MinDecibels
		if a.smoothed[k] > 0 {
			db = 20 * math.Log10(a.smoothed[k])
		}
		v := (db - MinDecibels) * scale
		switch {
		case v < 0:
			a.bytes[k] = 0
		case v > 255:
			a.bytes[k] = 255
		default:
			a.bytes[k] = uint8(v)
		}
	}
	return a.bytes
}

// Level is the RMS of the byte spectrum normalised to [0, 1].
func (a *Analyser) Level(samples []float64) float64 {
	bins := a.ByteFrequencyData(samples)
	var sum float64
	for _, b := range bins {
		v := float64(b)
		sum += v * v
	}
	return math.Sqrt(sum/float64(len(bins))) / 255
}

// Reset clears the smoothing history.
func (a *Analyser) Reset() {
	for i := range a.smoothed {
		a.smoothed[i] = 0
	}
}
