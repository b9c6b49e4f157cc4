package synth

import "math"

// FilterKind selects the biquad response.
type FilterKind int

const (
	Lowpass FilterKind = iota
	Highpass
	Bandpass
)

// Biquad is a second-order IIR section using the RBJ cookbook formulas.
type Biquad struct {
	kind FilterKind
	freq float64
	q    float64

	b0, b1, b2, a1, a2 float64
	x1, x2, y1, y2     float64
}

// NewBiquad returns a filter of kind at freq Hz with quality q.
func NewBiquad(kind FilterKind, freq, q float64) *Biquad {
	f := &Biquad{kind: kind}
	f.Set(freq, q)
	return f
}

// Set recomputes coefficients when freq or q changed. State is kept so
// sweeps stay click free.
func (f *Biquad) Set(freq, q float64) {
	nyquist := float64(SampleRate) / 2
	if freq < 10 {
		freq = 10
	}
	if freq > nyquist-1 {
		freq = nyquist - 1
	}
	if q <= 0 {
		q = 1
	}
	if freq == f.freq && q == f.q {
		return
	}
	f.freq, f.q = freq, q

	w0 := 2 * math.Pi * freq / float64(SampleRate)
	cosw := math.Cos(w0)
	alpha := math.Sin(w0) / (2 * q)

	var b0, b1, b2 float64
	switch f.kind {
	case Highpass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
	case Bandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
	}
	a0 := 1 + alpha
	f.b0 = b0 / a0
	f.b1 = b1 / a0
	f.b2 = b2 / a0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

// Process filters one sample.
func (f *Biquad) Process(x float64) float64 {
	y := f.b0*x + f.b1*f.x1 + f.b2*f.x2 - f.a1*f.y1 - f.a2*f.y2
	f.x2, f.x1 = f.x1, x
	f.y2, f.y1 = f.y1, y
	return y
}

// Filter runs a Signal through a biquad whose cutoff and Q may be automated.
type Filter struct {
	in   Signal
	bq   *Biquad
	freq Param
	q    Param
	n    int
}

// NewFilter wraps in with a filter of kind.
func NewFilter(in Signal, kind FilterKind, freq, q Param) *Filter {
	return &Filter{
		in:   in,
		bq:   NewBiquad(kind, freq.At(0), q.At(0)),
		freq: freq,
		q:    q,
	}
}

// Next implements Signal.
func (f *Filter) Next() float64 {
	if !f.freq.static() || !f.q.static() {
		t := float64(f.n) / float64(SampleRate)
		f.bq.Set(f.freq.At(t), f.q.At(t))
	}
	f.n++
	return f.bq.Process(f.in.Next())
}
