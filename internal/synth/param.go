package synth

import "math"

type rampKind int

const (
	rampStep rampKind = iota
	rampLinear
	rampExp
)

type point struct {
	at    float64 // seconds from node start
	value float64
	kind  rampKind
}

// Envelope is a piecewise automation curve over node-local time, in the
// manner of an audio-param schedule: a value is held, linearly ramped or
// exponentially ramped between scheduled points.
type Envelope struct {
	points []point
}

// NewEnvelope starts a curve at value v at time 0.
func NewEnvelope(v float64) *Envelope {
	return &Envelope{points: []point{{at: 0, value: v, kind: rampStep}}}
}

// SetAt jumps to v at time at.
func (e *Envelope) SetAt(v, at float64) *Envelope {
	e.points = append(e.points, point{at: at, value: v, kind: rampStep})
	return e
}

// LinearTo ramps linearly from the previous point to v, arriving at at.
func (e *Envelope) LinearTo(v, at float64) *Envelope {
	e.points = append(e.points, point{at: at, value: v, kind: rampLinear})
	return e
}

// ExpTo ramps exponentially to v, arriving at at. Both ends must be
// positive for the curve to be exponential; otherwise it is linear.
func (e *Envelope) ExpTo(v, at float64) *Envelope {
	e.points = append(e.points, point{at: at, value: v, kind: rampExp})
	return e
}

// End is the time of the last scheduled point.
func (e *Envelope) End() float64 {
	return e.points[len(e.points)-1].at
}

// At returns the curve value at t seconds.
func (e *Envelope) At(t float64) float64 {
	prev := e.points[0]
	if t <= prev.at {
		return prev.value
	}
	for _, p := range e.points[1:] {
		if t < p.at {
			span := p.at - prev.at
			if span <= 0 || p.kind == rampStep {
				return prev.value
			}
			x := (t - prev.at) / span
			if p.kind == rampExp && prev.value > 0 && p.value > 0 {
				return prev.value * math.Pow(p.value/prev.value, x)
			}
			return prev.value + (p.value-prev.value)*x
		}
		prev = p
	}
	return prev.value
}

// LFO is a sine modulator added on top of a parameter.
type LFO struct {
	Rate  float64 // Hz
	Depth float64
}

// Param is a node parameter: a constant, optionally automated by an
// envelope and modulated by an LFO.
type Param struct {
	Value float64
	Env   *Envelope
	LFO   *LFO
}

// Const returns a fixed parameter.
func Const(v float64) Param { return Param{Value: v} }

// Curve returns a parameter driven by env.
func Curve(env *Envelope) Param { return Param{Env: env} }

// At evaluates the parameter at t seconds.
func (p Param) At(t float64) float64 {
	v := p.Value
	if p.Env != nil {
		v = p.Env.At(t)
	}
	if p.LFO != nil {
		v += p.LFO.Depth * math.Sin(2*math.Pi*p.LFO.Rate*t)
	}
	return v
}

// static reports whether the parameter never changes.
func (p Param) static() bool {
	return p.Env == nil && p.LFO == nil
}
