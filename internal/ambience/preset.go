package ambience

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/j-emboi/sarcastic-serenity/internal/synth"
)

// Kind names a procedural texture.
type Kind string

const (
	KindWhite     Kind = "white"
	KindPink      Kind = "pink"
	KindBrown     Kind = "brown"
	KindWaves     Kind = "waves"
	KindRain      Kind = "rain"
	KindBirds     Kind = "birds"
	KindForest    Kind = "forest"
	KindFireplace Kind = "fireplace"
	KindStream    Kind = "stream"
	KindWind      Kind = "wind"
)

// DefaultKind is played when no preset is configured.
const DefaultKind = KindPink

// ErrUnknownPreset is returned for a texture kind with no recipe.
var ErrUnknownPreset = errors.New("unknown ambience preset")

// MinTransientInterval floors every stochastic reschedule.
const MinTransientInterval = 50 * time.Millisecond

// noiseSeconds is the length of the looped noise buffer behind each texture.
const noiseSeconds = 2

// Kinds lists every texture in menu order.
func Kinds() []Kind {
	return []Kind{KindPink, KindWhite, KindBrown, KindWaves, KindRain, KindBirds, KindForest, KindFireplace, KindStream, KindWind}
}

// ParseKind resolves a preset name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := recipes[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownPreset, s)
	}
	return k, nil
}

// burst describes one transient event: what it sounds like and how loud.
type burst struct {
	node     synth.Signal
	lifetime time.Duration
}

// transientSpec is the stochastic overlay of a texture.
type transientSpec struct {
	name string
	// first is the delay before the first event; nil fires immediately.
	first func(r *rand.Rand) time.Duration
	// next is the reschedule interval for serendipity ser.
	next func(r *rand.Rand, ser float64) time.Duration
	// make builds one event at peak amplitude peak.
	make  func(r *rand.Rand, noise []float64, peak float64) burst
	level float64 // peak = volume * level * serendipity
}

// recipe builds a texture.
type recipe struct {
	color synth.NoiseColor
	// base builds the continuous bed; nil means the texture has none.
	base      func(noise []float64, volume float64) synth.Signal
	transient *transientSpec
}

func ms(v float64) time.Duration {
	return time.Duration(v * float64(time.Millisecond))
}

// uniform returns a delay drawn from [lo, lo+span) milliseconds.
func uniform(lo, span float64) func(r *rand.Rand) time.Duration {
	return func(r *rand.Rand) time.Duration { return ms(lo + r.Float64()*span) }
}

// scaled is the common interval rule: a random base in [lo, lo+span) ms
// shortened by serendipity times sensitivity.
func scaled(lo, span, sensitivity float64) func(r *rand.Rand, ser float64) time.Duration {
	return func(r *rand.Rand, ser float64) time.Duration {
		return ms((lo + r.Float64()*span) * (1 - ser*sensitivity))
	}
}

// filteredBurst plays the noise loop through one filter with a fast linear
// attack and an exponential tail.
func filteredBurst(kind synth.FilterKind, freq, q, attack, decay float64) func(r *rand.Rand, noise []float64, peak float64) burst {
	return func(r *rand.Rand, noise []float64, peak float64) burst {
		src := synth.NewLoop(noise)
		f := synth.NewFilter(src, kind, synth.Const(freq), synth.Const(q))
		env := synth.NewEnvelope(0).LinearTo(peak, attack).ExpTo(0.0001, decay)
		return burst{node: synth.NewGain(f, synth.Curve(env)), lifetime: synth.Seconds(decay)}
	}
}

// randomBurst is filteredBurst with a randomised centre frequency and Q.
func randomBurst(kind synth.FilterKind, freqLo, freqSpan, qLo, qSpan, attack, decay float64) func(r *rand.Rand, noise []float64, peak float64) burst {
	return func(r *rand.Rand, noise []float64, peak float64) burst {
		freq := freqLo + r.Float64()*freqSpan
		q := 1.0
		if qSpan > 0 || qLo > 0 {
			q = qLo + r.Float64()*qSpan
		}
		return filteredBurst(kind, freq, q, attack, decay)(r, noise, peak)
	}
}

// chirp is a falling triangle-wave bird call.
func chirp(startLo, startSpan, endLo, endSpan, sweep, decay, stop float64) func(r *rand.Rand, _ []float64, peak float64) burst {
	return func(r *rand.Rand, _ []float64, peak float64) burst {
		start := startLo + r.Float64()*startSpan
		end := endLo + r.Float64()*endSpan
		osc := synth.NewOsc(synth.Triangle, synth.Curve(synth.NewEnvelope(start).ExpTo(end, sweep)))
		env := synth.NewEnvelope(0).LinearTo(peak, 0.02).ExpTo(0.0001, decay)
		return burst{node: synth.NewGain(osc, synth.Curve(env)), lifetime: synth.Seconds(stop)}
	}
}

// bed builds the continuous part: noise through a high-pass and low-pass
// pair at a fixed fraction of volume.
func bed(hp, lp, level float64) func(noise []float64, volume float64) synth.Signal {
	return func(noise []float64, volume float64) synth.Signal {
		var sig synth.Signal = synth.NewLoop(noise)
		sig = synth.NewFilter(sig, synth.Highpass, synth.Const(hp), synth.Const(1))
		sig = synth.NewFilter(sig, synth.Lowpass, synth.Const(lp), synth.Const(1))
		return synth.NewGain(sig, synth.Const(volume*level))
	}
}

func plain(noise []float64, volume float64) synth.Signal {
	return synth.NewGain(synth.NewLoop(noise), synth.Const(volume))
}

var recipes = map[Kind]recipe{
	KindWhite: {color: synth.White, base: plain},
	KindBrown: {color: synth.Brown, base: plain},
	KindPink: {
		color: synth.Pink,
		base:  plain,
		transient: &transientSpec{
			name:  "effect",
			first: uniform(3000, 4000),
			next: func(r *rand.Rand, ser float64) time.Duration {
				return ms(2000 + r.Float64()*(8000-2000*ser))
			},
			make:  randomBurst(synth.Bandpass, 100, 2000, 2, 3, 0.05, 0.8),
			level: 0.6,
		},
	},
	KindWaves: {
		color: synth.White,
		base: func(noise []float64, volume float64) synth.Signal {
			cutoff := synth.Param{Value: 400, LFO: &synth.LFO{Rate: 0.1, Depth: 300}}
			f := synth.NewFilter(synth.NewLoop(noise), synth.Lowpass, cutoff, synth.Const(1))
			return synth.NewGain(f, synth.Const(volume))
		},
		transient: &transientSpec{
			name:  "crash",
			first: uniform(2000, 5000),
			next: func(r *rand.Rand, ser float64) time.Duration {
				return ms(3000 + r.Float64()*(10000-3000*ser))
			},
			make:  randomBurst(synth.Lowpass, 200, 300, 0, 0, 0.1, 1.5),
			level: 0.8,
		},
	},
	KindRain: {
		color: synth.White,
		base:  bed(1500, 8000, 0.6),
		transient: &transientSpec{
			name:  "drop",
			next:  scaled(400, 1200, 0.7),
			make:  filteredBurst(synth.Bandpass, 3000, 5, 0.02, 0.25),
			level: 0.4,
		},
	},
	KindBirds: {
		color: synth.White,
		transient: &transientSpec{
			name:  "chirp",
			next:  scaled(800, 2500, 0.8),
			make:  chirp(1500, 2000, 800, 1200, 0.18, 0.25, 0.3),
			level: 0.5,
		},
	},
	KindForest: {
		color: synth.White,
		base:  bed(200, 3000, 0.4),
		transient: &transientSpec{
			name:  "bird",
			first: uniform(2000, 5000),
			next:  scaled(3000, 8000, 0.5),
			make:  chirp(1200, 1500, 600, 800, 0.15, 0.2, 0.25),
			level: 0.3,
		},
	},
	KindFireplace: {
		color: synth.White,
		base:  bed(100, 2000, 0.5),
		transient: &transientSpec{
			name:  "pop",
			first: uniform(1000, 2000),
			next:  scaled(200, 800, 0.6),
			make:  randomBurst(synth.Bandpass, 800, 1200, 3, 2, 0.01, 0.15),
			level: 0.6,
		},
	},
	KindStream: {
		color: synth.White,
		base:  bed(800, 6000, 0.6),
		transient: &transientSpec{
			name:  "splash",
			first: uniform(2000, 4000),
			next:  scaled(1500, 3000, 0.4),
			make:  randomBurst(synth.Bandpass, 2000, 3000, 2, 2, 0.02, 0.3),
			level: 0.4,
		},
	},
	KindWind: {
		color: synth.White,
		base:  bed(150, 1500, 0.5),
		transient: &transientSpec{
			name:  "gust",
			first: uniform(3000, 5000),
			next:  scaled(4000, 8000, 0.3),
			make:  randomBurst(synth.Lowpass, 800, 700, 0, 0, 0.5, 2.0),
			level: 0.7,
		},
	},
}

// nextDelay draws the interval before the next transient of kind, floored
// at MinTransientInterval.
func nextDelay(kind Kind, r *rand.Rand, serendipity float64) time.Duration {
	rc, ok := recipes[kind]
	if !ok || rc.transient == nil {
		return 0
	}
	d := rc.transient.next(r, clamp01(serendipity))
	if d < MinTransientInterval {
		d = MinTransientInterval
	}
	return d
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
