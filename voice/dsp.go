package voice

import "math"

// Waveform selects the oscillator shape of a preset
type Waveform int

const (
	WaveSine Waveform = iota
	WaveSquare
	WaveSawtooth
	WaveTriangle
	WavePartials
)

// Envelope is an ADSR envelope in seconds. Sustain is a level 0..1.
type Envelope struct {
	Attack, Decay, Sustain, Release float64
	ExpAttack                       bool
}

// Preset is a synth patch for pitched voices
type Preset struct {
	Name     string
	Wave     Waveform
	Partials []float64 // harmonic amplitudes for WavePartials
	Count    int       // detuned copies, 1 for a plain oscillator
	Spread   float64   // total detune across copies in cents
	Env      Envelope
}

// Presets are the built-in synth patches
var Presets = []Preset{
	{Name: "saw", Wave: WaveSawtooth, Count: 1,
		Env: Envelope{Attack: 0.03, Decay: 0.1, Sustain: 0.2, Release: 0.02}},
	{Name: "organ", Wave: WavePartials, Partials: []float64{1, 0, 2, 0, 3}, Count: 1,
		Env: Envelope{Attack: 0.001, Decay: 1.2, Sustain: 0, Release: 1.2}},
	{Name: "fat custom", Wave: WavePartials, Partials: []float64{0.2, 1, 0, 0.5, 0.1}, Count: 3, Spread: 40,
		Env: Envelope{Attack: 0.001, Decay: 1.6, Sustain: 0, Release: 1.6}},
	{Name: "fat saw", Wave: WaveSawtooth, Count: 3, Spread: 30,
		Env: Envelope{Attack: 0.01, Decay: 0.1, Sustain: 0.5, Release: 0.4, ExpAttack: true}},
	{Name: "sine", Wave: WaveSine, Count: 1,
		Env: Envelope{Attack: 0.001, Decay: 0.1, Sustain: 0.1, Release: 1.2}},
}

// GetPreset returns preset i, wrapping out of range indexes
func GetPreset(i int) Preset {
	n := len(Presets)
	return Presets[((i%n)+n)%n]
}

// level returns the envelope value at t for a note held for hold seconds.
// ok is false once the release has finished.
func (e Envelope) level(t, hold float64) (v float64, ok bool) {
	if t >= hold {
		if t >= hold+e.Release {
			return 0, false
		}
		start, _ := e.level(hold, math.Inf(1))
		return start * (1 - (t-hold)/e.Release), true
	}
	switch {
	case t < e.Attack:
		x := t / e.Attack
		if e.ExpAttack {
			x *= x
		}
		return x, true
	case t < e.Attack+e.Decay:
		return 1 - (1-e.Sustain)*(t-e.Attack)/e.Decay, true
	}
	return e.Sustain, true
}

func midiFreq(note uint8) float64 {
	return 440 * math.Pow(2, (float64(note)-69)/12)
}

// wave evaluates one cycle of w at phase 0..1
func wave(w Waveform, partials []float64, phase float64) float64 {
	switch w {
	case WaveSquare:
		if phase < 0.5 {
			return 1
		}
		return -1
	case WaveSawtooth:
		return 2*phase - 1
	case WaveTriangle:
		return 1 - 4*math.Abs(phase-0.5)
	case WavePartials:
		var sum, norm float64
		for k, a := range partials {
			sum += a * math.Sin(2*math.Pi*float64(k+1)*phase)
			norm += math.Abs(a)
		}
		if norm == 0 {
			return 0
		}
		return sum / norm
	}
	return math.Sin(2 * math.Pi * phase)
}

// generator produces one voice sample at a time
type generator interface {
	next() (float64, bool)
}

type toneGen struct {
	preset Preset
	freqs  []float64
	phases []float64
	hold   float64
	t, dt  float64
}

func newToneGen(p Preset, note uint8, hold float64, sampleRate int) *toneGen {
	count := p.Count
	if count < 1 {
		count = 1
	}
	base := midiFreq(note)
	g := &toneGen{
		preset: p,
		freqs:  make([]float64, count),
		phases: make([]float64, count),
		hold:   hold,
		dt:     1 / float64(sampleRate),
	}
	for i := range g.freqs {
		cents := 0.0
		if count > 1 {
			cents = -p.Spread/2 + p.Spread*float64(i)/float64(count-1)
		}
		g.freqs[i] = base * math.Pow(2, cents/1200)
	}
	return g
}

func (g *toneGen) next() (float64, bool) {
	amp, ok := g.preset.Env.level(g.t, g.hold)
	if !ok {
		return 0, false
	}
	var s float64
	for i, f := range g.freqs {
		s += wave(g.preset.Wave, g.preset.Partials, g.phases[i])
		g.phases[i] += f * g.dt
		g.phases[i] -= math.Floor(g.phases[i])
	}
	g.t += g.dt
	return s / float64(len(g.freqs)) * amp, true
}

// noise is a xorshift32 white noise source
type noise struct {
	state uint32
}

func (n *noise) next() float64 {
	x := n.state
	x ^= x << 13
	x ^= x >> 17
	x ^= x << 5
	n.state = x
	return float64(x)/float64(math.MaxUint32)*2 - 1
}

// drumGen synthesizes percussion: a swept sine body plus filtered noise
type drumGen struct {
	f0, f1, sweep float64 // body starts at f0 and falls to f1 with time constant sweep
	bodyDecay     float64
	bodyAmp       float64
	noiseDecay    float64
	noiseAmp      float64
	highpass      bool
	claps         int // noise retriggers 10ms apart
	length        float64

	noise     noise
	prevNoise float64
	t, dt     float64
}

func newDrumGen(v Voice, sampleRate int) *drumGen {
	g := &drumGen{dt: 1 / float64(sampleRate), noise: noise{state: 0x9e3779b9 ^ uint32(v.Note)}}
	f := midiFreq(v.Note)
	switch v.Kind {
	case KindKick:
		g.f0, g.f1, g.sweep = 150, 48, 0.04
		g.bodyDecay, g.bodyAmp = 0.35, 1
		g.length = 0.8
	case KindSnare:
		g.f0, g.f1, g.sweep = 220, 180, 0.02
		g.bodyDecay, g.bodyAmp = 0.08, 0.5
		g.noiseDecay, g.noiseAmp = 0.12, 0.7
		g.length = 0.5
	case KindClosedHat:
		g.noiseDecay, g.noiseAmp, g.highpass = 0.04, 0.6, true
		g.length = 0.2
	case KindOpenHat:
		g.noiseDecay, g.noiseAmp, g.highpass = 0.25, 0.5, true
		g.length = 1
	case KindTom:
		g.f0, g.f1, g.sweep = f*2, f*1.5, 0.05
		g.bodyDecay, g.bodyAmp = 0.25, 0.9
		g.length = 0.8
	case KindCymbal:
		g.noiseDecay, g.noiseAmp, g.highpass = 0.9, 0.4, true
		g.length = 3
	case KindClap:
		g.noiseDecay, g.noiseAmp, g.claps = 0.1, 0.7, 3
		g.length = 0.5
	default:
		g.f0, g.f1, g.sweep = f*4, f*4, 1
		g.bodyDecay, g.bodyAmp = 0.06, 0.7
		g.length = 0.3
	}
	return g
}

func (g *drumGen) next() (float64, bool) {
	t := g.t
	if t >= g.length {
		return 0, false
	}
	var s float64
	if g.bodyAmp > 0 {
		// phase of an exponential sweep from f0 to f1
		phase := g.f1*t + (g.f0-g.f1)*g.sweep*(1-math.Exp(-t/g.sweep))
		s += g.bodyAmp * math.Exp(-t/g.bodyDecay) * math.Sin(2*math.Pi*phase)
	}
	if g.noiseAmp > 0 {
		n := g.noise.next()
		if g.highpass {
			n, g.prevNoise = (n-g.prevNoise)/2, n
		}
		nt := t
		if g.claps > 0 {
			burst := math.Floor(t / 0.01)
			if burst < float64(g.claps) {
				nt = t - burst*0.01
			} else {
				nt = t - float64(g.claps-1)*0.01
			}
		}
		s += g.noiseAmp * math.Exp(-nt/g.noiseDecay) * n
	}
	g.t += g.dt
	return s, true
}
