package lfo

import "math"

// Waveform selects the oscillator shape.
type Waveform int

const (
	WaveSine Waveform = iota
	WaveTriangle
	WaveSquare
	WaveSaw
)

// LFO is a low-frequency oscillator shared by every voice of an engine.
// Phase is kept in [0, 1) and unwrapped once per cycle, so a long-running
// engine never loses precision to an ever-growing time counter.
type LFO struct {
	rateHz     float64
	sampleRate float64
	waveform   Waveform
	phase      float64
	step       float64
}

// New returns an oscillator at rateHz for the given output sample rate.
func New(rateHz float64, sampleRate int, waveform Waveform) *LFO {
	l := &LFO{}
	l.Set(rateHz, sampleRate, waveform)
	return l
}

// Set reconfigures rate and shape without touching the phase.
func (l *LFO) Set(rateHz float64, sampleRate int, waveform Waveform) {
	if waveform < WaveSine || waveform > WaveSaw {
		waveform = WaveSine
	}
	l.rateHz = rateHz
	l.sampleRate = float64(sampleRate)
	l.waveform = waveform
	l.step = 0
	if sampleRate > 0 && rateHz > 0 {
		l.step = rateHz / l.sampleRate
	}
}

// Advance moves the phase forward by one sample period.
func (l *LFO) Advance() {
	l.phase += l.step
	for l.phase >= 1 {
		l.phase -= 1
	}
}

// Value returns the waveform at the current phase, in [-1, 1].
func (l *LFO) Value() float64 {
	switch l.waveform {
	case WaveTriangle:
		if l.phase < 0.5 {
			return 4*l.phase - 1
		}
		return 3 - 4*l.phase
	case WaveSquare:
		if l.phase < 0.5 {
			return 1
		}
		return -1
	case WaveSaw:
		return 1 - 2*l.phase
	}
	return math.Sin(2 * math.Pi * l.phase)
}

// Phase returns the current phase in [0, 1).
func (l *LFO) Phase() float64 { return l.phase }

// Active reports whether the oscillator moves at all.
func (l *LFO) Active() bool { return l.step != 0 }

// Reset zeros the phase.
func (l *LFO) Reset() { l.phase = 0 }
