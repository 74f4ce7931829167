package effects

import "math"

// Curve is a waveshaping transfer function.
type Curve int

const (
	CurveSoft Curve = iota // tanh
	CurveHard              // clip at +-1
)

// Distortion drives the signal into a Curve, scales the result and optionally
// smooths it with a one-pole lowpass. CurveSoft with drive near 1 is a gentle
// output limiter.
type Distortion struct {
	curve Curve
	drive float32
	level float32
	tone  onePole
}

// NewDistortion creates a soft (tanh) distortion. drive is the input gain,
// level the output gain and cutoffHz the tone filter (0 disables it).
func NewDistortion(sampleRate int, drive, level, cutoffHz float32) *Distortion {
	return &Distortion{
		curve: CurveSoft,
		drive: drive,
		level: level,
		tone:  newOnePole(sampleRate, cutoffHz),
	}
}

// WithCurve switches the transfer function.
func (d *Distortion) WithCurve(c Curve) *Distortion {
	d.curve = c
	return d
}

func (d *Distortion) Process(x float32) float32 {
	x *= d.drive
	switch d.curve {
	case CurveHard:
		x = clamp(x, -1, 1)
	default:
		x = float32(math.Tanh(float64(x)))
	}
	return d.tone.filter(x * d.level)
}

func (d *Distortion) Reset() { d.tone.state = 0 }

// onePole is a lowpass; alpha 0 passes the input through.
type onePole struct {
	alpha float32
	state float32
}

func newOnePole(sampleRate int, cutoffHz float32) onePole {
	if cutoffHz <= 0 || cutoffHz >= float32(sampleRate)/2 {
		return onePole{}
	}
	rc := 1.0 / (2.0 * math.Pi * float64(cutoffHz))
	dt := 1.0 / float64(sampleRate)
	return onePole{alpha: float32(dt / (rc + dt))}
}

func (p *onePole) filter(x float32) float32 {
	if p.alpha == 0 {
		return x
	}
	p.state += p.alpha * (x - p.state)
	return p.state
}
