// Package resample reads a sample buffer at a fractional, time-varying rate
// with linear interpolation and optional loop-region wraparound.
package resample

import (
	"errors"
	"fmt"
	"math"

	"github.com/cbegin/wavesynth-go/internal/wav"
)

// Loop is a frame range [Begin, End) that playback repeats once reached.
type Loop struct {
	Begin int
	End   int
}

func (l Loop) length() float64 { return float64(l.End - l.Begin) }

// Resampler walks one channel of a shared Buffer. It is not safe for
// concurrent use; the owning voice serializes access.
type Resampler struct {
	buf        *wav.Buffer
	channel    int
	pos        float64
	speed      float64 // base rate for the current note
	multiplier float64 // live pitch offset ratio
	loop       Loop
	looping    bool
}

// New binds a resampler to channel of buf. speed is the base playback rate
// (1 plays at the recorded pitch). loop may be nil for one-shot playback.
func New(buf *wav.Buffer, channel int, speed float64, loop *Loop) (*Resampler, error) {
	if buf == nil {
		return nil, errors.New("resample: nil buffer")
	}
	if channel < 0 || channel >= buf.Channels() {
		return nil, fmt.Errorf("resample: channel %d out of range (buffer has %d)", channel, buf.Channels())
	}
	if speed <= 0 || math.IsInf(speed, 0) || math.IsNaN(speed) {
		return nil, fmt.Errorf("resample: invalid speed %v", speed)
	}
	r := &Resampler{buf: buf, channel: channel, speed: speed, multiplier: 1}
	if loop != nil {
		if loop.Begin < 0 || loop.End <= loop.Begin || loop.End > buf.Frames() {
			return nil, fmt.Errorf("resample: invalid loop [%d, %d) for %d frames", loop.Begin, loop.End, buf.Frames())
		}
		r.loop = *loop
		r.looping = true
	}
	return r, nil
}

// wrap folds p back into the loop region once it has passed the loop end,
// keeping the fractional offset.
func (r *Resampler) wrap(p float64) float64 {
	if !r.looping || p < float64(r.loop.End) {
		return p
	}
	return float64(r.loop.Begin) + math.Mod(p-float64(r.loop.Begin), r.loop.length())
}

// ProduceSample returns the interpolated sample at the current position.
// Past the end of a non-looping buffer it returns silence.
func (r *Resampler) ProduceSample() float32 {
	p := r.wrap(r.pos)
	if p < 0 {
		return 0
	}
	i := int(p)
	f := p - float64(i)
	next := i + 1
	if r.looping && next >= r.loop.End {
		next = r.loop.Begin
	}
	last := r.buf.Frames() - 1
	if i > last || next > last {
		return 0
	}
	a := r.sample(i)
	b := r.sample(next)
	return float32(float64(a)*(1-f) + float64(b)*f)
}

func (r *Resampler) sample(frame int) float32 {
	v, err := r.buf.Sample(frame, r.channel)
	if err != nil {
		panic("resample: invariant violation: " + err.Error())
	}
	return v
}

// Advance moves the position forward by the effective rate.
func (r *Resampler) Advance() {
	r.pos = r.wrap(r.pos + r.Rate())
}

// Rate is the effective per-sample step: base speed times pitch offset.
func (r *Resampler) Rate() float64 {
	return r.speed * r.multiplier
}

// SetPitchOffsetCents sets the live multiplier to 2^(cents/1200).
func (r *Resampler) SetPitchOffsetCents(cents float64) {
	r.multiplier = math.Exp2(cents / 1200)
}

// Retune changes the base speed, leaving the position untouched.
func (r *Resampler) Retune(speed float64) {
	if speed > 0 {
		r.speed = speed
	}
}

// Reset rewinds to frame 0.
func (r *Resampler) Reset() {
	r.pos = 0
}

// Position returns the fractional source position.
func (r *Resampler) Position() float64 {
	return r.pos
}

// Seek moves to an absolute fractional position, applying loop wrap.
func (r *Resampler) Seek(pos float64) {
	if pos < 0 {
		pos = 0
	}
	r.pos = r.wrap(pos)
}

// Finished reports whether a one-shot resampler has run off the end.
func (r *Resampler) Finished() bool {
	return !r.looping && int(r.pos)+1 > r.buf.Frames()-1
}
