// Package envelope implements the per-voice ADSR amplitude state machine.
package envelope

import "fmt"

// Stage is the current envelope segment.
type Stage int

const (
	Attack Stage = iota
	Decay
	Sustain
	Release
	Idle
)

func (s Stage) String() string {
	switch s {
	case Attack:
		return "attack"
	case Decay:
		return "decay"
	case Sustain:
		return "sustain"
	case Release:
		return "release"
	case Idle:
		return "idle"
	}
	return fmt.Sprintf("Stage(%d)", int(s))
}

// ADSR is a linear attack/decay/sustain/release envelope. Durations are in
// seconds; elapsed time is kept as a sample count so stage boundaries land
// on exact sample indices.
type ADSR struct {
	attack       float64
	decay        float64
	sustain      float64
	release      float64
	sampleRate   float64
	stage        Stage
	elapsed      int
	releaseLevel float64
}

// New returns an envelope in the attack stage. Negative durations are
// treated as zero and the sustain level is clamped to [0, 1].
func New(attack, decay, sustain, release float64, sampleRate int) *ADSR {
	e := &ADSR{}
	e.Configure(attack, decay, sustain, release, sampleRate)
	return e
}

// Configure replaces the envelope parameters and restarts at attack.
func (e *ADSR) Configure(attack, decay, sustain, release float64, sampleRate int) {
	if sampleRate <= 0 {
		sampleRate = 1
	}
	*e = ADSR{
		attack:     max(attack, 0),
		decay:      max(decay, 0),
		sustain:    min(max(sustain, 0), 1),
		release:    max(release, 0),
		sampleRate: float64(sampleRate),
	}
}

// Reset restarts the envelope at the beginning of the attack stage.
func (e *ADSR) Reset() {
	e.stage = Attack
	e.elapsed = 0
	e.releaseLevel = 0
}

func (e *ADSR) Stage() Stage { return e.stage }

// Done reports whether the envelope has reached Idle.
func (e *ADSR) Done() bool { return e.stage == Idle }

func (e *ADSR) seconds() float64 {
	return float64(e.elapsed) / e.sampleRate
}

// Output returns the current amplitude in [0, 1] without advancing.
func (e *ADSR) Output() float64 {
	t := e.seconds()
	switch e.stage {
	case Attack:
		if e.attack == 0 {
			return 1
		}
		return min(t/e.attack, 1)
	case Decay:
		if e.decay == 0 {
			return e.sustain
		}
		return 1 - (1-e.sustain)*min(t/e.decay, 1)
	case Sustain:
		return e.sustain
	case Release:
		if e.release == 0 {
			return 0
		}
		return e.releaseLevel * max(1-t/e.release, 0)
	}
	return 0
}

// Next advances by one sample period and moves to the next stage once the
// current one's duration has elapsed. Zero-length stages are left on the
// first call.
func (e *ADSR) Next() {
	switch e.stage {
	case Sustain, Idle:
		return
	}
	e.elapsed++
	t := e.seconds()
	switch e.stage {
	case Attack:
		if t >= e.attack {
			e.enter(Decay)
		}
	case Decay:
		if t >= e.decay {
			e.enter(Sustain)
		}
	case Release:
		if t >= e.release {
			e.enter(Idle)
		}
	}
}

// SustainOff starts the release stage from the current amplitude. It is a
// no-op once the envelope is already releasing or idle.
func (e *ADSR) SustainOff() {
	switch e.stage {
	case Release, Idle:
		return
	}
	e.releaseLevel = e.Output()
	e.enter(Release)
}

func (e *ADSR) enter(s Stage) {
	e.stage = s
	e.elapsed = 0
}
