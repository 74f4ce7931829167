// Package wavetable is the polyphonic synth core: a fixed pool of voices,
// each replaying a shared sample buffer through its own resampler and ADSR
// envelope, mixed down to one mono sample per step.
package wavetable

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/cbegin/wavesynth-go/internal/envelope"
	"github.com/cbegin/wavesynth-go/internal/lfo"
	"github.com/cbegin/wavesynth-go/internal/midi"
	"github.com/cbegin/wavesynth-go/internal/resample"
	"github.com/cbegin/wavesynth-go/internal/wav"
)

const (
	maxVoices = 128
	maxLevel  = 127
)

// Params controls the engine.
type Params struct {
	Voices     int
	Channel    int            // buffer channel the voices read
	Loop       *resample.Loop // nil plays the sample once
	AttackSec  float64
	DecaySec   float64
	SustainLvl float64
	ReleaseSec float64

	RootNote  int     // note that plays the sample at BaseSpeed
	BaseSpeed float64 // playback rate of RootNote

	PitchBendCents    float64 // full-scale pitch wheel deflection
	VibratoRateHz     float64
	VibratoDepthCents float64 // depth at full modulation wheel
	VelocityAmp       float64 // 0 ignores velocity, 1 scales gain by velocity/127
}

// DefaultParams returns sensible defaults for a looped instrument sample.
func DefaultParams() Params {
	return Params{
		Voices:            16,
		AttackSec:         0.005,
		DecaySec:          0.12,
		SustainLvl:        0.75,
		ReleaseSec:        0.2,
		RootNote:          69,
		BaseSpeed:         1,
		PitchBendCents:    200,
		VibratoRateHz:     5,
		VibratoDepthCents: 50,
	}
}

type voice struct {
	active  bool
	channel int
	note    int
	gain    float64
	order   uint64
	res     *resample.Resampler
	env     envelope.ADSR
}

// VoiceState is a snapshot of one voice slot.
type VoiceState struct {
	Slot    int
	Active  bool
	Channel int
	Note    int
	Order   uint64
	Stage   envelope.Stage
	Rate    float64
}

// Engine is the synth core. Every exported method takes the engine lock
// once for its whole duration, so an event handler and the render callback
// never observe a half-updated voice table.
type Engine struct {
	mu         sync.Mutex
	sampleRate int
	params     Params
	voices     []voice
	order      uint64
	volume     float64
	bendCents  float64
	vibDepth   float64
	vibrato    *lfo.LFO
	closed     bool
}

// New creates an engine playing buf at the buffer's own sample rate.
func New(buf *wav.Buffer, params Params) (*Engine, error) {
	if buf == nil {
		return nil, errors.New("wavetable: nil sample buffer")
	}
	if params.Voices <= 0 || params.Voices > maxVoices {
		return nil, fmt.Errorf("wavetable: voice count %d outside [1, %d]", params.Voices, maxVoices)
	}
	if buf.SampleRate() <= 0 {
		return nil, fmt.Errorf("wavetable: sample rate %d", buf.SampleRate())
	}
	e := &Engine{
		sampleRate: buf.SampleRate(),
		params:     params,
		voices:     make([]voice, params.Voices),
		volume:     1,
		vibrato:    lfo.New(params.VibratoRateHz, buf.SampleRate(), lfo.WaveSine),
	}
	for i := range e.voices {
		res, err := resample.New(buf, params.Channel, params.BaseSpeed, params.Loop)
		if err != nil {
			return nil, fmt.Errorf("wavetable: %w", err)
		}
		e.voices[i].res = res
		e.voices[i].env.Configure(params.AttackSec, params.DecaySec, params.SustainLvl, params.ReleaseSec, e.sampleRate)
	}
	return e, nil
}

// NoteOn starts a note. A note already held on the same channel is
// retriggered in place; otherwise a free slot is used, and with every slot
// busy the oldest activation is stolen. Velocity 0 is a note-off.
func (e *Engine) NoteOn(channel, note, velocity int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	if velocity <= 0 {
		e.noteOff(channel, note)
		return
	}
	e.reclaim()
	slot := e.slotFor(channel, note)
	e.order++
	v := &e.voices[slot]
	v.active = true
	v.channel = channel
	v.note = note
	v.order = e.order
	v.gain = e.velocityGain(velocity)
	v.res.Retune(e.noteSpeed(note))
	v.res.Reset()
	v.env.Reset()
}

// NoteOff releases the voice playing (channel, note). Unknown or already
// released notes are ignored.
func (e *Engine) NoteOff(channel, note int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.noteOff(channel, note)
}

func (e *Engine) noteOff(channel, note int) {
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.channel == channel && v.note == note {
			v.env.SustainOff()
			return
		}
	}
}

// PitchWheel sets the global bend from a wheel position in [-1, 1].
func (e *Engine) PitchWheel(channel int, value float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bendCents = clamp(value, -1, 1) * e.params.PitchBendCents
}

// Volume sets the master volume from a 0-127 controller level.
func (e *Engine) Volume(channel, level int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.volume = clamp(float64(level), 0, maxLevel) / maxLevel
}

// Modulation sets the vibrato depth from a 0-127 wheel position.
func (e *Engine) Modulation(channel, value int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vibDepth = clamp(float64(value), 0, maxLevel) / maxLevel * e.params.VibratoDepthCents
}

// ControlChange routes volume and modulation controllers; other
// controllers are accepted and ignored.
func (e *Engine) ControlChange(channel, controller, value int) {
	switch controller {
	case midi.ControllerVolume:
		e.Volume(channel, value)
	case midi.ControllerModulation:
		e.Modulation(channel, value)
	}
}

// ProgramChange is accepted and ignored: the engine has a single sample.
func (e *Engine) ProgramChange(channel, program int) {}

// HandleEvent dispatches a decoded MIDI event.
func (e *Engine) HandleEvent(ev midi.Event) {
	switch ev.Kind {
	case midi.NoteOn:
		e.NoteOn(ev.Channel, ev.Note, ev.Velocity)
	case midi.NoteOff:
		e.NoteOff(ev.Channel, ev.Note)
	case midi.PitchWheel:
		e.PitchWheel(ev.Channel, ev.Bend)
	case midi.Volume:
		e.Volume(ev.Channel, ev.Value)
	case midi.Modulation:
		e.Modulation(ev.Channel, ev.Value)
	case midi.ControlChange:
		e.ControlChange(ev.Channel, ev.Controller, ev.Value)
	case midi.ProgramChange:
		e.ProgramChange(ev.Channel, ev.Value)
	}
}

// Next advances every active voice and the vibrato oscillator by one sample.
func (e *Engine) Next() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.next()
}

// Output mixes the current sample of every active voice.
func (e *Engine) Output() float32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0
	}
	return float32(e.output())
}

// Render fills dst with consecutive mixed samples, taking the lock once for
// the whole block.
func (e *Engine) Render(dst []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		clear(dst)
		return
	}
	for i := range dst {
		dst[i] = float32(e.output())
		e.next()
	}
}

func (e *Engine) next() {
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		v.res.Advance()
		v.env.Next()
	}
	e.vibrato.Advance()
}

func (e *Engine) output() float64 {
	cents := e.bendCents + e.vibDepth*e.vibrato.Value()
	var sum float64
	for i := range e.voices {
		v := &e.voices[i]
		if !v.active {
			continue
		}
		v.res.SetPitchOffsetCents(cents)
		sum += v.gain * v.env.Output() * float64(v.res.ProduceSample())
	}
	return e.volume * sum
}

// ActiveVoiceCount returns the number of voices still sounding.
func (e *Engine) ActiveVoiceCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for i := range e.voices {
		if e.voices[i].active && !e.voices[i].env.Done() {
			n++
		}
	}
	return n
}

// Voices returns a snapshot of every slot.
func (e *Engine) Voices() []VoiceState {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]VoiceState, len(e.voices))
	for i := range e.voices {
		v := &e.voices[i]
		out[i] = VoiceState{
			Slot:    i,
			Active:  v.active,
			Channel: v.channel,
			Note:    v.note,
			Order:   v.order,
			Stage:   v.env.Stage(),
			Rate:    v.res.Rate(),
		}
	}
	return out
}

// Close silences the engine. Later events are ignored and renders produce
// silence.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	for i := range e.voices {
		e.voices[i].active = false
	}
}

// reclaim frees slots whose envelopes have finished.
func (e *Engine) reclaim() {
	for i := range e.voices {
		if e.voices[i].active && e.voices[i].env.Done() {
			e.voices[i].active = false
		}
	}
}

func (e *Engine) slotFor(channel, note int) int {
	free := -1
	for i := range e.voices {
		v := &e.voices[i]
		if v.active && v.channel == channel && v.note == note {
			return i
		}
		if !v.active && free < 0 {
			free = i
		}
	}
	if free >= 0 {
		return free
	}
	return e.oldest()
}

func (e *Engine) oldest() int {
	slot := 0
	for i := 1; i < len(e.voices); i++ {
		if e.voices[i].order < e.voices[slot].order {
			slot = i
		}
	}
	return slot
}

func (e *Engine) noteSpeed(note int) float64 {
	return e.params.BaseSpeed * math.Exp2(float64(note-e.params.RootNote)/12)
}

func (e *Engine) velocityGain(velocity int) float64 {
	s := clamp(e.params.VelocityAmp, 0, 1)
	return 1 - s + s*clamp(float64(velocity), 0, maxLevel)/maxLevel
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
