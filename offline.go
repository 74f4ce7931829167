package wavesynth

import (
	"errors"
	"fmt"
	"slices"
	"time"

	intmidi "github.com/cbegin/wavesynth-go/internal/midi"
	intwav "github.com/cbegin/wavesynth-go/internal/wav"
)

// TimedEvent is a MIDI event scheduled at an offset from the start of an
// offline render.
type TimedEvent struct {
	At    time.Duration
	Event intmidi.Event
}

// RenderEvents plays events through a fresh engine without an audio device
// and returns the mono mix. Each event takes effect at the first sample at
// or after its offset; events sharing an offset are applied in slice order.
// Device, logging and polling options are ignored.
func RenderEvents(buf *intwav.Buffer, events []TimedEvent, seconds float64, opts ...PlayerOption) ([]float32, error) {
	if buf == nil {
		return nil, errors.New("wavesynth: nil sample buffer")
	}
	if seconds < 0 {
		return nil, fmt.Errorf("wavesynth: negative render length %v", seconds)
	}
	cfg := defaultPlayerConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	m, buf, err := newMaster(buf, cfg)
	if err != nil {
		return nil, err
	}
	defer m.engine.Close()

	rate := int64(buf.SampleRate())
	sorted := slices.Clone(events)
	slices.SortStableFunc(sorted, func(a, b TimedEvent) int {
		switch {
		case a.At < b.At:
			return -1
		case a.At > b.At:
			return 1
		}
		return 0
	})

	out := make([]float32, int(float64(rate)*seconds))
	pos := 0
	for _, ev := range sorted {
		at := int(min(max(ceilDiv(int64(ev.At)*rate, int64(time.Second)), 0), int64(len(out))))
		if at > pos {
			m.Process(out[pos:at])
			pos = at
		}
		m.engine.HandleEvent(ev.Event)
	}
	if pos < len(out) {
		m.Process(out[pos:])
	}
	return out, nil
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if a%b != 0 && (a < 0) == (b < 0) {
		q++
	}
	return q
}

// Notes builds a TimedEvent list holding each note for length, starting one
// after another every step.
func Notes(channel, velocity int, step, length time.Duration, notes ...int) []TimedEvent {
	out := make([]TimedEvent, 0, 2*len(notes))
	for i, n := range notes {
		start := time.Duration(i) * step
		out = append(out,
			TimedEvent{At: start, Event: intmidi.Event{Kind: intmidi.NoteOn, Channel: channel, Note: n, Velocity: velocity}},
			TimedEvent{At: start + length, Event: intmidi.Event{Kind: intmidi.NoteOff, Channel: channel, Note: n}},
		)
	}
	return out
}

// EncodeWAV returns mono PCM WAV bytes for samples at bitDepth 8 or 16.
func EncodeWAV(samples []float32, sampleRate, bitDepth int) ([]byte, error) {
	b, err := intwav.NewBuffer(samples, sampleRate, 1)
	if err != nil {
		return nil, err
	}
	return intwav.Encode(b, bitDepth)
}

// WriteWAV writes mono samples to a PCM WAV file.
func WriteWAV(path string, samples []float32, sampleRate, bitDepth int) error {
	b, err := intwav.NewBuffer(samples, sampleRate, 1)
	if err != nil {
		return err
	}
	return intwav.WriteFile(path, b, bitDepth)
}
