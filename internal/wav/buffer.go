// Package wav decodes canonical PCM WAV files into immutable sample buffers
// and writes buffers back out.
package wav

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfRange is returned by Buffer.Sample for an index outside the buffer.
var ErrOutOfRange = errors.New("sample index out of range")

// Buffer is an immutable multichannel sample store. Samples are interleaved
// by frame. A Buffer is never mutated after construction, so any number of
// voices may read it concurrently without locking.
type Buffer struct {
	data       []float32
	frames     int
	sampleRate int
	channels   int
}

// NewBuffer copies interleaved samples into a new Buffer. A trailing partial
// frame is dropped.
func NewBuffer(samples []float32, sampleRate, channels int) (*Buffer, error) {
	if sampleRate <= 0 {
		return nil, errors.New("wav: sample rate must be positive")
	}
	if channels <= 0 {
		return nil, errors.New("wav: channel count must be positive")
	}
	cp := make([]float32, len(samples)/channels*channels)
	copy(cp, samples)
	return newBuffer(cp, sampleRate, channels), nil
}

// newBuffer takes ownership of data.
func newBuffer(data []float32, sampleRate, channels int) *Buffer {
	frames := len(data) / channels
	return &Buffer{
		data:       data[:frames*channels],
		frames:     frames,
		sampleRate: sampleRate,
		channels:   channels,
	}
}

func (b *Buffer) Frames() int     { return b.frames }
func (b *Buffer) SampleRate() int { return b.sampleRate }
func (b *Buffer) Channels() int   { return b.channels }

// Duration returns the playback length at the buffer's own sample rate.
func (b *Buffer) Duration() time.Duration {
	return time.Duration(b.frames) * time.Second / time.Duration(b.sampleRate)
}

// Sample returns the sample at frame for channel.
func (b *Buffer) Sample(frame, channel int) (float32, error) {
	if frame < 0 || frame >= b.frames || channel < 0 || channel >= b.channels {
		return 0, fmt.Errorf("%w: frame %d channel %d (frames=%d channels=%d)",
			ErrOutOfRange, frame, channel, b.frames, b.channels)
	}
	return b.data[frame*b.channels+channel], nil
}

// Interleaved returns a copy of the raw interleaved samples.
func (b *Buffer) Interleaved() []float32 {
	cp := make([]float32, len(b.data))
	copy(cp, b.data)
	return cp
}
