package wav

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/go-audio/audio"
	gowav "github.com/go-audio/wav"
)

// Write encodes b as canonical PCM at bitDepth 8 or 16. 8-bit samples are
// stored signed, matching what Decode expects; 16-bit samples are scaled by
// 32767.
func Write(w io.WriteSeeker, b *Buffer, bitDepth int) error {
	var scale, lo, hi float64
	switch bitDepth {
	case 8:
		scale, lo, hi = 1<<7, math.MinInt8, math.MaxInt8
	case 16:
		scale, lo, hi = math.MaxInt16, math.MinInt16, math.MaxInt16
	default:
		return formatErr(ErrUnsupported, "%d bits per sample", bitDepth)
	}

	ib := &audio.IntBuffer{
		Format: &audio.Format{
			NumChannels: b.channels,
			SampleRate:  b.sampleRate,
		},
		Data:           make([]int, len(b.data)),
		SourceBitDepth: bitDepth,
	}
	for i, s := range b.data {
		v := math.Round(float64(s) * scale)
		ib.Data[i] = int(math.Max(lo, math.Min(hi, v)))
	}

	enc := gowav.NewEncoder(w, b.sampleRate, bitDepth, b.channels, fmtPCM)
	if err := enc.Write(ib); err != nil {
		return fmt.Errorf("wav: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("wav: finalize: %w", err)
	}
	return nil
}

// Encode returns the WAV file bytes for b.
func Encode(b *Buffer, bitDepth int) ([]byte, error) {
	var sb seekBuffer
	if err := Write(&sb, b, bitDepth); err != nil {
		return nil, err
	}
	return sb.buf, nil
}

// seekBuffer is an in-memory io.WriteSeeker; the encoder seeks back to
// patch the RIFF and data sizes once the samples are written.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	n := copy(s.buf[s.pos:], p)
	s.pos += n
	return n, nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = int64(s.pos)
	case io.SeekEnd:
		base = int64(len(s.buf))
	default:
		return 0, errors.New("wav: invalid whence")
	}
	next := base + offset
	if next < 0 {
		return 0, errors.New("wav: negative position")
	}
	s.pos = int(next)
	return next, nil
}

// WriteFile creates path and writes b into it.
func WriteFile(path string, b *Buffer, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("wav: create: %w", err)
	}
	if err := Write(f, b, bitDepth); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}
