package wav

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vazrupe/endibuf"
)

var (
	ErrMalformed   = errors.New("malformed container")
	ErrChunkOrder  = errors.New("out-of-order chunks")
	ErrUnsupported = errors.New("unsupported format")
)

// FormatError reports a container that cannot be decoded. Err is one of
// ErrMalformed, ErrChunkOrder or ErrUnsupported.
type FormatError struct {
	Reason string
	Err    error
}

func (e *FormatError) Error() string {
	if e.Reason == "" {
		return "wav: " + e.Err.Error()
	}
	return "wav: " + e.Err.Error() + ": " + e.Reason
}

func (e *FormatError) Unwrap() error { return e.Err }

func formatErr(kind error, format string, args ...any) error {
	return &FormatError{Reason: fmt.Sprintf(format, args...), Err: kind}
}

const (
	tagRIFF = "RIFF"
	tagWAVE = "WAVE"
	tagFmt  = "fmt "
	tagData = "data"

	fmtPCM        = 1
	fmtExtensible = 0xFFFE

	fmtChunkMinSize = 16
)

type chunkHeader struct {
	Tag  string
	Size uint32
}

// Format is the "fmt " chunk payload.
type Format struct {
	AudioFormat    uint16
	ChannelCount   uint16
	SamplingRate   uint32
	BytesPerSecond uint32
	BytesPerFrame  uint16
	BitsPerSample  uint16
}

// DecodeFile opens and decodes the WAV file at path.
func DecodeFile(path string) (*Buffer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wav: open: %w", err)
	}
	defer f.Close()
	buf, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return buf, nil
}

// Decode parses a RIFF/WAVE stream. Chunks are walked in order: "fmt " must
// precede "data", other chunks are skipped by their declared size, and the
// end of the stream ends the walk. Streams that cannot seek are read fully
// into memory first.
//
// 8-bit samples are read as signed and divided by 2^7. 16-bit samples are
// divided by 65535 (the unsigned 16-bit max), so full-scale 16-bit input
// decodes to roughly [-0.5, 0.5].
func Decode(r io.Reader) (*Buffer, error) {
	rs, ok := r.(io.ReadSeeker)
	if !ok {
		data, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("wav: read: %w", err)
		}
		rs = bytes.NewReader(data)
	}
	start, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return nil, fmt.Errorf("wav: seek: %w", err)
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return nil, fmt.Errorf("wav: seek: %w", err)
	}
	if _, err := rs.Seek(start, io.SeekStart); err != nil {
		return nil, fmt.Errorf("wav: seek: %w", err)
	}
	d := &decoder{r: endibuf.NewReader(rs), remaining: end - start}
	d.r.Endian = binary.LittleEndian
	return d.decode()
}

type decoder struct {
	r         *endibuf.Reader
	remaining int64
	format    *Format
	samples   []float32
}

// tag reads a four-byte chunk identifier.
func (d *decoder) tag() (string, error) {
	b := make([]byte, 4)
	if err := d.r.ReadData(b); err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *decoder) chunkHeader() (chunkHeader, error) {
	var ch chunkHeader
	tag, err := d.tag()
	if err != nil {
		return ch, err
	}
	ch.Tag = tag
	if ch.Size, err = d.r.ReadUint32(); err != nil {
		return ch, err
	}
	return ch, nil
}

func (d *decoder) skip(tag string, n int64) error {
	if n <= 0 {
		return nil
	}
	if _, err := d.r.Seek(n, io.SeekCurrent); err != nil {
		return fmt.Errorf("wav: skip %q chunk: %w", tag, err)
	}
	return nil
}

func (d *decoder) decode() (*Buffer, error) {
	if d.remaining < 12 {
		return nil, formatErr(ErrMalformed, "stream too short for RIFF header (%d bytes)", d.remaining)
	}
	magic, err := d.tag()
	if err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	if _, err := d.r.ReadUint32(); err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	format, err := d.tag()
	if err != nil {
		return nil, fmt.Errorf("wav: read header: %w", err)
	}
	d.remaining -= 12
	if magic != tagRIFF {
		return nil, formatErr(ErrMalformed, "container magic %q", magic)
	}
	if format != tagWAVE {
		return nil, formatErr(ErrMalformed, "format magic %q", format)
	}

	for d.remaining >= 8 {
		ch, err := d.chunkHeader()
		if err != nil {
			return nil, fmt.Errorf("wav: read chunk header: %w", err)
		}
		d.remaining -= 8
		size := int64(ch.Size)
		if size > d.remaining {
			// Streamed files often declare a data size longer than what was
			// written; take what is there.
			size = d.remaining
		}
		switch ch.Tag {
		case tagFmt:
			err = d.readFormat(size)
		case tagData:
			err = d.readData(size)
		default:
			err = d.skip(ch.Tag, size)
		}
		if err != nil {
			return nil, err
		}
		d.remaining -= size
		// Odd-sized chunks carry one pad byte, which writers may leave off the
		// final chunk.
		if ch.Size%2 == 1 && d.remaining > 0 {
			if err := d.skip(ch.Tag, 1); err != nil {
				return nil, err
			}
			d.remaining--
		}
	}

	if d.format == nil {
		return nil, formatErr(ErrMalformed, "no %q chunk", tagFmt)
	}
	return newBuffer(d.samples, int(d.format.SamplingRate), int(d.format.ChannelCount)), nil
}

func (d *decoder) readFormat(size int64) error {
	if size < fmtChunkMinSize {
		return formatErr(ErrMalformed, "%q chunk is %d bytes, need %d", tagFmt, size, fmtChunkMinSize)
	}
	var f Format
	fields := []any{
		&f.AudioFormat, &f.ChannelCount,
		&f.SamplingRate, &f.BytesPerSecond,
		&f.BytesPerFrame, &f.BitsPerSample,
	}
	for _, v := range fields {
		if err := d.r.ReadData(v); err != nil {
			return fmt.Errorf("wav: read %q chunk: %w", tagFmt, err)
		}
	}
	if err := d.skip(tagFmt, size-fmtChunkMinSize); err != nil {
		return err
	}
	if f.AudioFormat != fmtPCM && f.AudioFormat != fmtExtensible {
		return formatErr(ErrUnsupported, "audio format code %d", f.AudioFormat)
	}
	if f.BitsPerSample != 8 && f.BitsPerSample != 16 {
		return formatErr(ErrUnsupported, "%d bits per sample", f.BitsPerSample)
	}
	if f.ChannelCount == 0 {
		return formatErr(ErrMalformed, "zero channels")
	}
	if f.SamplingRate == 0 {
		return formatErr(ErrMalformed, "zero sampling rate")
	}
	d.format = &f
	return nil
}

func (d *decoder) readData(size int64) error {
	if d.format == nil {
		return formatErr(ErrChunkOrder, "%q chunk before %q chunk", tagData, tagFmt)
	}
	payload := make([]byte, size)
	if err := d.r.ReadData(payload); err != nil {
		return fmt.Errorf("wav: read %q chunk: %w", tagData, err)
	}
	d.samples = appendPCM(d.samples, payload, d.format.BitsPerSample)
	return nil
}

// appendPCM converts raw little-endian PCM to floats. A trailing partial
// sample is ignored.
func appendPCM(dst []float32, p []byte, bits uint16) []float32 {
	switch bits {
	case 8:
		for _, b := range p {
			dst = append(dst, float32(int8(b))/(1<<7))
		}
	case 16:
		for i := 0; i+1 < len(p); i += 2 {
			v := int16(uint16(p[i]) | uint16(p[i+1])<<8)
			dst = append(dst, float32(v)/0xFFFF)
		}
	}
	return dst
}
