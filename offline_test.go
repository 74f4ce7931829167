package wavesynth

import (
	"crypto/sha256"
	"encoding/hex"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	intmidi "github.com/cbegin/wavesynth-go/internal/midi"
	intwav "github.com/cbegin/wavesynth-go/internal/wav"
)

func sineBuffer(t *testing.T) *intwav.Buffer {
	t.Helper()
	const rate = 8000
	samples := make([]float32, rate/2)
	for i := range samples {
		samples[i] = float32(0.8 * math.Sin(2*math.Pi*440*float64(i)/rate))
	}
	buf, err := intwav.NewBuffer(samples, rate, 1)
	if err != nil {
		t.Fatalf("NewBuffer: %v", err)
	}
	return buf
}

func phrase() []TimedEvent {
	events := Notes(0, 100, 150*time.Millisecond, 120*time.Millisecond, 60, 62, 64, 65, 67, 69, 71, 72)
	events = append(events,
		TimedEvent{At: 300 * time.Millisecond, Event: intmidi.Event{Kind: intmidi.Modulation, Controller: 1, Value: 100}},
		TimedEvent{At: 600 * time.Millisecond, Event: intmidi.Event{Kind: intmidi.PitchWheel, Value: 10000, Bend: intmidi.BendValue(10000)}},
	)
	return events
}

func phraseOpts() []PlayerOption {
	return []PlayerOption{
		WithLoop(2000, 4000),
		WithEnvelope(0.01, 0.05, 0.7, 0.1),
		WithVoices(4),
		WithVelocitySensitivity(0.5),
		WithEffects("delay 90,0.3,0.25", "comp -12,3,5,80,0"),
	}
}

func TestGoldenWAVSnapshot(t *testing.T) {
	// Two voices on the root note of a constant loop: every sample is exactly
	// 0, 0.5 or 1, so the encoded file is fixed.
	on := func(ch int) intmidi.Event { return intmidi.Event{Kind: intmidi.NoteOn, Channel: ch, Note: 69, Velocity: 100} }
	off := func(ch int) intmidi.Event { return intmidi.Event{Kind: intmidi.NoteOff, Channel: ch, Note: 69} }
	events := []TimedEvent{
		{At: 0, Event: on(0)},
		{At: 100 * time.Millisecond, Event: on(1)},
		{At: 200 * time.Millisecond, Event: off(0)},
		{At: 300 * time.Millisecond, Event: off(1)},
	}
	buf := testBuffer(t)
	samples, err := RenderEvents(buf, events, 0.5, WithLoop(0, testRate), WithEnvelope(0, 0, 1, 0))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	wav, err := EncodeWAV(samples, buf.SampleRate(), 16)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	sum := sha256.Sum256(wav)
	got := hex.EncodeToString(sum[:])
	raw, err := os.ReadFile(filepath.Join("testdata", "golden_two_voices.sha256"))
	if err != nil {
		t.Fatalf("read golden hash: %v", err)
	}
	want := strings.TrimSpace(string(raw))
	if got != want {
		t.Fatalf("golden mismatch\nwant: %s\ngot:  %s", want, got)
	}
}

func TestRenderReproducible(t *testing.T) {
	buf := sineBuffer(t)
	digest := func() string {
		samples, err := RenderEvents(buf, phrase(), 1.5, phraseOpts()...)
		if err != nil {
			t.Fatalf("render: %v", err)
		}
		wav, err := EncodeWAV(samples, buf.SampleRate(), 16)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		sum := sha256.Sum256(wav)
		return hex.EncodeToString(sum[:])
	}
	want := digest()
	for i := 0; i < 3; i++ {
		if got := digest(); got != want {
			t.Fatalf("render %d not reproducible\nwant: %s\ngot:  %s", i, want, got)
		}
	}
}

func TestRenderEventsTiming(t *testing.T) {
	buf := testBuffer(t)
	events := []TimedEvent{
		{At: 200 * time.Millisecond, Event: intmidi.Event{Kind: intmidi.NoteOff, Note: 60}},
		{At: 100 * time.Millisecond, Event: intmidi.Event{Kind: intmidi.NoteOn, Note: 60, Velocity: 100}},
	}
	out, err := RenderEvents(buf, events, 0.5, WithLoop(0, testRate), WithEnvelope(0, 0, 1, 0.05))
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(out) != 500 {
		t.Fatalf("len = %d, want 500", len(out))
	}
	for i := 0; i < 100; i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d = %v before note-on", i, out[i])
		}
	}
	if out[100] != 0.5 || out[199] != 0.5 {
		t.Fatalf("held note = %v, %v, want 0.5", out[100], out[199])
	}
	if out[210] >= 0.5 || out[210] <= 0 {
		t.Fatalf("release sample = %v", out[210])
	}
	for i := 250; i < len(out); i++ {
		if out[i] != 0 {
			t.Fatalf("sample %d = %v after release ended", i, out[i])
		}
	}
}

func TestRenderEventsPastEndIgnored(t *testing.T) {
	buf := testBuffer(t)
	events := []TimedEvent{{At: 10 * time.Second, Event: intmidi.Event{Kind: intmidi.NoteOn, Note: 60, Velocity: 100}}}
	out, err := RenderEvents(buf, events, 0.1)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	for i, v := range out {
		if v != 0 {
			t.Fatalf("sample %d = %v", i, v)
		}
	}
	if _, err := RenderEvents(buf, nil, -1); err == nil {
		t.Fatal("negative length should fail")
	}
}

func TestWriteWAVLoadsBack(t *testing.T) {
	buf := sineBuffer(t)
	samples, err := RenderEvents(buf, phrase(), 0.5, phraseOpts()...)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	path := filepath.Join(t.TempDir(), "phrase.wav")
	if err := WriteWAV(path, samples, buf.SampleRate(), 16); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := LoadSample(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Frames() != len(samples) || got.SampleRate() != buf.SampleRate() || got.Channels() != 1 {
		t.Fatalf("frames=%d rate=%d channels=%d", got.Frames(), got.SampleRate(), got.Channels())
	}
}

func TestNormalizeOption(t *testing.T) {
	pl, err := New(testBuffer(t), WithNormalize(0))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	// A constant buffer is all DC offset, so normalizing leaves silence.
	for i := 0; i < pl.Sample().Frames(); i++ {
		if v, _ := pl.Sample().Sample(i, 0); v != 0 {
			t.Fatalf("frame %d = %v, want 0", i, v)
		}
	}
}
