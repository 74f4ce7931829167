package resample

import (
	"math"
	"testing"

	"github.com/cbegin/wavesynth-go/internal/wav"
)

func mustBuffer(t *testing.T, samples []float32, channels int) *wav.Buffer {
	t.Helper()
	buf, err := wav.NewBuffer(samples, 44100, channels)
	if err != nil {
		t.Fatalf("new buffer: %v", err)
	}
	return buf
}

func lerp(a, b, f float64) float64 { return a*(1-f) + b*f }

func TestProduceSampleLinearInterpolation(t *testing.T) {
	samples := []float32{0, 1, 0.5, -0.5, 0.25}
	r, err := New(mustBuffer(t, samples, 1), 0, 1, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, tc := range []struct {
		pos  float64
		want float64
	}{
		{0.0, 0},
		{0.5, 0.5},
		{0.25, 0.25},
		{1.0, 1},
		{1.5, 0.75},
		{2.25, lerp(0.5, -0.5, 0.25)},
		{3.75, lerp(-0.5, 0.25, 0.75)},
	} {
		r.Seek(tc.pos)
		got := float64(r.ProduceSample())
		if math.Abs(got-tc.want) > 1e-7 {
			t.Errorf("pos %v: got %v, want %v", tc.pos, got, tc.want)
		}
	}
}

func TestProduceSampleReadsSelectedChannel(t *testing.T) {
	// Interleaved L/R: left ramps up, right is constant.
	samples := []float32{0, 0.75, 1, 0.75, 0.5, 0.75}
	r, err := New(mustBuffer(t, samples, 2), 1, 1, nil)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	r.Seek(0.5)
	if got := r.ProduceSample(); got != 0.75 {
		t.Fatalf("right channel = %v, want 0.75", got)
	}
}

func TestSilencePastEndWithoutLoop(t *testing.T) {
	r, _ := New(mustBuffer(t, []float32{0.5, 0.5, 0.5}, 1), 0, 1, nil)
	var got []float32
	for i := 0; i < 6; i++ {
		got = append(got, r.ProduceSample())
		r.Advance()
	}
	want := []float32{0.5, 0.5, 0, 0, 0, 0}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("sample %d = %v, want %v (all: %v)", i, got[i], want[i], got)
		}
	}
	if !r.Finished() {
		t.Fatal("expected Finished after running off the end")
	}
}

func TestAdvanceUsesBaseTimesMultiplier(t *testing.T) {
	r, _ := New(mustBuffer(t, make([]float32, 64), 1), 0, 0.5, nil)
	r.Advance()
	if r.Position() != 0.5 {
		t.Fatalf("pos = %v, want 0.5", r.Position())
	}
	r.SetPitchOffsetCents(1200)
	if r.Rate() != 1 {
		t.Fatalf("rate after +1200c = %v, want 1", r.Rate())
	}
	r.Advance()
	if r.Position() != 1.5 {
		t.Fatalf("pos = %v, want 1.5", r.Position())
	}
	r.SetPitchOffsetCents(-1200)
	if r.Rate() != 0.25 {
		t.Fatalf("rate after -1200c = %v, want 0.25", r.Rate())
	}
	r.SetPitchOffsetCents(100)
	if want := 0.5 * math.Pow(2, 1.0/12); math.Abs(r.Rate()-want) > 1e-12 {
		t.Fatalf("rate after +100c = %v, want %v", r.Rate(), want)
	}
	r.Reset()
	if r.Position() != 0 {
		t.Fatalf("reset pos = %v", r.Position())
	}
}

func TestLoopWrapPreservesFraction(t *testing.T) {
	r, _ := New(mustBuffer(t, make([]float32, 16), 1), 0, 1, &Loop{Begin: 4, End: 8})
	r.Seek(7.75)
	r.Advance()
	if got := r.Position(); math.Abs(got-4.75) > 1e-12 {
		t.Fatalf("wrapped pos = %v, want 4.75", got)
	}
}

func TestLoopPeriodicity(t *testing.T) {
	const begin, end = 3, 11
	const rate = 0.7
	l := float64(end - begin)
	r, _ := New(mustBuffer(t, make([]float32, 20), 1), 0, rate, &Loop{Begin: begin, End: end})

	wraps := 0
	prev := r.Position()
	for k := 1; k <= 2000; k++ {
		r.Advance()
		pos := r.Position()
		if pos < prev {
			wraps++
		}
		prev = pos
		unwrapped := float64(k) * rate
		want := unwrapped
		if unwrapped >= end {
			want = begin + math.Mod(unwrapped-begin, l)
		}
		// Positions landing on the loop boundary may sit on either side of it.
		if math.Abs(math.Remainder(pos-want, l)) > 1e-6 {
			t.Fatalf("step %d: pos = %v, want %v", k, pos, want)
		}
		if unwrapped >= begin && (pos < begin || pos >= end) {
			t.Fatalf("step %d: pos %v escaped loop [%d,%d)", k, pos, begin, end)
		}
	}
	if wraps < 100 {
		t.Fatalf("expected many wraps, got %d", wraps)
	}
}

func TestLoopInterpolatesAcrossBoundary(t *testing.T) {
	samples := []float32{0, 0, 0.5, 0, 0, 1, 0}
	r, _ := New(mustBuffer(t, samples, 1), 0, 1, &Loop{Begin: 2, End: 6})
	r.Seek(5.5)
	// Frame 5 blends into loop begin (frame 2), not frame 6.
	if got := r.ProduceSample(); got != 0.75 {
		t.Fatalf("boundary sample = %v, want 0.75", got)
	}
	if r.Finished() {
		t.Fatal("looping resampler never finishes")
	}
}

func TestNewValidates(t *testing.T) {
	buf := mustBuffer(t, make([]float32, 10), 2)
	for _, tc := range []struct {
		name    string
		channel int
		speed   float64
		loop    *Loop
	}{
		{"channel too high", 2, 1, nil},
		{"negative channel", -1, 1, nil},
		{"zero speed", 0, 0, nil},
		{"nan speed", 0, math.NaN(), nil},
		{"empty loop", 0, 1, &Loop{Begin: 2, End: 2}},
		{"loop past end", 0, 1, &Loop{Begin: 0, End: 6}},
		{"negative loop begin", 0, 1, &Loop{Begin: -1, End: 3}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := New(buf, tc.channel, tc.speed, tc.loop); err == nil {
				t.Fatal("expected error")
			}
		})
	}
	if _, err := New(nil, 0, 1, nil); err == nil {
		t.Fatal("expected error for nil buffer")
	}
}
