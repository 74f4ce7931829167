package lfo

import (
	"math"
	"testing"
)

func TestSineShape(t *testing.T) {
	l := New(1, 100, WaveSine) // 100 samples per cycle
	samples := make([]float64, 100)
	for i := range samples {
		samples[i] = l.Value()
		l.Advance()
	}
	for _, tc := range []struct {
		idx  int
		want float64
	}{
		{0, 0}, {25, 1}, {50, 0}, {75, -1},
	} {
		if math.Abs(samples[tc.idx]-tc.want) > 1e-9 {
			t.Errorf("sine at %d = %f, want %f", tc.idx, samples[tc.idx], tc.want)
		}
	}
}

func TestTriangleSquareSaw(t *testing.T) {
	for _, tc := range []struct {
		name string
		wave Waveform
		at   int
		want float64
	}{
		{"triangle start", WaveTriangle, 0, -1},
		{"triangle peak", WaveTriangle, 50, 1},
		{"square high", WaveSquare, 10, 1},
		{"square low", WaveSquare, 60, -1},
		{"saw start", WaveSaw, 0, 1},
		{"saw mid", WaveSaw, 50, 0},
	} {
		t.Run(tc.name, func(t *testing.T) {
			l := New(1, 100, tc.wave)
			for i := 0; i < tc.at; i++ {
				l.Advance()
			}
			if got := l.Value(); math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %f, want %f", got, tc.want)
			}
		})
	}
}

func TestPhaseStaysBoundedOverLongRuns(t *testing.T) {
	l := New(5.5, 44100, WaveSine)
	for i := 0; i < 10*44100*60; i++ {
		l.Advance()
		if p := l.Phase(); p < 0 || p >= 1 {
			t.Fatalf("phase escaped [0,1) at %d: %v", i, p)
		}
	}
}

func TestZeroRateIsStatic(t *testing.T) {
	l := New(0, 44100, WaveSine)
	if l.Active() {
		t.Fatal("zero-rate LFO should not be active")
	}
	for i := 0; i < 10; i++ {
		l.Advance()
	}
	if l.Value() != 0 {
		t.Fatalf("static sine = %v, want 0", l.Value())
	}
}

func TestUnknownWaveformFallsBackToSine(t *testing.T) {
	l := New(1, 4, Waveform(42))
	l.Advance()
	if got := l.Value(); math.Abs(got-1) > 1e-12 {
		t.Fatalf("got %v, want sine peak 1", got)
	}
}
