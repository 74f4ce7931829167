package effects

import (
	"math"
	"testing"
)

func TestDelayEchoesAfterDelayTime(t *testing.T) {
	d := NewDelay(1000, 10, 0.5, 1)
	if out := d.Process(1); out != 0 {
		t.Fatalf("fully wet output before the echo = %v", out)
	}
	for i := 1; i < 10; i++ {
		if out := d.Process(0); out != 0 {
			t.Fatalf("sample %d = %v before delay elapsed", i, out)
		}
	}
	if out := d.Process(0); out != 1 {
		t.Fatalf("first echo = %v, want 1", out)
	}
	for i := 1; i < 10; i++ {
		d.Process(0)
	}
	if out := d.Process(0); out != 0.5 {
		t.Fatalf("second echo = %v, want feedback 0.5", out)
	}
}

func TestDelayResetClearsTail(t *testing.T) {
	d := NewDelay(1000, 5, 0.9, 1)
	d.Process(1)
	d.Reset()
	for i := 0; i < 20; i++ {
		if out := d.Process(0); out != 0 {
			t.Fatalf("sample %d = %v after reset", i, out)
		}
	}
}

func TestDistortionBounded(t *testing.T) {
	d := NewDistortion(44100, 10, 0.5, 0)
	out := d.Process(0.5)
	if math.Abs(float64(out)) > 0.5 {
		t.Errorf("distortion output should be bounded by post gain, got %v", out)
	}
	if math.Abs(float64(out)) < 0.01 {
		t.Error("expected non-zero distortion output")
	}
}

func TestHardClip(t *testing.T) {
	d := NewDistortion(1000, 2, 0.8, 0).WithCurve(CurveHard)
	tests := []struct {
		in, want float32
	}{
		{0.25, 0.4},
		{1, 0.8},
		{-3, -0.8},
	}
	for _, tt := range tests {
		if got := d.Process(tt.in); got != tt.want {
			t.Errorf("Process(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestCompressorReducesLoud(t *testing.T) {
	c := NewCompressor(44100, -10, 4, 1, 50, 0)
	var out float32
	for i := 0; i < 1000; i++ {
		out = c.Process(1.0)
	}
	if out >= 1.0 {
		t.Errorf("compressor should reduce loud signals, got %f", out)
	}
	c.Reset()
	if quiet := c.Process(0.01); quiet != 0.01 {
		t.Errorf("signal under threshold changed: %v", quiet)
	}
}

func TestChainAppliesEffectsInOrder(t *testing.T) {
	c := NewChain(
		NewDistortion(1000, 2, 1, 0),
		NewDelay(1000, 1, 0, 0.5),
	)
	buf := []float32{0.5, 0}
	c.ProcessBlock(buf)
	shaped := float32(math.Tanh(1))
	if buf[0] != shaped*0.5 {
		t.Errorf("first sample = %v, want %v", buf[0], shaped*0.5)
	}
	if buf[1] != shaped*0.5 {
		t.Errorf("echo sample = %v, want %v", buf[1], shaped*0.5)
	}
	if c.Len() != 2 {
		t.Errorf("Len = %d", c.Len())
	}
}

func TestEmptyChainIsIdentity(t *testing.T) {
	buf := []float32{0.25, -1, 3}
	NewChain().ProcessBlock(buf)
	if buf[0] != 0.25 || buf[1] != -1 || buf[2] != 3 {
		t.Fatalf("empty chain changed input: %v", buf)
	}
}
