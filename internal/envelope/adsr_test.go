package envelope

import "testing"

func TestADSRShape(t *testing.T) {
	const rate = 44100
	e := New(0.1, 0.2, 0.5, 0.3, rate)

	attackEnd := int(0.1 * rate)
	prev := -1.0
	for n := 0; n < attackEnd; n++ {
		if e.Stage() != Attack {
			t.Fatalf("sample %d: stage %v, want attack", n, e.Stage())
		}
		v := e.Output()
		if v <= prev {
			t.Fatalf("attack not strictly increasing at %d: %v after %v", n, v, prev)
		}
		prev = v
		e.Next()
	}
	if e.Stage() != Decay {
		t.Fatalf("stage at 0.1s = %v, want decay", e.Stage())
	}
	if v := e.Output(); v != 1.0 {
		t.Fatalf("amplitude at 0.1s = %v, want exactly 1", v)
	}

	decayEnd := int(0.2 * rate)
	prev = 2
	for n := 0; n < decayEnd; n++ {
		v := e.Output()
		if v >= prev || v < 0.5 {
			t.Fatalf("decay sample %d = %v (prev %v)", n, v, prev)
		}
		prev = v
		e.Next()
	}
	if e.Stage() != Sustain {
		t.Fatalf("stage at 0.3s = %v, want sustain", e.Stage())
	}

	for n := 0; n < 5*rate; n++ {
		if v := e.Output(); v != 0.5 {
			t.Fatalf("sustain sample %d = %v, want 0.5", n, v)
		}
		e.Next()
	}
	if e.Stage() != Sustain {
		t.Fatalf("sustain left without SustainOff: %v", e.Stage())
	}

	e.SustainOff()
	if e.Stage() != Release {
		t.Fatalf("stage after SustainOff = %v, want release", e.Stage())
	}
	releaseEnd := int(0.3 * rate)
	prev = 0.5 + 1e-9
	for n := 0; n < releaseEnd; n++ {
		v := e.Output()
		if v >= prev || v <= 0 {
			t.Fatalf("release sample %d = %v (prev %v)", n, v, prev)
		}
		prev = v
		e.Next()
	}
	if !e.Done() {
		t.Fatalf("stage after release = %v, want idle", e.Stage())
	}
	if v := e.Output(); v != 0 {
		t.Fatalf("idle amplitude = %v", v)
	}
	e.Next()
	if !e.Done() {
		t.Fatal("idle must be terminal")
	}
}

func TestADSRZeroDurationsDoNotStall(t *testing.T) {
	e := New(0, 0, 0.7, 0, 48000)
	if v := e.Output(); v != 1 {
		t.Fatalf("zero attack output = %v, want 1", v)
	}
	e.Next()
	if e.Stage() != Decay {
		t.Fatalf("after 1 step: %v, want decay", e.Stage())
	}
	e.Next()
	if e.Stage() != Sustain || e.Output() != 0.7 {
		t.Fatalf("after 2 steps: %v %v, want sustain 0.7", e.Stage(), e.Output())
	}
	e.SustainOff()
	if v := e.Output(); v != 0 {
		t.Fatalf("zero release output = %v, want 0", v)
	}
	e.Next()
	if !e.Done() {
		t.Fatalf("zero release did not reach idle: %v", e.Stage())
	}
}

func TestSustainOffDuringAttackReleasesFromCurrentLevel(t *testing.T) {
	e := New(1, 1, 0.5, 1, 100)
	for i := 0; i < 50; i++ {
		e.Next()
	}
	e.SustainOff()
	if e.Stage() != Release {
		t.Fatalf("stage = %v, want release", e.Stage())
	}
	if v := e.Output(); v != 0.5 {
		t.Fatalf("release start = %v, want 0.5", v)
	}
	e.Next()
	if v := e.Output(); v >= 0.5 {
		t.Fatalf("release did not fall: %v", v)
	}
}

func TestSustainOffIsIdempotent(t *testing.T) {
	e := New(0, 0, 1, 1, 10)
	e.Next()
	e.Next()
	e.SustainOff()
	for i := 0; i < 5; i++ {
		e.Next()
	}
	level := e.Output()
	e.SustainOff()
	if e.Output() != level || e.Stage() != Release {
		t.Fatalf("second SustainOff changed state: %v %v", e.Stage(), e.Output())
	}
}

func TestOutputStaysInUnitRange(t *testing.T) {
	e := New(0.01, 0.01, 3, 0.01, 1000)
	for i := 0; i < 100; i++ {
		if v := e.Output(); v < 0 || v > 1 {
			t.Fatalf("sample %d out of range: %v", i, v)
		}
		if i == 40 {
			e.SustainOff()
		}
		e.Next()
	}
}

func TestResetRestartsAttack(t *testing.T) {
	e := New(0.5, 0, 1, 0, 10)
	for i := 0; i < 20; i++ {
		e.Next()
	}
	e.Reset()
	if e.Stage() != Attack || e.Output() != 0 {
		t.Fatalf("after reset: %v %v", e.Stage(), e.Output())
	}
}
