package drift

import (
	"math"
	"testing"
)

// lcg is a 64-bit linear congruential generator so the streams below are
// identical on every platform and Go release.
type lcg uint64

func (g *lcg) float() float64 {
	*g = *g*6364136223846793005 + 1442695040888963407
	return float64(uint64(*g)>>11) / float64(uint64(1)<<53)
}

// shiftedStream returns pre values around 0 followed by post values around
// shift, each with uniform noise of the given amplitude.
func shiftedStream(seed uint64, pre, post int, shift, amp float64) []float64 {
	g := lcg(seed)
	out := make([]float64, 0, pre+post)
	for i := 0; i < pre+post; i++ {
		base := 0.0
		if i >= pre {
			base = shift
		}
		out = append(out, base+amp*(2*g.float()-1))
	}
	return out
}

func detections(d *ADWIN, stream []float64, scale float64) []int {
	var hits []int
	for i, x := range stream {
		if d.Update(x * scale) {
			hits = append(hits, i)
		}
	}
	return hits
}

func TestADWINStationaryWindowGrows(t *testing.T) {
	d := NewADWIN(DefaultConfig())
	stream := shiftedStream(42, 4000, 0, 0, 0.2)

	prev := 0
	for i, x := range stream {
		if d.Update(x) {
			t.Fatalf("false detection at %d", i)
		}
		if d.Width() <= prev {
			t.Fatalf("window did not grow at %d: %d -> %d", i, prev, d.Width())
		}
		prev = d.Width()
	}
	if d.Width() != len(stream) {
		t.Errorf("width = %d, want %d", d.Width(), len(stream))
	}
}

func TestADWINDetectsShiftOnce(t *testing.T) {
	tests := []struct {
		name  string
		seed  uint64
		shift float64
		amp   float64
	}{
		{"up one", 1, 1.0, 0.2},
		{"up half", 12345, 0.5, 0.2},
		{"up two wide noise", 7, 2.0, 0.5},
		{"down", 99, -2.0, 0.2},
	}

	const pre, post = 1000, 2000
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewADWIN(DefaultConfig())
			hits := detections(d, shiftedStream(tt.seed, pre, post, tt.shift, tt.amp), 1)

			if len(hits) != 1 {
				t.Fatalf("expected exactly one detection, got %v", hits)
			}
			if hits[0] < pre || hits[0] > pre+100 {
				t.Errorf("detection at %d, expected shortly after %d", hits[0], pre)
			}
			if d.Detections() != 1 {
				t.Errorf("Detections() = %d", d.Detections())
			}
			if d.Width() > post {
				t.Errorf("window still holds pre-shift data: width %d", d.Width())
			}
			if mean := d.Mean(); mean < tt.shift-0.05 || mean > tt.shift+0.05 {
				t.Errorf("window mean %v not near the new level %v", mean, tt.shift)
			}
		})
	}
}

func TestADWINScaleIndependent(t *testing.T) {
	stream := shiftedStream(3, 1000, 1500, 0.5, 0.2)
	base := detections(NewADWIN(DefaultConfig()), stream, 1)
	if len(base) == 0 {
		t.Fatal("expected a detection at unit scale")
	}

	for _, scale := range []float64{1.0 / 64, 4, 1024} {
		got := detections(NewADWIN(DefaultConfig()), stream, scale)
		if len(got) != len(base) {
			t.Fatalf("scale %v: detections %v, want %v", scale, got, base)
		}
		for i := range got {
			if got[i] != base[i] {
				t.Errorf("scale %v: detections %v, want %v", scale, got, base)
			}
		}
	}
}

func TestADWINDeterministic(t *testing.T) {
	stream := shiftedStream(2, 800, 800, 1, 0.3)
	a := detections(NewADWIN(DefaultConfig()), stream, 1)
	b := detections(NewADWIN(DefaultConfig()), stream, 1)
	if len(a) != len(b) {
		t.Fatalf("runs differ: %v vs %v", a, b)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("runs differ: %v vs %v", a, b)
		}
	}
}

func TestADWINConstantStream(t *testing.T) {
	for _, v := range []float64{3.5, 0.1, 0.3, 2.7, -1.1, 12.34, 0.001} {
		d := NewADWIN(DefaultConfig())
		for i := 0; i < 5000; i++ {
			if d.Update(v) {
				t.Fatalf("constant %v triggered at %d", v, i)
			}
		}
		if d.Detections() != 0 {
			t.Errorf("constant %v: %d detections", v, d.Detections())
		}
		if math.Abs(d.Mean()-v) > 1e-9 {
			t.Errorf("constant %v: mean=%v", v, d.Mean())
		}
	}
}

func TestADWINNoiseThenConstant(t *testing.T) {
	d := NewADWIN(DefaultConfig())
	for i := 0; i < 2000; i++ {
		d.Update(0.1 * float64(i%5-2))
	}
	for i := 0; i < 3000; i++ {
		d.Update(0.3)
	}
	if d.Detections() != 1 {
		t.Errorf("detections = %d, want 1", d.Detections())
	}
}

func TestADWINReset(t *testing.T) {
	d := NewADWIN(DefaultConfig())
	for i := 0; i < 100; i++ {
		d.Update(float64(i % 3))
	}
	d.Reset()
	if d.Width() != 0 || d.Mean() != 0 || d.Detections() != 0 {
		t.Errorf("reset left state behind: width=%d mean=%v", d.Width(), d.Mean())
	}
}

func TestConfigDefaults(t *testing.T) {
	got := Config{Delta: 2, Clock: -1, MaxBuckets: 1, GracePeriod: -1}.withDefaults()
	if got != DefaultConfig() {
		t.Errorf("withDefaults = %+v, want %+v", got, DefaultConfig())
	}
}
