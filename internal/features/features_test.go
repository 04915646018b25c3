package features

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"adaptrader/internal/core"
	"adaptrader/internal/telemetry"
)

func almostEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestEngineDrawdownFromStartingPeak(t *testing.T) {
	e := NewEngine(100)

	tests := []struct {
		equity   float64
		drawdown float64
		maxDD    float64
	}{
		{90, 0.10, 0.10},
		{120, 0, 0.10},
		{90, 0.25, 0.25},
		{108, 0.10, 0.25},
	}
	for i, tt := range tests {
		s := e.Observe(core.Hold, tt.equity, 0, false)
		if !almostEqual(s.Drawdown, tt.drawdown) || !almostEqual(s.MaxDrawdown, tt.maxDD) {
			t.Errorf("step %d: drawdown=%v max=%v, want %v %v", i, s.Drawdown, s.MaxDrawdown, tt.drawdown, tt.maxDD)
		}
	}
	if !almostEqual(e.Return(), 0.08) {
		t.Errorf("Return = %v, want 0.08", e.Return())
	}
}

func TestEngineConfidence(t *testing.T) {
	e := NewEngine(100)
	rewards := []float64{1, -1, 2, -2, 3, -3, 4, -4, 5, -5, 6, -6}
	var got []float64
	for _, r := range rewards {
		got = append(got, e.Observe(core.Buy, 100, r, false).Confidence)
	}

	for i := 0; i < 5; i++ {
		if got[i] != 0 {
			t.Errorf("step %d: confidence %v during warmup", i, got[i])
		}
	}
	// steps 0..5: |r| = 1,1,2,2,3,3
	if !almostEqual(got[5], 2) {
		t.Errorf("step 5: confidence %v, want 2", got[5])
	}
	// last ten: 2,2,3,3,4,4,5,5,6,6
	if !almostEqual(got[11], 4) {
		t.Errorf("step 11: confidence %v, want 4", got[11])
	}
}

func TestEngineCountsDrift(t *testing.T) {
	e := NewEngine(1)
	for i := 0; i < 10; i++ {
		e.Observe(core.Hold, 1, 0, i%4 == 0)
	}
	if e.DriftEvents() != 3 || e.Steps() != 10 {
		t.Errorf("drifts=%d steps=%d", e.DriftEvents(), e.Steps())
	}
}

func TestActionMixEntropy(t *testing.T) {
	tests := []struct {
		name    string
		actions []core.Action
		want    float64
	}{
		{"empty", nil, 0},
		{"single action", []core.Action{core.Hold, core.Hold, core.Hold}, 0},
		{"two even", []core.Action{core.Buy, core.Sell}, 1},
		{"uniform", []core.Action{core.Buy, core.Sell, core.Hold}, math.Log2(3)},
		{"invalid ignored", []core.Action{core.Buy, core.Action(9), core.Sell}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewActionMix()
			for _, a := range tt.actions {
				m.Add(a)
			}
			if got := m.Entropy(); !almostEqual(got, tt.want) {
				t.Errorf("Entropy = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecorderWritesTrace(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trace.csv")

	for round := 0; round < 2; round++ {
		r, err := NewRecorder(path, zaptest.NewLogger(t))
		if err != nil {
			t.Fatalf("NewRecorder: %v", err)
		}
		for i := 0; i < 3; i++ {
			ev := telemetry.StepEvent{SessionID: "s", Step: i, Action: core.Buy, Price: 10, Equity: 100}
			if err := r.Publish(ev); err != nil {
				t.Fatalf("Publish: %v", err)
			}
		}
		if err := r.Close(); err != nil {
			t.Fatalf("Close: %v", err)
		}
		if err := r.Publish(telemetry.StepEvent{}); err != ErrRecorderClosed {
			t.Errorf("Publish after Close = %v", err)
		}
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read trace: %v", err)
	}
	// one header, then both rounds appended
	if len(records) != 7 {
		t.Fatalf("got %d records, want 7", len(records))
	}
	if records[0][0] != "session_id" || records[1][2] != "BUY" || records[6][1] != "2" {
		t.Errorf("unexpected trace contents: %v", records)
	}
}
