package policy

import (
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"adaptrader/internal/core"
)

type fixedScorer struct {
	scores []float64
	err    error
}

func (f fixedScorer) Scores([]float64) ([]float64, error) { return f.scores, f.err }

func TestDecideArgmax(t *testing.T) {
	tests := []struct {
		name   string
		scores []float64
		want   core.Action
	}{
		{"buy", []float64{3, 1, 2}, core.Buy},
		{"sell", []float64{0, 5, -1}, core.Sell},
		{"hold", []float64{-2, -3, -1}, core.Hold},
		{"tie resolves low", []float64{1, 1, 1}, core.Buy},
		{"tie sell hold", []float64{0, 4, 4}, core.Sell},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(fixedScorer{scores: tt.scores}, zaptest.NewLogger(t))
			if got := p.Decide(core.State{Price: 1, Balance: 1}); got != tt.want {
				t.Errorf("Decide = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecideDegradesToHold(t *testing.T) {
	p := New(fixedScorer{err: errors.New("boom")}, zaptest.NewLogger(t))
	if got := p.Decide(core.State{}); got != core.Hold {
		t.Errorf("expected Hold on scorer error, got %v", got)
	}

	p = New(fixedScorer{scores: []float64{1, 2}}, zaptest.NewLogger(t))
	if got := p.Decide(core.State{}); got != core.Hold {
		t.Errorf("expected Hold on wrong arity, got %v", got)
	}
}

func TestNetworkDeterministicPerSeed(t *testing.T) {
	states := []core.State{
		{Price: 10, Balance: 10000, Shares: 0},
		{Price: 12.5, Balance: 9987.5, Shares: 1},
		{Price: 0, Balance: 0, Shares: 40},
	}

	a := New(NewNetwork(NetworkConfig{Seed: 42}), nil)
	b := New(NewNetwork(NetworkConfig{Seed: 42}), nil)

	for _, s := range states {
		sa, err := a.Scores(s)
		if err != nil {
			t.Fatalf("Scores: %v", err)
		}
		sb, err := b.Scores(s)
		if err != nil {
			t.Fatalf("Scores: %v", err)
		}
		if len(sa) != core.NumActions {
			t.Fatalf("expected %d scores, got %d", core.NumActions, len(sa))
		}
		for i := range sa {
			if sa[i] != sb[i] {
				t.Fatalf("same seed produced different scores: %v vs %v", sa, sb)
			}
		}
		if a.Decide(s) != b.Decide(s) {
			t.Errorf("same seed produced different actions for %+v", s)
		}
		if !a.Decide(s).Valid() {
			t.Errorf("invalid action for %+v", s)
		}
	}
}

func TestNetworkDecideIsPure(t *testing.T) {
	p := New(NewNetwork(NetworkConfig{Seed: 3}), nil)
	s := core.State{Price: 101, Balance: 5000, Shares: 7}
	first := p.Decide(s)
	for i := 0; i < 20; i++ {
		if got := p.Decide(s); got != first {
			t.Fatalf("decision changed between calls: %v then %v", first, got)
		}
	}
}

func TestNetworkRejectsWrongInput(t *testing.T) {
	n := NewNetwork(NetworkConfig{})
	if _, err := n.Scores([]float64{1, 2}); err == nil {
		t.Error("expected error for short input")
	}
	if n.Config().Hidden != 64 {
		t.Errorf("default hidden units = %d, want 64", n.Config().Hidden)
	}
}
