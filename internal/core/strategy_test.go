package core

import "testing"

func TestOptimizerConfigClone(t *testing.T) {
	orig := DefaultOptimizerConfig()
	clone := orig.Clone()
	clone.Groups[0].LR = 1

	if orig.Groups[0].LR != 0.01 {
		t.Errorf("clone shares groups with original: %v", orig.Groups[0].LR)
	}
	if got := orig.LearningRates(); len(got) != 1 || got[0] != 0.01 {
		t.Errorf("unexpected learning rates %v", got)
	}
}

func TestActionStrings(t *testing.T) {
	for _, a := range []Action{Buy, Sell, Hold} {
		parsed, ok := ParseAction(a.String())
		if !ok || parsed != a {
			t.Errorf("round trip of %v failed", a)
		}
	}
	if Action(5).Valid() {
		t.Error("Action(5) should be invalid")
	}
}
