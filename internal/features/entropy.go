package features

import (
	"math"

	"adaptrader/internal/core"
)

// ActionMix counts how often each action was chosen.
type ActionMix struct {
	counts [core.NumActions]int
	total  int
}

func NewActionMix() *ActionMix {
	return &ActionMix{}
}

// Add ignores actions outside the known set.
func (m *ActionMix) Add(a core.Action) {
	if !a.Valid() {
		return
	}
	m.counts[a]++
	m.total++
}

func (m *ActionMix) Count(a core.Action) int {
	if !a.Valid() {
		return 0
	}
	return m.counts[a]
}

func (m *ActionMix) Total() int { return m.total }

// Entropy computes the Shannon entropy H = -sum(p * log2(p)) of the action
// distribution in bits. A policy stuck on one action scores 0, a uniform
// mix over three actions scores log2(3).
func (m *ActionMix) Entropy() float64 {
	if m.total == 0 {
		return 0
	}
	h := 0.0
	for _, c := range m.counts {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(m.total)
		h -= p * math.Log2(p)
	}
	return h
}
