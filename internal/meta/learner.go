// Package meta adjusts training hyperparameters when the reward stream
// changes character.
package meta

import "adaptrader/internal/core"

// DecayFactor is applied to every learning rate on each adaptation.
const DecayFactor = 0.5

// Learner halves the learning rates of the configuration it wraps.
type Learner struct {
	cfg *core.OptimizerConfig
}

func New(cfg *core.OptimizerConfig) *Learner {
	return &Learner{cfg: cfg}
}

// Adapt must only be called once per detected drift.
func (l *Learner) Adapt() {
	for i := range l.cfg.Groups {
		l.cfg.Groups[i].LR *= DecayFactor
	}
}
