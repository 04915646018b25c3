// Package policy maps a market state to one of the three trading actions.
package policy

import (
	"fmt"

	"go.uber.org/zap"

	"adaptrader/internal/core"
)

// Scorer produces one score per action for a state vector.
type Scorer interface {
	Scores(input []float64) ([]float64, error)
}

// Policy picks the highest-scoring action. It is deterministic for a fixed
// scorer and never explores.
type Policy struct {
	scorer Scorer
	log    *zap.Logger
}

func New(s Scorer, log *zap.Logger) *Policy {
	if log == nil {
		log = zap.NewNop()
	}
	return &Policy{scorer: s, log: log}
}

// Scores returns the raw action scores for s.
func (p *Policy) Scores(s core.State) ([]float64, error) {
	scores, err := p.scorer.Scores(s.Vector())
	if err != nil {
		return nil, err
	}
	if len(scores) != core.NumActions {
		return nil, fmt.Errorf("scorer returned %d outputs, want %d", len(scores), core.NumActions)
	}
	return scores, nil
}

// Decide returns argmax over the action scores. A failing scorer degrades
// to Hold.
func (p *Policy) Decide(s core.State) core.Action {
	scores, err := p.Scores(s)
	if err != nil {
		p.log.Warn("policy scoring failed, holding", zap.Error(err))
		return core.Hold
	}
	return argmax(scores)
}

// argmax resolves ties to the lowest index.
func argmax(scores []float64) core.Action {
	best := 0
	for i := 1; i < len(scores); i++ {
		if scores[i] > scores[best] {
			best = i
		}
	}
	return core.Action(best)
}
