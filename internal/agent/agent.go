// Package agent composes the policy, the drift detector and the
// meta-learner behind the two calls a session driver needs.
package agent

import (
	"fmt"
	"io"

	"go.uber.org/zap"

	"adaptrader/internal/core"
	"adaptrader/internal/drift"
	"adaptrader/internal/meta"
	"adaptrader/internal/policy"
)

type Decider interface {
	Decide(core.State) core.Action
}

type Detector interface {
	Update(reward float64) bool
}

type Adapter interface {
	Adapt()
}

// Config selects and tunes the default components.
type Config struct {
	Network     policy.NetworkConfig
	ONNXModel   string // optional pre-trained scorer, replaces the network
	ONNXLibrary string
	Drift       drift.Config
	Optimizer   *core.OptimizerConfig // cloned; nil means core.DefaultOptimizerConfig
}

// Agent is owned by exactly one session.
type Agent struct {
	policy   Decider
	detector Detector
	meta     Adapter
	optim    *core.OptimizerConfig
	closer   io.Closer
}

func New(d Decider, det Detector, a Adapter, optim *core.OptimizerConfig) *Agent {
	if optim == nil {
		optim = &core.OptimizerConfig{}
	}
	return &Agent{policy: d, detector: det, meta: a, optim: optim}
}

// NewDefault builds the MLP (or ONNX) policy, an ADWIN detector and a
// meta-learner over a private copy of the optimiser configuration.
func NewDefault(cfg Config, log *zap.Logger) (*Agent, error) {
	if log == nil {
		log = zap.NewNop()
	}

	optim := core.DefaultOptimizerConfig()
	if cfg.Optimizer != nil {
		optim = cfg.Optimizer.Clone()
	}

	var (
		scorer policy.Scorer
		closer io.Closer
	)
	if cfg.ONNXModel != "" {
		m, err := policy.NewONNXScorer(cfg.ONNXModel, cfg.ONNXLibrary)
		if err != nil {
			return nil, fmt.Errorf("load onnx policy: %w", err)
		}
		scorer, closer = m, m
		log.Info("onnx policy loaded", zap.String("model", cfg.ONNXModel))
	} else {
		n := policy.NewNetwork(cfg.Network)
		scorer = n
		log.Debug("mlp policy initialised",
			zap.Int("hidden", n.Config().Hidden),
			zap.Int64("seed", n.Config().Seed))
	}

	dcfg := cfg.Drift
	if dcfg == (drift.Config{}) {
		dcfg = drift.DefaultConfig()
	}
	a := New(policy.New(scorer, log), drift.NewADWIN(dcfg), meta.New(optim), optim)
	a.closer = closer
	return a, nil
}

// Act returns the policy's action for s. It has no side effects.
func (a *Agent) Act(s core.State) core.Action {
	return a.policy.Decide(s)
}

// Learn feeds reward to the drift detector and, only when it reports a
// change, adapts the optimiser before returning true.
func (a *Agent) Learn(reward float64) bool {
	if !a.detector.Update(reward) {
		return false
	}
	a.meta.Adapt()
	return true
}

// LearningRates returns a copy of the current per-group learning rates.
func (a *Agent) LearningRates() []float64 {
	return a.optim.LearningRates()
}

func (a *Agent) Close() error {
	if a.closer == nil {
		return nil
	}
	return a.closer.Close()
}
