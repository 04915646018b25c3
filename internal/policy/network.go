package policy

import (
	"fmt"
	"math/rand"

	deep "github.com/patrikeh/go-deep"

	"adaptrader/internal/core"
)

const inputSize = 3

// NetworkConfig describes the feed-forward scorer.
type NetworkConfig struct {
	Hidden    int     // units in the single hidden layer
	Seed      int64   // weight initialisation seed
	WeightStd float64 // standard deviation of the initial weights
}

func (c NetworkConfig) withDefaults() NetworkConfig {
	if c.Hidden <= 0 {
		c.Hidden = 64
	}
	if c.WeightStd <= 0 {
		c.WeightStd = 0.1
	}
	return c
}

// Network is a 3 → Hidden (ReLU) → 3 (linear) multilayer perceptron.
// Its weights are drawn once from a seeded source and never change.
type Network struct {
	net *deep.Neural
	cfg NetworkConfig
}

func NewNetwork(cfg NetworkConfig) *Network {
	cfg = cfg.withDefaults()
	rng := rand.New(rand.NewSource(cfg.Seed))
	std := cfg.WeightStd

	n := deep.NewNeural(&deep.Config{
		Inputs:     inputSize,
		Layout:     []int{cfg.Hidden, core.NumActions},
		Activation: deep.ActivationReLU,
		Mode:       deep.ModeRegression,
		Weight:     func() float64 { return rng.NormFloat64() * std },
		Bias:       true,
	})
	return &Network{net: n, cfg: cfg}
}

func (n *Network) Scores(input []float64) ([]float64, error) {
	if len(input) != inputSize {
		return nil, fmt.Errorf("expected %d inputs, got %d", inputSize, len(input))
	}
	return n.net.Predict(input), nil
}

func (n *Network) Config() NetworkConfig { return n.cfg }
