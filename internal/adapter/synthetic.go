package adapter

import (
	"math"
	"math/rand"
)

// SyntheticConfig describes a seeded random walk with one regime change.
// From index ShiftAt on, the per-step drift is multiplied by DriftFactor and
// the volatility by VolFactor.
type SyntheticConfig struct {
	Length      int
	Start       float64
	Drift       float64 // mean relative change per step
	Volatility  float64 // std-dev of the relative change per step
	ShiftAt     int     // <= 0 disables the regime change
	DriftFactor float64
	VolFactor   float64
	Seed        int64
}

func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		Length:      500,
		Start:       100,
		Drift:       0.0005,
		Volatility:  0.01,
		ShiftAt:     250,
		DriftFactor: -4,
		VolFactor:   3,
		Seed:        1,
	}
}

const minSyntheticPrice = 0.01

// SyntheticPrices returns the walk described by cfg. The same config always
// yields the same series.
func SyntheticPrices(cfg SyntheticConfig) []float64 {
	def := DefaultSyntheticConfig()
	if cfg.Length <= 0 {
		cfg.Length = def.Length
	}
	if cfg.Start <= 0 {
		cfg.Start = def.Start
	}
	if cfg.Volatility < 0 {
		cfg.Volatility = 0
	}

	rng := rand.New(rand.NewSource(cfg.Seed))
	prices := make([]float64, cfg.Length)
	prices[0] = cfg.Start

	drift, vol := cfg.Drift, cfg.Volatility
	for i := 1; i < cfg.Length; i++ {
		if cfg.ShiftAt > 0 && i == cfg.ShiftAt {
			drift *= cfg.DriftFactor
			vol *= math.Abs(cfg.VolFactor)
		}
		next := prices[i-1] * (1 + drift + vol*rng.NormFloat64())
		prices[i] = math.Max(next, minSyntheticPrice)
	}
	return prices
}
