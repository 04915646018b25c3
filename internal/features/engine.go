// Package features derives per-session statistics from the stream of steps:
// equity curve, drawdown, reward stability and the action mix.
package features

import (
	"math"

	"adaptrader/internal/core"
)

const (
	confidenceWindow = 10
	confidenceWarmup = 5
)

// Snapshot holds the metrics after one observed step.
type Snapshot struct {
	Equity      float64
	Peak        float64
	Drawdown    float64
	MaxDrawdown float64
	Confidence  float64
}

// Engine accumulates the metrics of a single session.
type Engine struct {
	startEquity float64
	peak        float64
	maxDrawdown float64

	// Ring of the last confidenceWindow absolute rewards.
	rewards [confidenceWindow]float64
	observed int

	actions *ActionMix
	drifts  int
	last    Snapshot
}

// NewEngine starts the peak at startEquity so an early loss already shows
// as drawdown.
func NewEngine(startEquity float64) *Engine {
	return &Engine{
		startEquity: startEquity,
		peak:        startEquity,
		actions:     NewActionMix(),
		last:        Snapshot{Equity: startEquity, Peak: startEquity},
	}
}

// Observe records one step and returns the updated metrics.
func (e *Engine) Observe(action core.Action, equity, reward float64, drift bool) Snapshot {
	e.actions.Add(action)
	if drift {
		e.drifts++
	}

	e.peak = math.Max(e.peak, equity)
	dd := 0.0
	if e.peak > 0 {
		dd = (e.peak - equity) / e.peak
	}
	e.maxDrawdown = math.Max(e.maxDrawdown, dd)

	e.rewards[e.observed%confidenceWindow] = math.Abs(reward)
	e.observed++

	e.last = Snapshot{
		Equity:      equity,
		Peak:        e.peak,
		Drawdown:    dd,
		MaxDrawdown: e.maxDrawdown,
		Confidence:  e.confidence(),
	}
	return e.last
}

// confidence is the mean absolute reward of the recent window, zero until
// the warmup has passed.
func (e *Engine) confidence() float64 {
	if e.observed <= confidenceWarmup {
		return 0
	}
	n := e.observed
	if n > confidenceWindow {
		n = confidenceWindow
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += e.rewards[i]
	}
	return sum / float64(n)
}

func (e *Engine) Last() Snapshot { return e.last }

func (e *Engine) Steps() int { return e.observed }

func (e *Engine) DriftEvents() int { return e.drifts }

func (e *Engine) StartEquity() float64 { return e.startEquity }

// Return is the fractional change of equity since the start.
func (e *Engine) Return() float64 {
	if e.startEquity == 0 {
		return 0
	}
	return (e.last.Equity - e.startEquity) / e.startEquity
}

func (e *Engine) Actions() *ActionMix { return e.actions }
