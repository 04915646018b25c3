// Package session drives one agent through one market episode and hands
// every step to the registered sinks.
package session

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adaptrader/internal/core"
	"adaptrader/internal/features"
	"adaptrader/internal/telemetry"
)

// Stop reasons reported in the summary.
const (
	StopDone      = "done"
	StopMaxSteps  = "max_steps"
	StopDuration  = "duration"
	StopCancelled = "cancelled"
)

// Agent is the part of agent.Agent the runner needs.
type Agent interface {
	Act(core.State) core.Action
	Learn(reward float64) bool
	LearningRates() []float64
}

// Sink receives every step event. Errors are logged and do not stop the
// session.
type Sink interface {
	Publish(telemetry.StepEvent) error
}

// Starter is implemented by sinks that must prepare before the first step.
// A Start error aborts the run.
type Starter interface {
	Start(telemetry.SessionInfo) error
}

// Finisher is implemented by sinks that want the final summary.
type Finisher interface {
	Finish(telemetry.Summary) error
}

type Config struct {
	StepInterval time.Duration // pause between steps, zero runs flat out
	Duration     time.Duration // wall-clock limit, zero means none
	MaxSteps     int           // zero means until the episode ends
	Source       string
}

// Runner owns the session identity. It is not safe for concurrent use and
// Run should be called once.
type Runner struct {
	id    string
	cfg   Config
	env   *core.MarketEnv
	agent Agent
	sinks []Sink
	log   *zap.Logger
}

func NewRunner(cfg Config, env *core.MarketEnv, ag Agent, log *zap.Logger, sinks ...Sink) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	id := uuid.NewString()
	return &Runner{
		id:    id,
		cfg:   cfg,
		env:   env,
		agent: ag,
		sinks: sinks,
		log:   log.With(zap.String("session", id)),
	}
}

func (r *Runner) ID() string { return r.id }

// Run loops act, step, learn until the episode is done, MaxSteps is hit,
// Duration elapses or ctx is cancelled. Stopping early is not an error.
func (r *Runner) Run(ctx context.Context) (telemetry.Summary, error) {
	info := telemetry.SessionInfo{
		ID:           r.id,
		Source:       r.cfg.Source,
		StartedAt:    time.Now().UTC(),
		StartBalance: r.env.StartBalance(),
		Prices:       r.env.Len(),
	}
	for _, s := range r.sinks {
		if st, ok := s.(Starter); ok {
			if err := st.Start(info); err != nil {
				return telemetry.Summary{}, fmt.Errorf("start session sink %T: %w", s, err)
			}
		}
	}

	var deadline <-chan time.Time
	if r.cfg.Duration > 0 {
		timer := time.NewTimer(r.cfg.Duration)
		defer timer.Stop()
		deadline = timer.C
	}
	var tick <-chan time.Time
	if r.cfg.StepInterval > 0 {
		ticker := time.NewTicker(r.cfg.StepInterval)
		defer ticker.Stop()
		tick = ticker.C
	}

	state := r.env.Reset()
	metrics := features.NewEngine(state.Equity())
	r.log.Info("session started",
		zap.String("source", info.Source),
		zap.Int("prices", info.Prices),
		zap.Float64("start_balance", info.StartBalance))

	reason := ""
	for step := 0; reason == ""; step++ {
		if r.cfg.MaxSteps > 0 && step >= r.cfg.MaxSteps {
			reason = StopMaxSteps
			break
		}
		select {
		case <-ctx.Done():
			reason = StopCancelled
			continue
		case <-deadline:
			reason = StopDuration
			continue
		default:
		}

		action := r.agent.Act(state)
		next, reward, done := r.env.Step(action)
		drift := r.agent.Learn(reward)
		snap := metrics.Observe(action, next.Equity(), reward, drift)

		ev := telemetry.StepEvent{
			SessionID:    r.id,
			Step:         step,
			Action:       action,
			ActionName:   action.String(),
			Price:        next.Price,
			Balance:      next.Balance,
			Shares:       next.Shares,
			Equity:       snap.Equity,
			Reward:       reward,
			Done:         done,
			Drift:        drift,
			LearningRate: firstRate(r.agent.LearningRates()),
			Drawdown:     snap.Drawdown,
			Confidence:   snap.Confidence,
		}
		if next.Shares != state.Shares {
			ev.Fill = &core.Fill{
				Step:    step,
				Side:    action,
				Price:   state.Price,
				Balance: next.Balance,
				Shares:  next.Shares,
			}
		}
		if drift {
			r.log.Info("market regime change, adapting",
				zap.Int("step", step),
				zap.Float64("learning_rate", ev.LearningRate))
		}
		r.emit(ev)
		state = next

		if done {
			reason = StopDone
			break
		}
		if tick == nil {
			continue
		}
		select {
		case <-ctx.Done():
			reason = StopCancelled
		case <-deadline:
			reason = StopDuration
		case <-tick:
		}
	}

	summary := telemetry.Summary{
		SessionID:          r.id,
		Steps:              metrics.Steps(),
		StartEquity:        metrics.StartEquity(),
		FinalEquity:        metrics.Last().Equity,
		Return:             metrics.Return(),
		MaxDrawdown:        metrics.Last().MaxDrawdown,
		DriftEvents:        metrics.DriftEvents(),
		Fills:              r.env.Fills(),
		FinalLearningRates: r.agent.LearningRates(),
		ActionEntropy:      metrics.Actions().Entropy(),
		StopReason:         reason,
	}
	r.log.Info("session finished",
		zap.String("reason", reason),
		zap.Int("steps", summary.Steps),
		zap.Float64("final_equity", summary.FinalEquity),
		zap.Int("drift_events", summary.DriftEvents))

	for _, s := range r.sinks {
		if f, ok := s.(Finisher); ok {
			if err := f.Finish(summary); err != nil {
				r.log.Warn("sink finish failed", zap.String("sink", fmt.Sprintf("%T", s)), zap.Error(err))
			}
		}
	}
	return summary, nil
}

func (r *Runner) emit(ev telemetry.StepEvent) {
	for _, s := range r.sinks {
		if err := s.Publish(ev); err != nil {
			r.log.Warn("sink publish failed",
				zap.String("sink", fmt.Sprintf("%T", s)),
				zap.Int("step", ev.Step),
				zap.Error(err))
		}
	}
}

func firstRate(lrs []float64) float64 {
	if len(lrs) == 0 {
		return 0
	}
	return lrs[0]
}
