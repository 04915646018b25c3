// Package app wires configuration into sessions, sinks and servers.
package app

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"adaptrader/internal/adapter"
	"adaptrader/internal/agent"
	"adaptrader/internal/config"
	"adaptrader/internal/core"
	"adaptrader/internal/drift"
	"adaptrader/internal/features"
	"adaptrader/internal/policy"
	"adaptrader/internal/report"
	"adaptrader/internal/server"
	"adaptrader/internal/session"
	"adaptrader/internal/store"
	"adaptrader/internal/telemetry"
)

type App struct {
	cfg *config.Config
	log *zap.Logger
	out io.Writer
}

// New builds an App. out receives console step lines and tables.
func New(cfg *config.Config, log *zap.Logger, out io.Writer) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if log == nil {
		log = zap.NewNop()
	}
	if out == nil {
		out = os.Stdout
	}
	return &App{cfg: cfg, log: log, out: out}, nil
}

// Run executes one session with the configured sinks and writes the HTML
// report if one was requested.
func (a *App) Run(ctx context.Context) (telemetry.Summary, error) {
	var st *store.Store
	if a.cfg.Store.Path != "" {
		var err error
		if st, err = store.Open(a.cfg.Store.Path); err != nil {
			return telemetry.Summary{}, err
		}
		defer st.Close()
	}
	return a.runSession(ctx, st, nil)
}

// Serve runs the HTTP API and websocket stream alongside one session and
// keeps serving after the session ends until ctx is cancelled.
func (a *App) Serve(ctx context.Context) error {
	var st *store.Store
	if a.cfg.Store.Path != "" {
		var err error
		if st, err = store.Open(a.cfg.Store.Path); err != nil {
			return err
		}
		defer st.Close()
	}

	hub := telemetry.NewHub(a.log.Named("hub"))
	var reader server.SessionStore
	if st != nil {
		reader = st
	}
	srv := server.New(a.cfg.Server.Addr, reader, hub, a.log.Named("http"))

	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return hub.Run(gctx)
	})
	group.Go(func() error {
		return srv.Start(gctx)
	})
	group.Go(func() error {
		if _, err := a.runSession(gctx, st, hub); err != nil {
			return err
		}
		a.log.Info("session complete, still serving", zap.String("addr", a.cfg.Server.Addr))
		return nil
	})
	return group.Wait()
}

// Watch prints the step stream published by a running server.
func (a *App) Watch(ctx context.Context, url string) error {
	console := report.NewConsole(a.out)
	client := adapter.NewStreamClient(url, a.log.Named("watch"))
	return client.Run(ctx, func(ev telemetry.StepEvent) {
		if err := console.Publish(ev); err != nil {
			a.log.Warn("console write failed", zap.Error(err))
		}
	})
}

// ListSessions prints the stored sessions.
func (a *App) ListSessions(ctx context.Context, limit int) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	records, err := st.ListSessions(ctx, limit)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, report.SessionsTable(records))
	return err
}

// ExportReport renders the stored trace of session id as HTML.
func (a *App) ExportReport(ctx context.Context, id, path string) error {
	st, err := a.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	trace, err := st.SessionSteps(ctx, id)
	if err != nil {
		return err
	}
	return writeReport(path, trace, a.cfg.Output.SMAPeriod)
}

func (a *App) openStore() (*store.Store, error) {
	if a.cfg.Store.Path == "" {
		return nil, fmt.Errorf("no session store configured (store.path or ADAPTRADER_DB)")
	}
	return store.Open(a.cfg.Store.Path)
}

func (a *App) runSession(ctx context.Context, st *store.Store, hub *telemetry.Hub) (telemetry.Summary, error) {
	prices, err := a.loadPrices(ctx)
	if err != nil {
		return telemetry.Summary{}, err
	}
	env, err := core.NewMarketEnv(prices, a.cfg.Market.StartBalance)
	if err != nil {
		return telemetry.Summary{}, err
	}

	ag, err := agent.NewDefault(a.agentConfig(), a.log.Named("agent"))
	if err != nil {
		return telemetry.Summary{}, err
	}
	defer ag.Close()

	var sinks []session.Sink
	if !a.cfg.Output.Quiet {
		sinks = append(sinks, report.NewConsole(a.out))
	}
	if st != nil {
		sinks = append(sinks, st.Sink(ctx))
	}
	if a.cfg.Output.TraceCSV != "" {
		rec, err := features.NewRecorder(a.cfg.Output.TraceCSV, a.log.Named("trace"))
		if err != nil {
			return telemetry.Summary{}, err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				a.log.Warn("close trace file", zap.Error(err))
			}
		}()
		sinks = append(sinks, rec)
	}
	if hub != nil {
		sinks = append(sinks, hub)
	}
	if a.cfg.Notify.DiscordWebhook != "" {
		sinks = append(sinks, telemetry.NewDiscordNotifier(a.cfg.Notify.DiscordWebhook))
	}
	var trace *traceBuffer
	if a.cfg.Output.ReportHTML != "" {
		trace = &traceBuffer{}
		sinks = append(sinks, trace)
	}

	runner := session.NewRunner(session.Config{
		StepInterval: a.cfg.StepInterval(),
		Duration:     a.cfg.Duration(),
		MaxSteps:     a.cfg.Session.MaxSteps,
		Source:       a.cfg.Market.Source,
	}, env, ag, a.log, sinks...)

	summary, err := runner.Run(ctx)
	if err != nil {
		return summary, err
	}

	if trace != nil && len(trace.events) > 0 {
		if err := writeReport(a.cfg.Output.ReportHTML, trace.events, a.cfg.Output.SMAPeriod); err != nil {
			a.log.Warn("write report failed", zap.Error(err))
		} else {
			a.log.Info("report written", zap.String("path", a.cfg.Output.ReportHTML))
		}
	}
	return summary, nil
}

func (a *App) loadPrices(ctx context.Context) ([]float64, error) {
	m := a.cfg.Market
	if m.Source == config.SourceSynthetic {
		s := m.Synthetic
		prices := adapter.SyntheticPrices(adapter.SyntheticConfig{
			Length:      s.Length,
			Start:       s.Start,
			Drift:       s.Drift,
			Volatility:  s.Volatility,
			ShiftAt:     s.ShiftAt,
			DriftFactor: s.DriftFactor,
			VolFactor:   s.VolFactor,
			Seed:        s.Seed,
		})
		a.log.Info("synthetic prices generated", zap.Int("count", len(prices)), zap.Int("shift_at", s.ShiftAt))
		return prices, nil
	}

	prices, err := adapter.NewPriceLoader(a.cfg.FetchTimeout()).Load(ctx, m.Source)
	if err != nil {
		return nil, err
	}
	a.log.Info("prices loaded", zap.String("source", m.Source), zap.Int("count", len(prices)))
	return prices, nil
}

func (a *App) agentConfig() agent.Config {
	ac := a.cfg.Agent
	return agent.Config{
		Network: policy.NetworkConfig{
			Hidden:    ac.Hidden,
			Seed:      ac.Seed,
			WeightStd: ac.WeightStd,
		},
		ONNXModel:   ac.ONNXModel,
		ONNXLibrary: ac.ONNXLibrary,
		Drift: drift.Config{
			Delta:       ac.Drift.Delta,
			Clock:       ac.Drift.Clock,
			MaxBuckets:  ac.Drift.MaxBuckets,
			MinWindow:   ac.Drift.MinWindow,
			GracePeriod: ac.Drift.GracePeriod,
		},
		Optimizer: &core.OptimizerConfig{
			Algorithm: ac.Optimizer,
			Groups:    []core.ParamGroup{{Name: "policy", LR: ac.LearningRate}},
		},
	}
}

// traceBuffer keeps the session's events in memory for the HTML report.
type traceBuffer struct {
	events []telemetry.StepEvent
}

func (b *traceBuffer) Publish(ev telemetry.StepEvent) error {
	b.events = append(b.events, ev)
	return nil
}

func writeReport(path string, trace []telemetry.StepEvent, smaPeriod int) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report dir: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := report.WriteHTML(f, trace, smaPeriod); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
