package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"adaptrader/internal/config"
	"adaptrader/internal/session"
	"adaptrader/internal/store"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}
	dir := t.TempDir()
	cfg.Market.Source = config.SourceSynthetic
	cfg.Market.Synthetic.Length = 60
	cfg.Market.Synthetic.ShiftAt = 30
	cfg.Store.Path = filepath.Join(dir, "sessions.db")
	cfg.Output.TraceCSV = filepath.Join(dir, "trace.csv")
	cfg.Output.ReportHTML = filepath.Join(dir, "out", "report.html")
	cfg.Server.Addr = "127.0.0.1:0"
	return cfg
}

func TestRunWritesEveryOutput(t *testing.T) {
	cfg := testConfig(t)
	var out bytes.Buffer
	a, err := New(cfg, zaptest.NewLogger(t), &out)
	if err != nil {
		t.Fatal(err)
	}

	sum, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sum.Steps != 59 || sum.StopReason != session.StopDone {
		t.Errorf("steps=%d reason=%q", sum.Steps, sum.StopReason)
	}
	if !strings.Contains(out.String(), "Step 00") || !strings.Contains(out.String(), "Trading session completed") {
		t.Errorf("console output incomplete:\n%s", out.String())
	}

	for _, path := range []string{cfg.Output.TraceCSV, cfg.Output.ReportHTML} {
		info, err := os.Stat(path)
		if err != nil || info.Size() == 0 {
			t.Errorf("%s not written: %v", path, err)
		}
	}

	st, err := store.Open(cfg.Store.Path)
	if err != nil {
		t.Fatal(err)
	}
	defer st.Close()
	steps, err := st.SessionSteps(context.Background(), sum.SessionID)
	if err != nil {
		t.Fatalf("SessionSteps: %v", err)
	}
	if len(steps) != sum.Steps {
		t.Errorf("stored %d steps, summary says %d", len(steps), sum.Steps)
	}
}

func TestRunIsReproducible(t *testing.T) {
	run := func() float64 {
		cfg := testConfig(t)
		cfg.Store.Path = ""
		cfg.Output.TraceCSV = ""
		cfg.Output.ReportHTML = ""
		cfg.Output.Quiet = true
		a, _ := New(cfg, nil, &bytes.Buffer{})
		sum, err := a.Run(context.Background())
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
		return sum.FinalEquity
	}
	if first, second := run(), run(); first != second {
		t.Errorf("final equity %v then %v", first, second)
	}
}

func TestListAndExport(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Quiet = true
	var out bytes.Buffer
	a, _ := New(cfg, nil, &out)
	sum, err := a.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	out.Reset()
	if err := a.ListSessions(context.Background(), 10); err != nil {
		t.Fatalf("ListSessions: %v", err)
	}
	if !strings.Contains(out.String(), sum.SessionID) {
		t.Errorf("session %s not listed:\n%s", sum.SessionID, out.String())
	}

	path := filepath.Join(t.TempDir(), "export.html")
	if err := a.ExportReport(context.Background(), sum.SessionID, path); err != nil {
		t.Fatalf("ExportReport: %v", err)
	}
	if err := a.ExportReport(context.Background(), "missing", path); err == nil {
		t.Error("expected an error for an unknown session")
	}
}

func TestListWithoutStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Store.Path = ""
	a, _ := New(cfg, nil, &bytes.Buffer{})
	if err := a.ListSessions(context.Background(), 10); err == nil {
		t.Error("expected an error when no store is configured")
	}
}

func TestRunBadSource(t *testing.T) {
	cfg := testConfig(t)
	cfg.Market.Source = filepath.Join(t.TempDir(), "missing.csv")
	a, _ := New(cfg, nil, &bytes.Buffer{})
	if _, err := a.Run(context.Background()); err == nil {
		t.Error("expected an error for a missing price file")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Quiet = true
	a, _ := New(cfg, zaptest.NewLogger(t), &bytes.Buffer{})

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	if err := a.Serve(ctx); err != nil {
		t.Fatalf("Serve: %v", err)
	}
}
