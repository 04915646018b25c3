package cli

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"adaptrader/internal/config"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	if err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(out) != "adaptrader "+Version {
		t.Errorf("version output = %q", out)
	}
}

func TestRunSynthetic(t *testing.T) {
	db := filepath.Join(t.TempDir(), "sessions.db")
	out, err := execute(t, "run", "--source", "synthetic", "--max-steps", "3", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, want := range []string{"Step 00", "Step 02", "Trading session completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Step 03") {
		t.Errorf("max-steps not honoured:\n%s", out)
	}

	out, err = execute(t, "sessions", "--db", db, "--log-level", "error")
	if err != nil {
		t.Fatalf("sessions: %v", err)
	}
	if !strings.Contains(out, "synthetic") {
		t.Errorf("stored session not listed:\n%s", out)
	}
}

func TestRunRejectsBadFlags(t *testing.T) {
	tests := [][]string{
		{"run", "--max-steps", "-1"},
		{"run", "--interval", "-0.5"},
		{"run", "--log-level", "loud"},
		{"run", "extra"},
		{"sessions", "export"},
	}
	for _, args := range tests {
		if _, err := execute(t, args...); err == nil {
			t.Errorf("%v: expected an error", args)
		}
	}
}

func TestApplyFlagsOnlyChanged(t *testing.T) {
	cmd := newServeCmd()
	if err := cmd.ParseFlags([]string{"--addr", "127.0.0.1:9999", "--quiet"}); err != nil {
		t.Fatal(err)
	}
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	source := cfg.Market.Source
	if err := applyFlags(cmd, cfg); err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Addr != "127.0.0.1:9999" {
		t.Errorf("addr = %q", cfg.Server.Addr)
	}
	if !cfg.Output.Quiet {
		t.Error("quiet not applied")
	}
	if cfg.Market.Source != source {
		t.Errorf("unchanged source overwritten: %q", cfg.Market.Source)
	}
}
