package logger

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    zapcore.Level
		wantErr bool
	}{
		{"debug", zapcore.DebugLevel, false},
		{" INFO ", zapcore.InfoLevel, false},
		{"", zapcore.InfoLevel, false},
		{"warning", zapcore.WarnLevel, false},
		{"error", zapcore.ErrorLevel, false},
		{"verbose", zapcore.InfoLevel, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err = %v", tt.in, err)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNew(t *testing.T) {
	for _, format := range []string{"console", "json"} {
		log, err := New("warn", format)
		if err != nil {
			t.Fatalf("New(%q): %v", format, err)
		}
		if log.Core().Enabled(zapcore.InfoLevel) {
			t.Errorf("%s logger enabled below warn", format)
		}
		if !log.Core().Enabled(zapcore.ErrorLevel) {
			t.Errorf("%s logger drops errors", format)
		}
	}

	if _, err := New("info", "xml"); err == nil {
		t.Error("expected an error for an unknown format")
	}
}
