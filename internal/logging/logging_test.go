package logging

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{" error ", slog.LevelError},
		{"bogus", slog.LevelInfo},
	}

	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestComponentAndContext(t *testing.T) {
	var buf bytes.Buffer
	InitWriter(&buf, slog.LevelInfo, false)

	Component("writer").Info("chunk appended", "rows", 3)

	ctx := ContextWithTable(ContextWithRunID(context.Background(), "r1"), "ticks")
	ctx = ContextWithFile(ctx, "EURUSD-ticks.csv")
	WithContext(ctx).Warn("file not found")

	out := buf.String()
	for _, want := range []string{"component=writer", "rows=3", "run_id=r1", "table=ticks", "file=EURUSD-ticks.csv"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}
