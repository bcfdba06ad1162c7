package logging

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestCompactHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	log.Info("switched investigation",
		"investigation", "0190a1b2-c3d4-7e5f-8a9b-0c1d2e3f4a5b",
		"name", "Pont Chauderon",
		"edges", 3,
	)

	line := buf.String()
	if !strings.HasPrefix(line, "[INFO]  ") {
		t.Errorf("missing level prefix: %q", line)
	}
	if !strings.Contains(line, "investigation=0190a1b2 ") {
		t.Errorf("investigation id not shortened: %q", line)
	}
	if !strings.Contains(line, `name="Pont Chauderon"`) {
		t.Errorf("string with space not quoted: %q", line)
	}
	if !strings.Contains(line, "edges=3") {
		t.Errorf("int attr missing: %q", line)
	}
}

func TestCompactHandlerWithAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := slog.New(NewCompactHandler(&buf, nil)).With("component", "persistence")

	log.Warn("write dropped", "error", "quota exceeded")
	log.Debug("hidden")

	out := buf.String()
	if !strings.Contains(out, "component=persistence") {
		t.Errorf("WithAttrs attribute missing: %q", out)
	}
	if !strings.Contains(out, `error="quota exceeded"`) {
		t.Errorf("error attr not quoted: %q", out)
	}
	if strings.Contains(out, "hidden") {
		t.Errorf("debug line logged at default info level: %q", out)
	}
}

func TestSetOutputCapturesPackageHelpers(t *testing.T) {
	var buf bytes.Buffer
	prev := SetOutput(&buf)
	defer SetOutput(prev)

	Warn("malformed share token", "param", "inv")
	if !strings.Contains(buf.String(), "[WARN]  ") || !strings.Contains(buf.String(), "param=inv") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name    string
		verbose int
		want    slog.Level
	}{
		{"", 0, slog.LevelInfo},
		{"", 1, slog.LevelDebug},
		{"", 3, LevelTrace},
		{"WARN", 2, slog.LevelWarn},
		{"error", 0, slog.LevelError},
		{"bogus", 0, slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.name, tt.verbose); got != tt.want {
			t.Errorf("ParseLevel(%q, %d) = %v, want %v", tt.name, tt.verbose, got, tt.want)
		}
	}
}
