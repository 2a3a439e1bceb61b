package slogutil

import (
	"bytes"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"
)

func TestHandlerFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo)

	logger.Info("Make pass finished", "added", 4, "module", "/src/a.js", "duration", 2*time.Second)

	line := buf.String()
	pattern := regexp.MustCompile(`^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z \[info\] Make pass finished \| added=4 module=/src/a.js duration=2s\n$`)
	if !pattern.MatchString(line) {
		t.Errorf("unexpected line: %q", line)
	}
}

func TestHandlerQuotesStrings(t *testing.T) {
	var buf bytes.Buffer
	NewLogger(&buf, slog.LevelInfo).Info("msg", "error", "cannot resolve ./x", "empty", "")

	out := buf.String()
	if !strings.Contains(out, `error="cannot resolve ./x"`) {
		t.Errorf("spaces should be quoted: %s", out)
	}
	if !strings.Contains(out, `empty=""`) {
		t.Errorf("empty string should be quoted: %s", out)
	}
}

func TestHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelInfo).With("session", "s1").WithGroup("pass")

	logger.Info("msg", "added", 1, slog.Group("cache", "hits", 2))

	out := buf.String()
	for _, want := range []string{"session=s1", "pass.added=1", "pass.cache.hits=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %s in %s", want, out)
		}
	}
}

func TestHandlerLevels(t *testing.T) {
	tests := []struct {
		log  func(*slog.Logger)
		want string
	}{
		{func(l *slog.Logger) { l.Debug("m") }, "[debug]"},
		{func(l *slog.Logger) { l.Info("m") }, "[info]"},
		{func(l *slog.Logger) { l.Warn("m") }, "[warn]"},
		{func(l *slog.Logger) { l.Error("m") }, "[error]"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			var buf bytes.Buffer
			tt.log(NewLogger(&buf, slog.LevelDebug))
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %s in %q", tt.want, buf.String())
			}
		})
	}
}

func TestHandlerLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, slog.LevelWarn)

	logger.Info("info message")
	logger.Warn("warn message")

	if strings.Contains(buf.String(), "info message") {
		t.Error("info message should be filtered")
	}
	if !strings.Contains(buf.String(), "warn message") {
		t.Error("warn message should be included")
	}
}

func TestNewFormatLogger(t *testing.T) {
	var buf bytes.Buffer
	NewFormatLogger(&buf, "JSON", slog.LevelInfo).Info("msg", "k", "v")
	if !strings.HasPrefix(buf.String(), "{") || !strings.Contains(buf.String(), `"k":"v"`) {
		t.Errorf("expected JSON output, got %s", buf.String())
	}

	buf.Reset()
	NewFormatLogger(&buf, "text", slog.LevelInfo).Info("msg")
	if !strings.Contains(buf.String(), "[info] msg") {
		t.Errorf("expected line output, got %s", buf.String())
	}
}

func TestLevelFromString(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"warning", slog.LevelWarn},
		{"Error", slog.LevelError},
		{"unknown", slog.LevelInfo},
		{"", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := LevelFromString(tt.input); got != tt.want {
			t.Errorf("LevelFromString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestLevelFromVerbosity(t *testing.T) {
	tests := []struct {
		verbosity int
		quiet     bool
		want      slog.Level
	}{
		{0, false, slog.LevelWarn},
		{1, false, slog.LevelInfo},
		{3, false, slog.LevelDebug},
		{5, true, Silent},
	}
	for _, tt := range tests {
		if got := LevelFromVerbosity(tt.verbosity, tt.quiet); got != tt.want {
			t.Errorf("LevelFromVerbosity(%d, %v) = %v, want %v", tt.verbosity, tt.quiet, got, tt.want)
		}
	}
}

func TestTeeHandler(t *testing.T) {
	var console, file bytes.Buffer
	logger := slog.New(NewTeeHandler(
		NewHandler(&console, &slog.HandlerOptions{Level: slog.LevelWarn}),
		NewHandler(&file, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)).With("session", "s1")

	logger.Debug("debug message")
	logger.Warn("warn message")

	if strings.Contains(console.String(), "debug message") {
		t.Error("console should not contain debug output")
	}
	if !strings.Contains(console.String(), "warn message | session=s1") {
		t.Errorf("console missing warn record: %s", console.String())
	}
	if !strings.Contains(file.String(), "debug message") || !strings.Contains(file.String(), "warn message") {
		t.Errorf("file should contain both records: %s", file.String())
	}
}
