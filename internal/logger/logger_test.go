package logger

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"DEBUG":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q): expected %v, got %v", in, want, got)
		}
	}
}

func TestNewWritesToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hermod.log")
	log := New(Config{Path: path, Level: "debug", NoColor: true})
	log.Info("hello", "answer", 42)

	b, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Expected log file: %v", err)
	}
	if !strings.Contains(string(b), "hello") || !strings.Contains(string(b), "answer=42") {
		t.Errorf("Unexpected log contents: %s", b)
	}
}

func TestNewDefaults(t *testing.T) {
	log := New(Config{})
	if log == nil {
		t.Fatal("Expected logger")
	}
	log.Debug("suppressed at default level")
}
