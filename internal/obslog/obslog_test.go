package obslog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestSettingsFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "warning")
	t.Setenv("LOG_FORMAT", "xml")
	t.Setenv("LOG_TO_CONSOLE", "false")
	t.Setenv("LOG_TO_FILE", "false")
	t.Setenv("LOG_FILE", "")
	t.Setenv("LOG_CALLER", "")

	s := SettingsFromEnv("chess-bot")
	if s.Level != zapcore.WarnLevel || s.Format != "legacy" || s.Console || s.File != "" {
		t.Fatalf("unexpected settings %+v", s)
	}
}

func TestDefaultLogFileNamedAfterComponent(t *testing.T) {
	t.Setenv("LOG_TO_FILE", "true")
	t.Setenv("LOG_FILE", "")
	s := SettingsFromEnv("botcheck")
	if s.File != filepath.Join("logs", "botcheck.log") {
		t.Fatalf("unexpected file %q", s.File)
	}
}

func TestNewWritesJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "bot.log")
	logger, err := New(Settings{Level: zapcore.InfoLevel, Format: "json", File: path, Component: "chess-bot"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.Debug("hidden")
	logger.Info("session_start", zap.String("game_id", "g1"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(raw)), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %q", raw)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not json: %v", err)
	}
	if entry["msg"] != "session_start" || entry["game_id"] != "g1" || entry["component"] != "chess-bot" {
		t.Fatalf("unexpected entry %v", entry)
	}
}
