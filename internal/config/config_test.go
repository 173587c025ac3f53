package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LICHESS_TOKEN", "lip_x")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LichessBaseURL != "https://lichess.org" || cfg.StreamTransport != "http" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.PollInterval != 2*time.Second || cfg.EngineMoveTimeMS != 500 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if len(cfg.AllowedVariants) != 1 || cfg.AllowedVariants[0] != "standard" {
		t.Fatalf("unexpected variants: %v", cfg.AllowedVariants)
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LICHESS_TOKEN", " ")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error without token")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LICHESS_TOKEN", "lip_x")
	t.Setenv("LICHESS_BASE_URL", "http://localhost:8080/")
	t.Setenv("POLL_INTERVAL", "750ms")
	t.Setenv("ALLOWED_VARIANTS", "standard, chess960,")
	t.Setenv("ACCEPT_CHALLENGES", "false")
	t.Setenv("MAX_CONCURRENT_GAMES", "9")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LichessBaseURL != "http://localhost:8080" {
		t.Fatalf("base url not trimmed: %q", cfg.LichessBaseURL)
	}
	if cfg.PollInterval != 750*time.Millisecond {
		t.Fatalf("poll interval: %v", cfg.PollInterval)
	}
	if len(cfg.AllowedVariants) != 2 || cfg.AllowedVariants[1] != "chess960" {
		t.Fatalf("variants: %v", cfg.AllowedVariants)
	}
	if cfg.AcceptChallenges || cfg.MaxConcurrentGames != 9 {
		t.Fatalf("unexpected %+v", cfg)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bot.yaml")
	body := "stream_transport: ws\nstream_ws_url: wss://relay.example/game/{gameId}\npoll_interval: 5s\nengine_pool_size: 3\n"
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("LICHESS_TOKEN", "lip_x")
	t.Setenv("ENGINE_POOL_SIZE", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StreamTransport != "ws" || cfg.PollInterval != 5*time.Second {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.EnginePoolSize != 2 {
		t.Fatalf("env should override file, got %d", cfg.EnginePoolSize)
	}
}

func TestLoadRejectsWSWithoutURL(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("LICHESS_TOKEN", "lip_x")
	t.Setenv("STREAM_TRANSPORT", "ws")
	t.Setenv("STREAM_WS_URL", "")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
	t.Setenv("LICHESS_TOKEN", "lip_x")
	if _, err := Load(); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
