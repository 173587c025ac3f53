package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	LichessBaseURL string `yaml:"lichess_base_url" env:"LICHESS_BASE_URL"`
	LichessToken   string `yaml:"lichess_token" env:"LICHESS_TOKEN"`

	// StreamTransport selects the per-game push source: "http" (ndjson) or "ws".
	StreamTransport string `yaml:"stream_transport" env:"STREAM_TRANSPORT"`
	StreamWSURL     string `yaml:"stream_ws_url" env:"STREAM_WS_URL"`

	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" env:"HTTP_TIMEOUT"`
	HTTPRetry    int           `yaml:"http_retry" env:"HTTP_RETRY"`

	MaxConcurrentGames  int           `yaml:"max_concurrent_games" env:"MAX_CONCURRENT_GAMES"`
	AcceptChallenges    bool          `yaml:"accept_challenges" env:"ACCEPT_CHALLENGES"`
	AllowedVariants     []string      `yaml:"allowed_variants" env:"ALLOWED_VARIANTS" envSeparator:","`
	EventReconnectDelay time.Duration `yaml:"event_reconnect_delay" env:"EVENT_RECONNECT_DELAY"`

	StockfishPath    string `yaml:"stockfish_path" env:"STOCKFISH_PATH"`
	EngineSkillLevel int    `yaml:"engine_skill_level" env:"ENGINE_SKILL_LEVEL"`
	EngineMoveTimeMS int    `yaml:"engine_move_time_ms" env:"ENGINE_MOVE_TIME_MS"`
	EngineDepth      int    `yaml:"engine_depth" env:"ENGINE_DEPTH"`
	EngineThreads    int    `yaml:"engine_threads" env:"ENGINE_THREADS"`
	EngineHashMB     int    `yaml:"engine_hash_mb" env:"ENGINE_HASH_MB"`
	EngineElo        int    `yaml:"engine_elo" env:"ENGINE_ELO"`
	EnginePoolSize   int    `yaml:"engine_pool_size" env:"ENGINE_POOL_SIZE"`

	RedisURL    string `yaml:"redis_url" env:"REDIS_URL"`
	DatabaseURL string `yaml:"database_url" env:"DATABASE_URL"`
}

func defaults() *AppConfig {
	return &AppConfig{
		LichessBaseURL:      "https://lichess.org",
		StreamTransport:     "http",
		PollInterval:        2 * time.Second,
		HTTPTimeout:         10 * time.Second,
		HTTPRetry:           2,
		MaxConcurrentGames:  4,
		AcceptChallenges:    true,
		AllowedVariants:     []string{"standard"},
		EventReconnectDelay: 5 * time.Second,
		EngineSkillLevel:    20,
		EngineMoveTimeMS:    500,
		EngineThreads:       1,
		EngineHashMB:        16,
	}
}

// Load applies defaults, then the YAML file named by CONFIG_FILE (if any), then the environment.
func Load() (*AppConfig, error) {
	cfg := defaults()

	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.normalize()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) normalize() {
	c.LichessBaseURL = strings.TrimRight(strings.TrimSpace(c.LichessBaseURL), "/")
	c.LichessToken = strings.TrimSpace(c.LichessToken)
	c.StreamTransport = strings.ToLower(strings.TrimSpace(c.StreamTransport))
	c.StreamWSURL = strings.TrimSpace(c.StreamWSURL)
	c.StockfishPath = strings.TrimSpace(c.StockfishPath)
	c.RedisURL = strings.TrimSpace(c.RedisURL)
	c.DatabaseURL = strings.TrimSpace(c.DatabaseURL)

	variants := c.AllowedVariants[:0]
	for _, v := range c.AllowedVariants {
		if s := strings.TrimSpace(v); s != "" {
			variants = append(variants, s)
		}
	}
	c.AllowedVariants = variants
}

func (c *AppConfig) validate() error {
	if c.LichessToken == "" {
		return errors.New("LICHESS_TOKEN is required")
	}
	if c.LichessBaseURL == "" {
		return errors.New("LICHESS_BASE_URL is required")
	}
	switch c.StreamTransport {
	case "http":
	case "ws":
		if c.StreamWSURL == "" {
			return errors.New("STREAM_WS_URL is required when STREAM_TRANSPORT=ws")
		}
	default:
		return fmt.Errorf("STREAM_TRANSPORT must be http or ws, got %q", c.StreamTransport)
	}
	if c.PollInterval <= 0 {
		return errors.New("POLL_INTERVAL must be positive")
	}
	if c.MaxConcurrentGames <= 0 {
		return errors.New("MAX_CONCURRENT_GAMES must be positive")
	}
	if c.HTTPRetry < 0 {
		return errors.New("HTTP_RETRY must not be negative")
	}
	if c.EngineSkillLevel < 0 || c.EngineSkillLevel > 20 {
		return fmt.Errorf("ENGINE_SKILL_LEVEL out of range: %d", c.EngineSkillLevel)
	}
	return nil
}
