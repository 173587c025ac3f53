// Package obslog owns the process-wide zap logger.
package obslog

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var globalLogger = zap.NewNop()

// L는 전역 로거를 반환. InitFromEnv 전에는 no-op 로거.
func L() *zap.Logger { return globalLogger }

// Settings mirrors the LOG_* environment.
type Settings struct {
	Level     zapcore.Level
	Format    string // legacy, json or console
	Console   bool
	File      string // empty disables file output
	Caller    bool
	Component string
}

// SettingsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE, LOG_FILE and LOG_CALLER.
func SettingsFromEnv(component string) Settings {
	s := Settings{
		Level:     parseLevel(getenvDefault("LOG_LEVEL", "info")),
		Format:    parseFormat(getenvDefault("LOG_FORMAT", "legacy")),
		Console:   strings.EqualFold(getenvDefault("LOG_TO_CONSOLE", "true"), "true"),
		Caller:    strings.EqualFold(getenvDefault("LOG_CALLER", "false"), "true"),
		Component: component,
	}
	if strings.EqualFold(getenvDefault("LOG_TO_FILE", "true"), "true") {
		s.File = strings.TrimSpace(getenvDefault("LOG_FILE", filepath.Join("logs", component+".log")))
	}
	return s
}

// InitFromEnv는 환경설정으로 zap 로거를 만들고 L()로 설치.
func InitFromEnv(component string) (*zap.Logger, error) {
	logger, err := New(SettingsFromEnv(component))
	if err != nil {
		return nil, err
	}
	globalLogger = logger
	return logger, nil
}

func New(s Settings) (*zap.Logger, error) {
	var cores []zapcore.Core
	if s.Console {
		cores = append(cores, zapcore.NewCore(encoderFor(s.Format), zapcore.AddSync(os.Stdout), s.Level))
	}
	if s.File != "" {
		if err := ensureDir(filepath.Dir(s.File)); err != nil {
			return nil, err
		}
		f, err := os.OpenFile(s.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(encoderFor(s.Format), zapcore.AddSync(f), s.Level))
	}
	if len(cores) == 0 {
		enc := zapcore.NewConsoleEncoder(zap.NewDevelopmentEncoderConfig())
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(os.Stdout), s.Level))
	}

	logger := zap.New(zapcore.NewTee(cores...))
	if s.Caller || s.Format == "legacy" {
		logger = logger.WithOptions(zap.AddCaller())
	}
	logger = logger.WithOptions(zap.AddStacktrace(zapcore.ErrorLevel))
	if s.Component != "" {
		logger = logger.With(zap.String("component", s.Component))
	}
	return logger, nil
}

func encoderFor(format string) zapcore.Encoder {
	switch format {
	case "json":
		return zapcore.NewJSONEncoder(jsonEncoderConfig())
	case "console":
		return zapcore.NewConsoleEncoder(consoleEncoderConfig())
	default:
		return zapcore.NewConsoleEncoder(legacyEncoderConfig())
	}
}

func ensureDir(dir string) error {
	if strings.TrimSpace(dir) == "" || dir == "." {
		return nil
	}
	if _, err := os.Stat(dir); err == nil {
		return nil
	}
	return os.MkdirAll(dir, 0o755)
}

func parseFormat(s string) string {
	switch f := strings.ToLower(strings.TrimSpace(s)); f {
	case "json", "console":
		return f
	default:
		return "legacy"
	}
}

func parseLevel(s string) zapcore.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func getenvDefault(k, def string) string {
	v := os.Getenv(k)
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}

// 인코더 설정들
func legacyEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.ConsoleSeparator = " | "
	return cfg
}

func consoleEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return cfg
}

func jsonEncoderConfig() zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	return cfg
}
