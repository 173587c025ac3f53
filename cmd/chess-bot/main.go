package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/botbuilder"
	appcfg "github.com/park285/Cheese-lichess-bot/internal/config"
	"github.com/park285/Cheese-lichess-bot/internal/obslog"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger, err := obslog.InitFromEnv("chess-bot")
	if err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := appcfg.Load()
	if err != nil {
		logger.Fatal("config_error", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	initCtx, initCancel := context.WithTimeout(ctx, 20*time.Second)
	deps, err := botbuilder.New(initCtx, cfg, logger)
	initCancel()
	if err != nil {
		logger.Fatal("bot_init_error", zap.Error(err))
	}
	defer func() {
		if err := deps.Close(); err != nil {
			logger.Warn("bot_close_error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("shutdown_signal", zap.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("bot_start",
		zap.String("account", deps.Account.Username),
		zap.String("transport", cfg.StreamTransport),
		zap.Int("max_games", cfg.MaxConcurrentGames),
		zap.Bool("engine", deps.Stockfish != nil),
		zap.Bool("session_store", deps.Store != nil),
		zap.Bool("archive", deps.Archive != nil),
	)
	_ = deps.Supervisor.Serve(ctx)

	// sessions observe the same context and settle on their own
	done := make(chan struct{})
	go func() {
		deps.Supervisor.Wait()
		close(done)
	}()
	select {
	case <-done:
		logger.Info("bot_stopped")
	case <-time.After(shutdownTimeout):
		logger.Warn("bot_stop_timeout", zap.Int("sessions", deps.Supervisor.Count()))
	}
}
