// Package botbuilder wires the bot's components from an AppConfig.
package botbuilder

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/archive"
	"github.com/park285/Cheese-lichess-bot/internal/config"
	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/engine"
	"github.com/park285/Cheese-lichess-bot/internal/engine/uci"
	"github.com/park285/Cheese-lichess-bot/internal/lichess"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"github.com/park285/Cheese-lichess-bot/internal/sessionstore"
	"go.uber.org/zap"
)

type Deps struct {
	Account    *lichess.Account
	Client     *lichess.Client
	Service    session.GameService
	Supervisor *session.Supervisor

	// optional parts, nil when not configured
	Stockfish *engine.Stockfish
	Store     *sessionstore.Store
	Archive   *archive.Repository
}

// New checks the token against the account endpoint and builds everything the supervisor needs.
// Extra client options are applied after the ones derived from cfg.
func New(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger, opts ...lichess.Option) (deps *Deps, err error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	deps = &Deps{}
	defer func() {
		if err != nil {
			_ = deps.Close()
			deps = nil
		}
	}()

	clientOpts := append([]lichess.Option{
		lichess.WithTimeout(cfg.HTTPTimeout),
		lichess.WithRetry(cfg.HTTPRetry),
		lichess.WithLogger(logger.Named("lichess")),
	}, opts...)
	deps.Client = lichess.NewClient(cfg.LichessBaseURL, cfg.LichessToken, clientOpts...)

	acc, err := deps.Client.Account(ctx)
	if err != nil {
		return deps, fmt.Errorf("lichess account: %w", err)
	}
	deps.Account = acc
	logger.Info("lichess_account", zap.String("username", acc.Username), zap.String("title", acc.Title))

	var ws *lichess.WSSource
	if cfg.StreamTransport == "ws" {
		ws = lichess.NewWSSource(cfg.StreamWSURL, cfg.LichessToken, logger.Named("ws"))
	}
	deps.Service = lichess.NewGameService(cfg.StreamTransport, deps.Client, ws, logger)

	selector, err := deps.buildSelector(cfg, logger)
	if err != nil {
		return deps, err
	}
	dispatcher := dispatch.New(selector, deps.Service, logger.Named("dispatch"))

	var recorders session.Recorders
	if cfg.RedisURL != "" {
		deps.Store, err = sessionstore.Open(ctx, cfg.RedisURL)
		if err != nil {
			return deps, fmt.Errorf("init session store: %w", err)
		}
		recorders = append(recorders, deps.Store)
	}
	if cfg.DatabaseURL != "" {
		deps.Archive, err = archive.NewRepository(ctx, cfg.DatabaseURL, acc.Username)
		if err != nil {
			return deps, fmt.Errorf("init archive: %w", err)
		}
		if err := deps.Archive.EnsureSchema(ctx); err != nil {
			return deps, fmt.Errorf("archive schema: %w", err)
		}
		recorders = append(recorders, archive.NewRecorder(deps.Archive, logger.Named("archive")))
	}

	var rec session.Recorder = session.NopRecorder{}
	if len(recorders) > 0 {
		rec = recorders
	}

	deps.Supervisor = session.NewSupervisor(deps.Service, dispatcher, rec, session.SupervisorConfig{
		PollInterval:       cfg.PollInterval,
		ReconnectDelay:     cfg.EventReconnectDelay,
		AcceptChallenges:   cfg.AcceptChallenges,
		AllowedVariants:    append([]string(nil), cfg.AllowedVariants...),
		MaxConcurrentGames: cfg.MaxConcurrentGames,
	}, logger.Named("session"))
	return deps, nil
}

// buildSelector returns Stockfish backed by the random mover, or the random mover alone when no
// engine binary is configured.
func (d *Deps) buildSelector(cfg *config.AppConfig, logger *zap.Logger) (dispatch.MoveSelector, error) {
	random := engine.NewRandomMover(time.Now().UnixNano())
	if cfg.StockfishPath == "" {
		logger.Warn("engine_random_only", zap.String("reason", "STOCKFISH_PATH not set"))
		return random, nil
	}
	pool, err := uci.NewPool(uci.PoolConfig{
		BinaryPath: cfg.StockfishPath,
		Options: uci.Options{
			Threads:    cfg.EngineThreads,
			SkillLevel: cfg.EngineSkillLevel,
			HashMB:     cfg.EngineHashMB,
			Elo:        cfg.EngineElo,
		},
		Capacity: cfg.EnginePoolSize,
		Logger:   logger.Named("uci"),
	})
	if err != nil {
		return nil, fmt.Errorf("init engine: %w", err)
	}
	d.Stockfish = engine.NewStockfish(pool, uci.Limits{
		Depth:          cfg.EngineDepth,
		MoveTimeMillis: cfg.EngineMoveTimeMS,
	}, logger.Named("engine"))
	return &engine.Fallback{Primary: d.Stockfish, Secondary: random, Logger: logger.Named("engine")}, nil
}

// Close releases engine processes and storage connections. Running sessions must be stopped first.
func (d *Deps) Close() error {
	if d == nil {
		return nil
	}
	var errs []error
	if d.Stockfish != nil {
		errs = append(errs, d.Stockfish.Close())
	}
	if d.Store != nil {
		errs = append(errs, d.Store.Close())
	}
	if d.Archive != nil {
		errs = append(errs, d.Archive.Close())
	}
	return errors.Join(errs...)
}
