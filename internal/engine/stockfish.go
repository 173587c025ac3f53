package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/engine/uci"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"go.uber.org/zap"
)

// Stockfish selects moves with pooled UCI engine processes.
type Stockfish struct {
	pool   *uci.Pool
	limits uci.Limits
	logger *zap.Logger
}

func NewStockfish(pool *uci.Pool, limits uci.Limits, logger *zap.Logger) *Stockfish {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limits.Depth <= 0 && limits.MoveTimeMillis <= 0 && limits.NodeCap <= 0 {
		limits.MoveTimeMillis = 500
	}
	return &Stockfish{pool: pool, limits: limits, logger: logger}
}

// SelectMove returns the engine's best move in UCI, or "" when the position has none.
func (s *Stockfish) SelectMove(ctx context.Context, pos position.Position) (move string, err error) {
	_, history, err := Replay(pos.Moves)
	if err != nil {
		return "", err
	}

	proc, err := s.pool.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire engine: %w", err)
	}
	defer func() {
		s.pool.Release(proc, err)
	}()

	if err = proc.NewGame(ctx); err != nil {
		return "", err
	}

	start := time.Now()
	resp, err := proc.Search(ctx, uci.SearchRequest{Moves: history, Limits: s.limits})
	if err != nil {
		return "", err
	}

	fields := []zap.Field{
		zap.Int("ply", len(history)),
		zap.String("best", resp.BestMove),
		zap.Duration("took", time.Since(start)),
	}
	if len(resp.Candidates) > 0 {
		fields = append(fields, zap.Int("eval_cp", resp.Candidates[0].EvalCP))
	}
	s.logger.Debug("engine_search", fields...)
	return resp.BestMove, nil
}

func (s *Stockfish) Close() error {
	if s.pool == nil {
		return nil
	}
	return s.pool.Close()
}
