package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"go.uber.org/zap"
)

// Fallback asks Primary first and Secondary when Primary fails. A primary "" (no move) is
// returned as is.
type Fallback struct {
	Primary   dispatch.MoveSelector
	Secondary dispatch.MoveSelector
	Logger    *zap.Logger
}

func (f *Fallback) SelectMove(ctx context.Context, pos position.Position) (string, error) {
	move, err := f.Primary.SelectMove(ctx, pos)
	if err == nil {
		return move, nil
	}
	if errors.Is(err, ErrIllegalHistory) || ctx.Err() != nil || f.Secondary == nil {
		return "", err
	}
	if f.Logger != nil {
		f.Logger.Warn("engine_fallback", zap.Int("ply", pos.MoveCount()), zap.Error(err))
	}
	move, serr := f.Secondary.SelectMove(ctx, pos)
	if serr != nil {
		return "", fmt.Errorf("fallback engine: %w", errors.Join(err, serr))
	}
	return move, nil
}
