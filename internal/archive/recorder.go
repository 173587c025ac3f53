package archive

import (
	"context"
	"sync"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/engine"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"github.com/park285/Cheese-lichess-bot/internal/session"
	"go.uber.org/zap"
)

type resultSaver interface {
	SaveResult(ctx context.Context, g *GameRecord) error
}

// Recorder archives games whose session reached the ended state. Failed and stopped runs are not
// archived because the game may still be going on.
type Recorder struct {
	repo   resultSaver
	logger *zap.Logger

	mu       sync.Mutex
	attempts map[string]int
}

func NewRecorder(repo resultSaver, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{repo: repo, logger: logger, attempts: make(map[string]int)}
}

func (r *Recorder) SessionStarted(context.Context, session.HandleInfo) error { return nil }

func (r *Recorder) SessionTransition(context.Context, session.HandleInfo, session.State) error {
	return nil
}

func (r *Recorder) MoveAttempted(_ context.Context, info session.HandleInfo, _ int, _ dispatch.Result) error {
	r.mu.Lock()
	r.attempts[info.RunID]++
	r.mu.Unlock()
	return nil
}

func (r *Recorder) SessionClosed(ctx context.Context, info session.HandleInfo, last *position.Position) error {
	r.mu.Lock()
	attempts := r.attempts[info.RunID]
	delete(r.attempts, info.RunID)
	r.mu.Unlock()

	if info.State != session.StateEnded || last == nil {
		return nil
	}
	rec := r.buildRecord(info, last, attempts)
	if err := r.repo.SaveResult(ctx, rec); err != nil {
		return err
	}
	r.logger.Info("game_archived",
		zap.String("game_id", rec.GameID),
		zap.String("result", mapResultToPGN(rec.Result)),
		zap.Int("moves", len(rec.MovesUCI)),
	)
	return nil
}

func (r *Recorder) buildRecord(info session.HandleInfo, last *position.Position, attempts int) *GameRecord {
	rec := &GameRecord{
		GameID:   info.GameID,
		RunID:    info.RunID,
		Color:    string(info.Color),
		Result:   resultOf(last.Winner, last.Reason),
		Reason:   last.Reason,
		MovesUCI: last.Moves,
		Attempts: attempts,
		Started:  info.StartedAt,
		Ended:    info.UpdatedAt,
	}
	if rec.Ended.IsZero() {
		rec.Ended = time.Now()
	}
	// export 스냅샷은 SAN, 스트림 스냅샷은 UCI: 두 형식 모두 저장
	if _, uciMoves, err := engine.Replay(last.Moves); err == nil {
		rec.MovesUCI = uciMoves
		if san, err := engine.SANMoves(uciMoves); err == nil {
			rec.MovesSAN = san
		}
	} else {
		r.logger.Warn("archive_replay_failed", zap.String("game_id", info.GameID), zap.Error(err))
	}
	return rec
}

var _ session.Recorder = (*Recorder)(nil)
