package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"go.uber.org/zap"
)

const (
	defaultPollInterval = 2 * time.Second
	recorderTimeout     = 3 * time.Second
)

// Config identifies one game session.
type Config struct {
	RunID        string
	GameID       string
	Color        position.Color
	PollInterval time.Duration
}

// Session is the per-game transport state machine: Streaming → Polling → Ended/Failed.
// Its lastActed counter is owned by the Run goroutine; the mutex only serves Info readers.
type Session struct {
	cfg        Config
	svc        GameService
	dispatcher *dispatch.Dispatcher
	recorder   Recorder
	logger     *zap.Logger

	mu        sync.RWMutex
	state     State
	lastActed int
	last      *position.Position
	startedAt time.Time
	updatedAt time.Time
}

func NewSession(cfg Config, svc GameService, d *dispatch.Dispatcher, rec Recorder, logger *zap.Logger) *Session {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if rec == nil {
		rec = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	now := time.Now()
	return &Session{
		cfg:        cfg,
		svc:        svc,
		dispatcher: d,
		recorder:   rec,
		logger:     logger.With(zap.String("game_id", cfg.GameID), zap.String("run_id", cfg.RunID)),
		state:      StateStreaming,
		lastActed:  position.NoMoveHandled,
		startedAt:  now,
		updatedAt:  now,
	}
}

// Run drives the session until a terminal state and returns it.
func (s *Session) Run(ctx context.Context) State {
	s.logger.Info("session_start", zap.String("color", string(s.cfg.Color)))
	s.record(ctx, "started", func(rctx context.Context) error {
		return s.recorder.SessionStarted(rctx, s.Info())
	})

	for {
		cur := s.State()
		if cur.Terminal() {
			break
		}
		var next State
		switch cur {
		case StateStreaming:
			next = s.runStreaming(ctx)
		case StatePolling:
			next = s.runPolling(ctx)
		default:
			next = StateFailed
		}
		s.transition(ctx, cur, next)
	}

	final := s.State()
	last := s.Last()
	fields := []zap.Field{zap.String("state", string(final)), zap.Int("last_acted", s.LastActed())}
	if last != nil {
		fields = append(fields, zap.Int("move_count", last.MoveCount()), zap.String("reason", last.Reason))
	}
	s.logger.Info("session_end", fields...)
	s.record(ctx, "closed", func(rctx context.Context) error {
		return s.recorder.SessionClosed(rctx, s.Info(), last)
	})
	return final
}

func (s *Session) runStreaming(ctx context.Context) State {
	stream, err := s.svc.StreamGameState(ctx, s.cfg.GameID)
	if err != nil || stream == nil {
		if ctx.Err() != nil {
			return StateStopped
		}
		s.logger.Warn("session_stream_unavailable", zap.Error(err))
		return StatePolling
	}
	defer func() { _ = stream.Close() }()

	for {
		payload, err := stream.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return StateStopped
			}
			if errors.Is(err, position.ErrMalformedPayload) {
				s.logger.Warn("session_item_error", zap.String("via", "stream"), zap.Error(err))
				if s.pause(ctx) != nil {
					return StateStopped
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("session_stream_closed")
			} else {
				s.logger.Warn("session_stream_lost", zap.Error(err))
			}
			return StatePolling
		}

		ended, err := s.process(ctx, payload)
		if err != nil {
			s.logger.Warn("session_item_error", zap.String("via", "stream"), zap.String("payload", position.Kind(payload)), zap.Error(err))
			if s.pause(ctx) != nil {
				return StateStopped
			}
			continue
		}
		if ended {
			return StateEnded
		}
	}
}

func (s *Session) runPolling(ctx context.Context) State {
	for {
		payload, err := s.svc.FetchGameState(ctx, s.cfg.GameID)
		if err != nil {
			if ctx.Err() != nil {
				return StateStopped
			}
			s.logger.Error("session_fetch_failed", zap.Error(err))
			return StateFailed
		}

		ended, err := s.process(ctx, payload)
		if err != nil {
			s.logger.Warn("session_item_error", zap.String("via", "poll"), zap.String("payload", position.Kind(payload)), zap.Error(err))
		} else if ended {
			return StateEnded
		}

		if s.pause(ctx) != nil {
			return StateStopped
		}
	}
}

// process is the shared normalize → resolve → dispatch pipeline. Panics are turned into
// per-item errors so that one bad frame cannot take the session down.
func (s *Session) process(ctx context.Context, p position.Payload) (ended bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing state: %v", r)
		}
	}()

	if position.Informational(p) {
		return false, nil
	}

	pos := position.Normalize(p)
	s.setLast(pos)

	d := position.Resolve(pos, s.cfg.Color, s.LastActed())
	if d.SessionEnd {
		s.logger.Info("session_game_over",
			zap.String("reason", pos.Reason),
			zap.String("winner", pos.Winner),
			zap.Int("move_count", pos.MoveCount()),
		)
		return true, nil
	}
	if !d.ShouldAct {
		return false, nil
	}

	res, err := s.dispatcher.Dispatch(ctx, s.cfg.GameID, pos)
	if err != nil {
		return false, err
	}
	if res.Final() {
		s.setLastActed(pos.MoveCount())
	}
	if res.Outcome != dispatch.OutcomeNoMove {
		s.record(ctx, "attempt", func(rctx context.Context) error {
			return s.recorder.MoveAttempted(rctx, s.Info(), pos.MoveCount(), res)
		})
	}
	return false, nil
}

func (s *Session) pause(ctx context.Context) error {
	return sleepCtx(ctx, s.cfg.PollInterval)
}

func (s *Session) transition(ctx context.Context, from, to State) {
	if from == to {
		return
	}
	s.mu.Lock()
	s.state = to
	s.updatedAt = time.Now()
	s.mu.Unlock()

	s.logger.Info("session_transition", zap.String("from", string(from)), zap.String("to", string(to)))
	s.record(ctx, "transition", func(rctx context.Context) error {
		return s.recorder.SessionTransition(rctx, s.Info(), from)
	})
}

// record runs a recorder call detached from cancellation so shutdown still gets reported.
func (s *Session) record(ctx context.Context, what string, fn func(context.Context) error) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recorderTimeout)
	defer cancel()
	if err := fn(rctx); err != nil {
		s.logger.Warn("session_record_error", zap.String("what", what), zap.Error(err))
	}
}

// Info returns a snapshot safe to read from other goroutines.
func (s *Session) Info() HandleInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return HandleInfo{
		RunID:     s.cfg.RunID,
		GameID:    s.cfg.GameID,
		Color:     s.cfg.Color,
		State:     s.state,
		LastActed: s.lastActed,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}

func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Session) LastActed() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastActed
}

// Last returns the most recently observed position, or nil.
func (s *Session) Last() *position.Position {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.last
}

func (s *Session) setLast(p position.Position) {
	s.mu.Lock()
	s.last = &p
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func (s *Session) setLastActed(n int) {
	s.mu.Lock()
	s.lastActed = n
	s.updatedAt = time.Now()
	s.mu.Unlock()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
