package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
	"go.uber.org/zap"
)

const (
	defaultReconnectDelay = 5 * time.Second
	maxReconnectShift     = 6
)

// Decline reasons understood by the game service.
const (
	DeclineGeneric = "generic"
	DeclineLater   = "later"
	DeclineVariant = "variant"
)

type SupervisorConfig struct {
	PollInterval   time.Duration
	ReconnectDelay time.Duration
	// AcceptChallenges=false declines every incoming challenge.
	AcceptChallenges bool
	// AllowedVariants is matched case-insensitively; empty allows every variant.
	AllowedVariants []string
	// MaxConcurrentGames <= 0 means unlimited.
	MaxConcurrentGames int
}

// Supervisor consumes lifecycle events, answers challenges and keeps one Session per game.
type Supervisor struct {
	svc        GameService
	dispatcher *dispatch.Dispatcher
	recorder   Recorder
	cfg        SupervisorConfig
	logger     *zap.Logger
	newRunID   func() string

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

func NewSupervisor(svc GameService, d *dispatch.Dispatcher, rec Recorder, cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	if rec == nil {
		rec = NopRecorder{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = defaultReconnectDelay
	}
	return &Supervisor{
		svc:        svc,
		dispatcher: d,
		recorder:   rec,
		cfg:        cfg,
		logger:     logger,
		newRunID:   uuid.NewString,
		sessions:   make(map[string]*Session),
	}
}

// Serve subscribes to the event stream and re-subscribes with backoff whenever it drops.
// It returns only when ctx is cancelled.
func (s *Supervisor) Serve(ctx context.Context) error {
	attempt := 0
	for {
		events, err := s.svc.StreamEvents(ctx)
		if err == nil {
			err = s.Run(ctx, events)
			_ = events.Close()
			if err == nil {
				attempt = 0
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		attempt++
		delay := reconnectDelay(s.cfg.ReconnectDelay, attempt)
		s.logger.Warn("event_stream_reconnect",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)
		if sleepCtx(ctx, delay) != nil {
			return ctx.Err()
		}
	}
}

// Run consumes one event stream until it ends. Malformed events and per-event failures are
// logged and skipped. io.EOF from the stream yields a nil error.
func (s *Supervisor) Run(ctx context.Context, events EventStream) error {
	s.logger.Info("event_stream_open")
	for {
		ev, err := events.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, ErrMalformedEvent) {
				s.logger.Warn("event_malformed", zap.Error(err))
				continue
			}
			if errors.Is(err, io.EOF) {
				s.logger.Info("event_stream_closed")
				return nil
			}
			return fmt.Errorf("event stream: %w", err)
		}
		if err := s.handleEvent(ctx, ev); err != nil {
			s.logger.Warn("event_handle_error", zap.String("type", string(ev.Type)), zap.Error(err))
		}
	}
}

func (s *Supervisor) handleEvent(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while handling event: %v", r)
		}
	}()

	switch ev.Type {
	case EventChallenge:
		if ev.Challenge == nil || ev.Challenge.ID == "" {
			return errors.New("challenge event without id")
		}
		s.answerChallenge(ctx, *ev.Challenge)
		return nil
	case EventGameStart:
		if ev.Game == nil || ev.Game.ID == "" {
			return errors.New("gameStart event without game id")
		}
		color, err := position.ParseColor(ev.Game.Color)
		if err != nil {
			return fmt.Errorf("game %s: %w", ev.Game.ID, err)
		}
		s.startSession(ctx, ev.Game.ID, color)
		return nil
	case EventGameFinish:
		if ev.Game != nil {
			s.logger.Info("event_game_finish", zap.String("game_id", ev.Game.ID))
		}
		return nil
	default:
		s.logger.Debug("event_ignored", zap.String("type", string(ev.Type)), zap.String("raw", ev.Raw))
		return nil
	}
}

func (s *Supervisor) answerChallenge(ctx context.Context, ch ChallengeRef) {
	fields := []zap.Field{
		zap.String("challenge_id", ch.ID),
		zap.String("variant", ch.Variant),
		zap.String("speed", ch.Speed),
		zap.String("challenger", ch.Challenger),
	}

	if reason := s.admit(ch); reason != "" {
		if err := s.svc.DeclineChallenge(ctx, ch.ID, reason); err != nil {
			s.logger.Warn("challenge_decline_failed", append(fields, zap.Error(err))...)
			return
		}
		s.logger.Info("challenge_declined", append(fields, zap.String("reason", reason))...)
		return
	}

	if err := s.svc.AcceptChallenge(ctx, ch.ID); err != nil {
		s.logger.Warn("challenge_accept_failed", append(fields, zap.Error(err))...)
		return
	}
	s.logger.Info("challenge_accepted", fields...)
}

// admit returns the decline reason, or "" when the challenge should be accepted.
func (s *Supervisor) admit(ch ChallengeRef) string {
	if !s.cfg.AcceptChallenges {
		return DeclineGeneric
	}
	if len(s.cfg.AllowedVariants) > 0 && ch.Variant != "" {
		v := strings.ToLower(ch.Variant)
		if !slices.ContainsFunc(s.cfg.AllowedVariants, func(a string) bool { return strings.ToLower(a) == v }) {
			return DeclineVariant
		}
	}
	if s.cfg.MaxConcurrentGames > 0 && s.Count() >= s.cfg.MaxConcurrentGames {
		return DeclineLater
	}
	return ""
}

// startSession spawns a session for gameID unless one is already running.
func (s *Supervisor) startSession(ctx context.Context, gameID string, color position.Color) {
	s.mu.Lock()
	if existing, ok := s.sessions[gameID]; ok {
		s.mu.Unlock()
		s.logger.Info("session_already_running",
			zap.String("game_id", gameID),
			zap.String("run_id", existing.Info().RunID),
		)
		return
	}
	sess := NewSession(Config{
		RunID:        s.newRunID(),
		GameID:       gameID,
		Color:        color,
		PollInterval: s.cfg.PollInterval,
	}, s.svc, s.dispatcher, s.recorder, s.logger)
	s.sessions[gameID] = sess
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer s.remove(gameID, sess)
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("session_panic", zap.String("game_id", gameID), zap.Any("panic", r))
			}
		}()
		sess.Run(ctx)
	}()
}

func (s *Supervisor) remove(gameID string, sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sessions[gameID] == sess {
		delete(s.sessions, gameID)
	}
}

// Count is the number of live sessions.
func (s *Supervisor) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// Active lists live sessions, oldest first.
func (s *Supervisor) Active() []HandleInfo {
	s.mu.Lock()
	out := make([]HandleInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.Info())
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].GameID < out[j].GameID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out
}

// Wait blocks until every spawned session has returned.
func (s *Supervisor) Wait() {
	s.wg.Wait()
}

func reconnectDelay(base time.Duration, attempt int) time.Duration {
	if attempt <= 1 {
		return base
	}
	shift := attempt - 1
	if shift > maxReconnectShift {
		shift = maxReconnectShift
	}
	return base * time.Duration(1<<shift)
}
