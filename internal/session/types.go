// Package session runs one supervised handler per game: it keeps the local view of the game in
// sync over a push stream (falling back to polling) and submits at most one move per position.
package session

import (
	"context"
	"errors"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/dispatch"
	"github.com/park285/Cheese-lichess-bot/internal/position"
)

var (
	// ErrMalformedEvent marks a lifecycle event that could not be decoded; the supervisor skips it.
	ErrMalformedEvent = errors.New("malformed lifecycle event")
	// ErrStreamUnavailable is returned by clients that cannot offer a push stream for a game.
	ErrStreamUnavailable = errors.New("game state stream unavailable")
)

// PayloadStream yields game-state frames. Next returns io.EOF once the server closes the stream;
// errors wrapping position.ErrMalformedPayload concern a single frame only.
type PayloadStream interface {
	Next(ctx context.Context) (position.Payload, error)
	Close() error
}

// EventStream yields lifecycle events. Errors wrapping ErrMalformedEvent concern a single event.
type EventStream interface {
	Next(ctx context.Context) (Event, error)
	Close() error
}

// GameService is the remote game-service client.
type GameService interface {
	StreamEvents(ctx context.Context) (EventStream, error)
	AcceptChallenge(ctx context.Context, challengeID string) error
	DeclineChallenge(ctx context.Context, challengeID, reason string) error
	StreamGameState(ctx context.Context, gameID string) (PayloadStream, error)
	FetchGameState(ctx context.Context, gameID string) (position.Payload, error)
	dispatch.MoveSubmitter
}

type EventType string

const (
	EventChallenge  EventType = "challenge"
	EventGameStart  EventType = "gameStart"
	EventGameFinish EventType = "gameFinish"
	EventOther      EventType = "other"
)

type ChallengeRef struct {
	ID         string
	Variant    string
	Speed      string
	Rated      bool
	Challenger string
}

type GameRef struct {
	ID    string
	Color string
}

// Event is one lifecycle notification. Challenge or Game is set according to Type.
type Event struct {
	Type      EventType
	Raw       string
	Challenge *ChallengeRef
	Game      *GameRef
}

// State of a game session.
type State string

const (
	StateStreaming State = "streaming"
	StatePolling   State = "polling"
	StateEnded     State = "ended"
	StateFailed    State = "failed"
	// StateStopped is reached only when the owning context is cancelled (process shutdown).
	StateStopped State = "stopped"
)

// Terminal states end the session loop.
func (s State) Terminal() bool {
	return s == StateEnded || s == StateFailed || s == StateStopped
}

// HandleInfo is a read-only snapshot of one running session.
type HandleInfo struct {
	RunID     string
	GameID    string
	Color     position.Color
	State     State
	LastActed int
	StartedAt time.Time
	UpdatedAt time.Time
}

// Recorder observes sessions. Errors are logged by the caller and never change session behavior.
type Recorder interface {
	SessionStarted(ctx context.Context, info HandleInfo) error
	SessionTransition(ctx context.Context, info HandleInfo, from State) error
	MoveAttempted(ctx context.Context, info HandleInfo, moveCount int, res dispatch.Result) error
	SessionClosed(ctx context.Context, info HandleInfo, last *position.Position) error
}

// NopRecorder ignores everything.
type NopRecorder struct{}

func (NopRecorder) SessionStarted(context.Context, HandleInfo) error { return nil }
func (NopRecorder) SessionTransition(context.Context, HandleInfo, State) error {
	return nil
}
func (NopRecorder) MoveAttempted(context.Context, HandleInfo, int, dispatch.Result) error {
	return nil
}
func (NopRecorder) SessionClosed(context.Context, HandleInfo, *position.Position) error {
	return nil
}

// Recorders fans out to several recorders and joins their errors.
type Recorders []Recorder

func (rs Recorders) SessionStarted(ctx context.Context, info HandleInfo) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.SessionStarted(ctx, info))
	}
	return errors.Join(errs...)
}

func (rs Recorders) SessionTransition(ctx context.Context, info HandleInfo, from State) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.SessionTransition(ctx, info, from))
	}
	return errors.Join(errs...)
}

func (rs Recorders) MoveAttempted(ctx context.Context, info HandleInfo, moveCount int, res dispatch.Result) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.MoveAttempted(ctx, info, moveCount, res))
	}
	return errors.Join(errs...)
}

func (rs Recorders) SessionClosed(ctx context.Context, info HandleInfo, last *position.Position) error {
	var errs []error
	for _, r := range rs {
		errs = append(errs, r.SessionClosed(ctx, info, last))
	}
	return errors.Join(errs...)
}
