// Package dispatch asks the engine for a move and submits it, classifying the result so the
// caller can decide whether the position counts as handled.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/position"
	"go.uber.org/zap"
)

// ErrRejected is wrapped by submitters when the server answered but refused the move
// (stale turn, game already over).
var ErrRejected = errors.New("move rejected")

// MoveSelector is the engine collaborator. An empty move means the engine declined.
type MoveSelector interface {
	SelectMove(ctx context.Context, pos position.Position) (string, error)
}

// MoveSubmitter is the submission half of the game-service client.
type MoveSubmitter interface {
	SubmitMove(ctx context.Context, gameID, move string) error
}

type Outcome int

const (
	OutcomeNoMove Outcome = iota
	OutcomeSent
	OutcomeRejected
	OutcomeTransportFailure
)

func (o Outcome) String() string {
	switch o {
	case OutcomeNoMove:
		return "no_move"
	case OutcomeSent:
		return "sent"
	case OutcomeRejected:
		return "rejected"
	case OutcomeTransportFailure:
		return "transport_failure"
	default:
		return "unknown"
	}
}

// Result of one dispatch attempt.
type Result struct {
	Outcome  Outcome
	Move     string
	Err      error
	Duration time.Duration
}

// Final is true when the attempt settled the position: the move was either accepted or refused.
// A transport failure is inconclusive and may be retried on a later snapshot.
func (r Result) Final() bool {
	return r.Outcome == OutcomeSent || r.Outcome == OutcomeRejected
}

type Dispatcher struct {
	selector  MoveSelector
	submitter MoveSubmitter
	logger    *zap.Logger
}

func New(selector MoveSelector, submitter MoveSubmitter, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{selector: selector, submitter: submitter, logger: logger}
}

// Dispatch runs selectMove then submitMove. The returned error is reserved for selector
// failures; submission problems are reported through Result.
func (d *Dispatcher) Dispatch(ctx context.Context, gameID string, pos position.Position) (Result, error) {
	start := time.Now()
	move, err := d.selector.SelectMove(ctx, pos)
	if err != nil {
		return Result{}, fmt.Errorf("select move: %w", err)
	}
	move = strings.TrimSpace(move)
	if move == "" {
		d.logger.Info("dispatch_no_move",
			zap.String("game_id", gameID),
			zap.Int("move_count", pos.MoveCount()),
		)
		return Result{Outcome: OutcomeNoMove, Duration: time.Since(start)}, nil
	}

	res := Result{Move: move}
	err = d.submitter.SubmitMove(ctx, gameID, move)
	res.Duration = time.Since(start)
	switch {
	case err == nil:
		res.Outcome = OutcomeSent
		d.logger.Info("dispatch_sent",
			zap.String("game_id", gameID),
			zap.String("move", move),
			zap.Int("move_count", pos.MoveCount()),
			zap.Duration("took", res.Duration),
		)
	case errors.Is(err, ErrRejected):
		res.Outcome = OutcomeRejected
		res.Err = err
		d.logger.Warn("dispatch_rejected",
			zap.String("game_id", gameID),
			zap.String("move", move),
			zap.Int("move_count", pos.MoveCount()),
			zap.Error(err),
		)
	default:
		res.Outcome = OutcomeTransportFailure
		res.Err = err
		d.logger.Warn("dispatch_transport_failure",
			zap.String("game_id", gameID),
			zap.String("move", move),
			zap.Int("move_count", pos.MoveCount()),
			zap.Error(err),
		)
	}
	return res, nil
}
