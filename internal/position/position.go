// Package position turns raw game-state deliveries into a canonical Position and decides
// whether the local side has to move.
package position

import (
	"strings"
)

// Status is the collapsed game status. Anything other than "started" means the session must stop.
type Status string

const (
	StatusStarted Status = "started"
	StatusEnded   Status = "ended"
)

const rawStarted = "started"

// Position is an immutable snapshot derived from exactly one payload.
type Position struct {
	Moves  []string
	Status Status
	// Reason is the raw status text reported by the server ("mate", "resign", ...).
	Reason string
	Winner string
}

// MoveCount is the number of plies played; it doubles as the position identity.
func (p Position) MoveCount() int { return len(p.Moves) }

// Started reports whether the game is still in progress.
func (p Position) Started() bool { return p.Status == StatusStarted }

// LastMove returns the most recent move token or "".
func (p Position) LastMove() string {
	if len(p.Moves) == 0 {
		return ""
	}
	return p.Moves[len(p.Moves)-1]
}

// Normalize never fails: unknown shapes give an empty, started position.
func Normalize(p Payload) Position {
	switch v := p.(type) {
	case FlatState:
		return build(deref(v.Top.Moves), v.Top, v.Nested)
	case NestedState:
		return build(deref(v.Nested.Moves), v.Top, &v.Nested)
	case FullGame:
		return build(deref(v.Nested.Moves), v.Top, &v.Nested)
	case RawMoves:
		return build(string(v), StateFields{}, nil)
	case Empty, Notice, nil:
		return build("", StateFields{}, nil)
	default:
		return build("", StateFields{}, nil)
	}
}

func build(moves string, top StateFields, nested *StateFields) Position {
	raw, winner := top.Status, top.Winner
	if nested != nil {
		if nested.Status != "" {
			raw = nested.Status
		}
		if nested.Winner != "" {
			winner = nested.Winner
		}
	}

	pos := Position{
		Moves:  strings.Fields(moves),
		Status: StatusStarted,
		Winner: winner,
	}
	if raw != "" && raw != rawStarted {
		pos.Status = StatusEnded
		pos.Reason = raw
	}
	return pos
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
