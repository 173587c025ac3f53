package position

import (
	"fmt"
	"strings"
)

// Color identifies a chess side.
type Color string

const (
	White Color = "white"
	Black Color = "black"
)

// ParseColor accepts the long and short forms used by event payloads.
func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	default:
		return "", fmt.Errorf("unknown color %q", s)
	}
}

// Opposite returns the other side.
func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

// NoMoveHandled is the initial lastActed value: nothing handled yet.
const NoMoveHandled = -1

// SideToMove assumes strict alternation starting with white.
func SideToMove(p Position) Color {
	if p.MoveCount()%2 == 0 {
		return White
	}
	return Black
}

// Decision is the result of resolving one Position for one session.
type Decision struct {
	ShouldAct  bool
	SessionEnd bool
	SideToMove Color
	Position   Position
}

// Resolve is pure. A finished game short-circuits: SessionEnd is set and ShouldAct stays false.
func Resolve(p Position, mine Color, lastActed int) Decision {
	d := Decision{SideToMove: SideToMove(p), Position: p}
	if !p.Started() {
		d.SessionEnd = true
		return d
	}
	d.ShouldAct = d.SideToMove == mine && p.MoveCount() != lastActed
	return d
}
