// Package engine implements move selection for game sessions.
package engine

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var ErrIllegalHistory = errors.New("move history cannot be replayed")

// Replay rebuilds a game from a move list in UCI or SAN (the export endpoint returns SAN) and
// returns the history in UCI. Each move is tried as UCI first, then as SAN.
func Replay(moves []string) (*nchess.Game, []string, error) {
	game := nchess.NewGame()
	uciMoves := make([]string, 0, len(moves))
	for i, raw := range moves {
		mv := strings.TrimSpace(raw)
		if mv == "" {
			continue
		}
		if err := game.PushNotationMove(strings.ToLower(mv), nchess.UCINotation{}, nil); err != nil {
			if err := game.PushNotationMove(mv, nchess.AlgebraicNotation{}, nil); err != nil {
				return nil, nil, fmt.Errorf("%w: ply %d %q: %v", ErrIllegalHistory, i+1, mv, err)
			}
		}
		played := game.Moves()
		uciMoves = append(uciMoves, played[len(played)-1].String())
	}
	return game, uciMoves, nil
}

// SANMoves는 UCI/SAN 기보를 SAN으로 변환.
func SANMoves(moves []string) ([]string, error) {
	_, uciMoves, err := Replay(moves)
	if err != nil {
		return nil, err
	}
	game := nchess.NewGame()
	out := make([]string, 0, len(uciMoves))
	for _, mv := range uciMoves {
		pos := game.Position()
		decoded, err := nchess.UCINotation{}.Decode(pos, mv)
		if err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrIllegalHistory, mv, err)
		}
		out = append(out, nchess.AlgebraicNotation{}.Encode(pos, decoded))
		if err := game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("%w: %q: %v", ErrIllegalHistory, mv, err)
		}
	}
	return out, nil
}
