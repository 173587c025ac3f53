package engine

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/park285/Cheese-lichess-bot/internal/position"
)

// RandomMover plays a uniformly random legal move. It needs no external engine.
type RandomMover struct {
	mu   sync.Mutex
	rand *rand.Rand
}

func NewRandomMover(seed int64) *RandomMover {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &RandomMover{rand: rand.New(rand.NewSource(seed))}
}

func (r *RandomMover) SelectMove(_ context.Context, pos position.Position) (string, error) {
	game, _, err := Replay(pos.Moves)
	if err != nil {
		return "", err
	}
	moves := game.ValidMoves()
	if len(moves) == 0 {
		return "", nil
	}
	r.mu.Lock()
	i := r.rand.Intn(len(moves))
	r.mu.Unlock()
	return moves[i].String(), nil
}
