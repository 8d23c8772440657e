package ai

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

// Random picks uniformly among the pseudo-legal moves of the side to move.
type Random struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewRandom returns a Random strategy. A zero seed uses the clock.
func NewRandom(seed int64) *Random {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Random{rnd: rand.New(rand.NewSource(seed))}
}

func (r *Random) ChooseMove(ctx context.Context, b *board.Board, side board.Color) (board.Move, error) {
	if err := ctx.Err(); err != nil {
		return board.Move{}, err
	}
	moves := b.PseudoLegalMoves(side)
	if len(moves) == 0 {
		return board.Move{}, ErrNoMoves
	}
	r.mu.Lock()
	idx := r.rnd.Intn(len(moves))
	r.mu.Unlock()
	return moves[idx], nil
}
