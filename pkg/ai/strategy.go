// Package ai picks moves for the computer side of a demo game.
package ai

import (
	"context"
	"errors"

	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

var ErrNoMoves = errors.New("no pseudo-legal moves available")

// Strategy chooses a move for side. Implementations must not modify b.
type Strategy interface {
	ChooseMove(ctx context.Context, b *board.Board, side board.Color) (board.Move, error)
}
