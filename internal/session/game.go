package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/gmkornilov/chess-demo-backend/pkg/board"
)

var (
	ErrGameNotFound  = errors.New("game not found")
	ErrGameFinished  = errors.New("game is finished")
	ErrNotYourTurn   = errors.New("it is the computer's turn")
	ErrNothingToUndo = errors.New("no move to take back")
)

type Mode string

const (
	// ModeLocal is hot-seat play, both sides from one client.
	ModeLocal Mode = "local"
	// ModeAI pits the client against a Strategy.
	ModeAI Mode = "ai"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeLocal, ModeAI:
		return Mode(s), nil
	}
	return "", fmt.Errorf("invalid mode %q", s)
}

type Status string

const (
	StatusActive   Status = "active"
	StatusFinished Status = "finished"
)

const (
	ReasonKingCaptured = "king captured"
	ReasonNoMoves      = "no moves"
)

// Game is one local board session.
type Game struct {
	ID        string
	Mode      Mode
	AIColor   board.Color
	Board     *board.Board
	Turn      board.Color
	History   []board.Move
	Status    Status
	Winner    *board.Color
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func newGame(id string, mode Mode, aiColor board.Color, now time.Time) *Game {
	return &Game{
		ID:        id,
		Mode:      mode,
		AIColor:   aiColor,
		Board:     board.NewStandard(),
		Turn:      board.White,
		History:   make([]board.Move, 0),
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func (g *Game) aiToMove() bool {
	return g.Mode == ModeAI && g.Status == StatusActive && g.Turn == g.AIColor
}

// play validates and applies one move for the side to move.
func (g *Game) play(m board.Move, v board.Validation, now time.Time) error {
	if g.Status != StatusActive {
		return ErrGameFinished
	}
	if err := g.Board.Validate(m, g.Turn, v); err != nil {
		return err
	}
	applied, err := g.Board.Apply(m)
	if err != nil {
		return err
	}
	g.History = append(g.History, applied)
	g.UpdatedAt = now

	if applied.KingCapture() {
		winner := g.Turn
		g.finish(&winner, ReasonKingCaptured)
		return nil
	}
	g.Turn = g.Turn.Opposite()
	if len(g.Board.PseudoLegalMoves(g.Turn)) == 0 {
		g.finish(nil, ReasonNoMoves)
	}
	return nil
}

func (g *Game) finish(winner *board.Color, reason string) {
	g.Status = StatusFinished
	g.Winner = winner
	g.Reason = reason
}

func (g *Game) humanMoved() bool {
	for _, m := range g.History {
		if m.Piece.Color != g.AIColor {
			return true
		}
	}
	return false
}

func (g *Game) takeBack() error {
	if len(g.History) == 0 {
		return ErrNothingToUndo
	}
	last := g.History[len(g.History)-1]
	if err := g.Board.Undo(last); err != nil {
		return err
	}
	g.History = g.History[:len(g.History)-1]
	g.Turn = last.Piece.Color
	g.Status = StatusActive
	g.Winner = nil
	g.Reason = ""
	return nil
}

func (g *Game) reset(now time.Time) {
	g.Board = board.NewStandard()
	g.Turn = board.White
	g.History = g.History[:0]
	g.Status = StatusActive
	g.Winner = nil
	g.Reason = ""
	g.UpdatedAt = now
}

// View is the JSON shape of a game.
type View struct {
	ID        string       `json:"id"`
	Mode      Mode         `json:"mode"`
	AIColor   *board.Color `json:"ai_color,omitempty"`
	Board     *board.Board `json:"board"`
	Placement string       `json:"placement"`
	Turn      board.Color  `json:"turn"`
	History   []string     `json:"history"`
	LastMove  *board.Move  `json:"last_move,omitempty"`
	Status    Status       `json:"status"`
	Winner    *board.Color `json:"winner,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

func (g *Game) View() View {
	v := View{
		ID:        g.ID,
		Mode:      g.Mode,
		Board:     g.Board.Clone(),
		Placement: g.Board.Placement(),
		Turn:      g.Turn,
		History:   make([]string, len(g.History)),
		Status:    g.Status,
		Reason:    g.Reason,
		CreatedAt: g.CreatedAt,
		UpdatedAt: g.UpdatedAt,
	}
	if g.Mode == ModeAI {
		c := g.AIColor
		v.AIColor = &c
	}
	for i, m := range g.History {
		v.History[i] = m.String()
	}
	if n := len(g.History); n > 0 {
		last := g.History[n-1]
		v.LastMove = &last
	}
	if g.Winner != nil {
		w := *g.Winner
		v.Winner = &w
	}
	return v
}
