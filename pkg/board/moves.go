package board

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoOpMove     = errors.New("move does not change the board")
	ErrEmptySquare  = errors.New("no piece on source square")
	ErrWrongSide    = errors.New("piece belongs to the other side")
	ErrSelfCapture  = errors.New("cannot capture own piece")
	ErrIllegalShape = errors.New("piece cannot move that way")
)

// Validation selects how strictly moves are checked before they are applied.
type Validation int

const (
	// ValidatePseudoLegal requires the move to follow the piece's movement shape.
	ValidatePseudoLegal Validation = iota
	// ValidateBasic only rejects no-op moves and self-captures.
	ValidateBasic
)

func ParseValidation(s string) (Validation, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "pseudo", "pseudo-legal":
		return ValidatePseudoLegal, nil
	case "basic":
		return ValidateBasic, nil
	}
	return ValidatePseudoLegal, fmt.Errorf("invalid validation mode %q", s)
}

type Move struct {
	From     Square `json:"from"`
	To       Square `json:"to"`
	Piece    *Piece `json:"piece,omitempty"`
	Captured *Piece `json:"captured,omitempty"`
}

// String returns the move in UCI form, e.g. "e2e4".
func (m Move) String() string {
	return m.From.String() + m.To.String()
}

// ParseMove reads a UCI move. A trailing promotion letter is accepted and
// dropped because pawns are never promoted.
func ParseMove(s string) (Move, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 4 && len(s) != 5 {
		return Move{}, fmt.Errorf("invalid move %q", s)
	}
	from, err := ParseSquare(s[:2])
	if err != nil {
		return Move{}, err
	}
	to, err := ParseSquare(s[2:4])
	if err != nil {
		return Move{}, err
	}
	return Move{From: from, To: to}, nil
}

// KingCapture reports whether the applied move took a king.
func (m Move) KingCapture() bool {
	return m.Captured != nil && m.Captured.Type == King
}

var (
	knightJumps = [8][2]int{{1, 2}, {2, 1}, {2, -1}, {1, -2}, {-1, -2}, {-2, -1}, {-2, 1}, {-1, 2}}
	kingSteps   = [8][2]int{{1, 0}, {1, 1}, {0, 1}, {-1, 1}, {-1, 0}, {-1, -1}, {0, -1}, {1, -1}}
	rookRays    = [4][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}}
	bishopRays  = [4][2]int{{1, 1}, {1, -1}, {-1, 1}, {-1, -1}}
)

// Targets lists the pseudo-legal destinations of the piece on from.
func (b *Board) Targets(from Square) []Square {
	p := b.At(from)
	if p == nil {
		return nil
	}
	file, rank := from.File(), from.Rank()
	out := make([]Square, 0, 8)

	step := func(df, dr int) {
		to := NewSquare(file+df, rank+dr)
		if to == NoSquare {
			return
		}
		if q := b.At(to); q == nil || q.Color != p.Color {
			out = append(out, to)
		}
	}
	slide := func(df, dr int) {
		for i := 1; ; i++ {
			to := NewSquare(file+df*i, rank+dr*i)
			if to == NoSquare {
				return
			}
			q := b.At(to)
			if q == nil {
				out = append(out, to)
				continue
			}
			if q.Color != p.Color {
				out = append(out, to)
			}
			return
		}
	}

	switch p.Type {
	case Pawn:
		dir, home := 1, 1
		if p.Color == Black {
			dir, home = -1, 6
		}
		one := NewSquare(file, rank+dir)
		if one != NoSquare && b.At(one) == nil {
			out = append(out, one)
			two := NewSquare(file, rank+2*dir)
			if rank == home && two != NoSquare && b.At(two) == nil {
				out = append(out, two)
			}
		}
		for _, df := range [2]int{-1, 1} {
			to := NewSquare(file+df, rank+dir)
			if to == NoSquare {
				continue
			}
			if q := b.At(to); q != nil && q.Color != p.Color {
				out = append(out, to)
			}
		}
	case Knight:
		for _, j := range knightJumps {
			step(j[0], j[1])
		}
	case King:
		for _, s := range kingSteps {
			step(s[0], s[1])
		}
	case Bishop:
		for _, r := range bishopRays {
			slide(r[0], r[1])
		}
	case Rook:
		for _, r := range rookRays {
			slide(r[0], r[1])
		}
	case Queen:
		for _, r := range rookRays {
			slide(r[0], r[1])
		}
		for _, r := range bishopRays {
			slide(r[0], r[1])
		}
	}
	return out
}

// PseudoLegalMoves enumerates every shape-correct move for side. Moves that
// leave the side's own king attacked are included.
func (b *Board) PseudoLegalMoves(side Color) []Move {
	moves := make([]Move, 0, 40)
	for _, from := range b.squaresOf(side) {
		for _, to := range b.Targets(from) {
			moves = append(moves, Move{From: from, To: to})
		}
	}
	return moves
}

func (b *Board) Validate(m Move, side Color, v Validation) error {
	if !m.From.Valid() || !m.To.Valid() {
		return fmt.Errorf("move %s: %w", m, ErrIllegalShape)
	}
	if m.From == m.To {
		return ErrNoOpMove
	}
	p := b.At(m.From)
	if p == nil {
		return fmt.Errorf("%s: %w", m.From, ErrEmptySquare)
	}
	if p.Color != side {
		return ErrWrongSide
	}
	if q := b.At(m.To); q != nil && q.Color == p.Color {
		return ErrSelfCapture
	}
	if v == ValidateBasic {
		return nil
	}
	for _, to := range b.Targets(m.From) {
		if to == m.To {
			return nil
		}
	}
	return fmt.Errorf("%s %s: %w", p.Type, m, ErrIllegalShape)
}

// Apply moves the piece and returns the move annotated with the moved and
// captured pieces, as needed by Undo. It does not validate.
func (b *Board) Apply(m Move) (Move, error) {
	p := b.At(m.From)
	if p == nil {
		return m, fmt.Errorf("%s: %w", m.From, ErrEmptySquare)
	}
	if m.From == m.To {
		return m, ErrNoOpMove
	}
	moved := *p
	m.Piece = &moved
	m.Captured = nil
	if q := b.At(m.To); q != nil {
		captured := *q
		m.Captured = &captured
	}
	b.Set(m.To, p)
	b.Set(m.From, nil)
	return m, nil
}

func (b *Board) Undo(m Move) error {
	if m.Piece == nil {
		return fmt.Errorf("undo %s: move was not applied", m)
	}
	piece := *m.Piece
	b.Set(m.From, &piece)
	if m.Captured != nil {
		captured := *m.Captured
		b.Set(m.To, &captured)
	} else {
		b.Set(m.To, nil)
	}
	return nil
}
