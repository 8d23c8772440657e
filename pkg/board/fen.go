package board

import (
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

// StandardPlacement is the FEN piece-placement field of the initial position.
const StandardPlacement = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR"

var toChessPiece = map[Piece]chess.Piece{
	{White, Pawn}:   chess.WhitePawn,
	{White, Knight}: chess.WhiteKnight,
	{White, Bishop}: chess.WhiteBishop,
	{White, Rook}:   chess.WhiteRook,
	{White, Queen}:  chess.WhiteQueen,
	{White, King}:   chess.WhiteKing,
	{Black, Pawn}:   chess.BlackPawn,
	{Black, Knight}: chess.BlackKnight,
	{Black, Bishop}: chess.BlackBishop,
	{Black, Rook}:   chess.BlackRook,
	{Black, Queen}:  chess.BlackQueen,
	{Black, King}:   chess.BlackKing,
}

var fromChessPiece = func() map[chess.Piece]Piece {
	m := make(map[chess.Piece]Piece, len(toChessPiece))
	for p, cp := range toChessPiece {
		m[cp] = p
	}
	return m
}()

// ParsePlacement decodes a FEN piece-placement field. A full FEN string is
// accepted too; everything after the first field is ignored.
func ParsePlacement(placement string) (*Board, error) {
	fields := strings.Fields(placement)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty placement")
	}
	pos := &chess.Position{}
	if err := pos.UnmarshalText([]byte(fields[0] + " w - - 0 1")); err != nil {
		return nil, fmt.Errorf("parse placement %q: %w", fields[0], err)
	}
	b := NewEmpty()
	for sq, cp := range pos.Board().SquareMap() {
		p, ok := fromChessPiece[cp]
		if !ok {
			continue
		}
		b.Set(Square(sq), &p)
	}
	return b, nil
}

// Placement encodes the board as a FEN piece-placement field.
func (b *Board) Placement() string {
	m := make(map[chess.Square]chess.Piece, 32)
	for sq := Square(0); sq < 64; sq++ {
		if p := b.At(sq); p != nil {
			m[chess.Square(sq)] = toChessPiece[*p]
		}
	}
	return chess.NewBoard(m).String()
}

// FEN returns a full FEN for external engines. Castling and en passant are
// never available on this board.
func (b *Board) FEN(turn Color) string {
	return fmt.Sprintf("%s %c - - 0 1", b.Placement(), turn.letter())
}
