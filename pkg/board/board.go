// Package board holds the 8x8 demo board, pseudo-legal move shapes and the
// placement codec shared by local games and lobby rooms.
package board

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Color uint8

const (
	White Color = iota
	Black
)

func (c Color) Opposite() Color {
	if c == White {
		return Black
	}
	return White
}

func (c Color) String() string {
	if c == White {
		return "white"
	}
	return "black"
}

func (c Color) letter() byte {
	if c == White {
		return 'w'
	}
	return 'b'
}

func ParseColor(s string) (Color, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white", "w":
		return White, nil
	case "black", "b":
		return Black, nil
	}
	return White, fmt.Errorf("invalid color %q", s)
}

func (c Color) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *Color) UnmarshalText(text []byte) error {
	parsed, err := ParseColor(string(text))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

type PieceType uint8

const (
	Pawn PieceType = iota + 1
	Knight
	Bishop
	Rook
	Queen
	King
)

const pieceLetters = " PNBRQK"

func (t PieceType) String() string {
	switch t {
	case Pawn:
		return "pawn"
	case Knight:
		return "knight"
	case Bishop:
		return "bishop"
	case Rook:
		return "rook"
	case Queen:
		return "queen"
	case King:
		return "king"
	}
	return "none"
}

// Piece is what sits on a square. Empty squares are nil *Piece.
type Piece struct {
	Color Color
	Type  PieceType
}

// Tag is the two-letter form used on the wire, e.g. "wP" or "bK".
func (p Piece) Tag() string {
	return string([]byte{p.Color.letter(), pieceLetters[p.Type]})
}

func (p Piece) String() string {
	return p.Tag()
}

func ParsePiece(tag string) (Piece, error) {
	if len(tag) != 2 {
		return Piece{}, fmt.Errorf("invalid piece tag %q", tag)
	}
	var p Piece
	switch tag[0] {
	case 'w':
		p.Color = White
	case 'b':
		p.Color = Black
	default:
		return Piece{}, fmt.Errorf("invalid piece tag %q", tag)
	}
	idx := strings.IndexByte(pieceLetters, tag[1])
	if idx < 1 {
		return Piece{}, fmt.Errorf("invalid piece tag %q", tag)
	}
	p.Type = PieceType(idx)
	return p, nil
}

func (p Piece) MarshalText() ([]byte, error) {
	return []byte(p.Tag()), nil
}

func (p *Piece) UnmarshalText(text []byte) error {
	parsed, err := ParsePiece(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Square indexes the board from a1 (0) to h8 (63).
type Square int8

const NoSquare Square = -1

func NewSquare(file, rank int) Square {
	if file < 0 || file > 7 || rank < 0 || rank > 7 {
		return NoSquare
	}
	return Square(rank*8 + file)
}

func ParseSquare(s string) (Square, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if len(s) != 2 || s[0] < 'a' || s[0] > 'h' || s[1] < '1' || s[1] > '8' {
		return NoSquare, fmt.Errorf("invalid square %q", s)
	}
	return NewSquare(int(s[0]-'a'), int(s[1]-'1')), nil
}

func (s Square) File() int { return int(s) % 8 }
func (s Square) Rank() int { return int(s) / 8 }

func (s Square) Valid() bool {
	return s >= 0 && s < 64
}

func (s Square) String() string {
	if !s.Valid() {
		return "-"
	}
	return string([]byte{byte('a' + s.File()), byte('1' + s.Rank())})
}

func (s Square) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Square) UnmarshalText(text []byte) error {
	parsed, err := ParseSquare(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Board is an 8x8 grid of nullable pieces, indexed [rank][file].
type Board struct {
	grid [8][8]*Piece
}

func NewEmpty() *Board {
	return &Board{}
}

func NewStandard() *Board {
	b := &Board{}
	back := [8]PieceType{Rook, Knight, Bishop, Queen, King, Bishop, Knight, Rook}
	for file := 0; file < 8; file++ {
		b.Set(NewSquare(file, 0), &Piece{Color: White, Type: back[file]})
		b.Set(NewSquare(file, 1), &Piece{Color: White, Type: Pawn})
		b.Set(NewSquare(file, 6), &Piece{Color: Black, Type: Pawn})
		b.Set(NewSquare(file, 7), &Piece{Color: Black, Type: back[file]})
	}
	return b
}

// At returns the piece on sq or nil. Pieces are never shared between boards,
// so callers must not mutate the result.
func (b *Board) At(sq Square) *Piece {
	if !sq.Valid() {
		return nil
	}
	return b.grid[sq.Rank()][sq.File()]
}

func (b *Board) Set(sq Square, p *Piece) {
	if !sq.Valid() {
		return
	}
	b.grid[sq.Rank()][sq.File()] = p
}

func (b *Board) Clone() *Board {
	c := &Board{}
	for r := range b.grid {
		for f, p := range b.grid[r] {
			if p != nil {
				cp := *p
				c.grid[r][f] = &cp
			}
		}
	}
	return c
}

func (b *Board) HasKing(c Color) bool {
	for _, sq := range b.squaresOf(c) {
		if b.At(sq).Type == King {
			return true
		}
	}
	return false
}

func (b *Board) Count(c Color) int {
	return len(b.squaresOf(c))
}

func (b *Board) squaresOf(c Color) []Square {
	out := make([]Square, 0, 16)
	for sq := Square(0); sq < 64; sq++ {
		if p := b.At(sq); p != nil && p.Color == c {
			out = append(out, sq)
		}
	}
	return out
}

func (b *Board) Equal(other *Board) bool {
	for sq := Square(0); sq < 64; sq++ {
		p, q := b.At(sq), other.At(sq)
		if (p == nil) != (q == nil) {
			return false
		}
		if p != nil && *p != *q {
			return false
		}
	}
	return true
}

// MarshalJSON writes eight ranks, rank 8 first, of nullable piece tags.
func (b *Board) MarshalJSON() ([]byte, error) {
	rows := make([][]*Piece, 8)
	for i := 0; i < 8; i++ {
		rows[i] = b.grid[7-i][:]
	}
	return json.Marshal(rows)
}

func (b *Board) UnmarshalJSON(data []byte) error {
	var rows [][]*Piece
	if err := json.Unmarshal(data, &rows); err != nil {
		return err
	}
	if len(rows) != 8 {
		return fmt.Errorf("board must have 8 ranks, got %d", len(rows))
	}
	var grid [8][8]*Piece
	for i, row := range rows {
		if len(row) != 8 {
			return fmt.Errorf("rank %d must have 8 files, got %d", 8-i, len(row))
		}
		copy(grid[7-i][:], row)
	}
	b.grid = grid
	return nil
}

// String draws the board for consoles, rank 8 on top.
func (b *Board) String() string {
	var sb strings.Builder
	for rank := 7; rank >= 0; rank-- {
		sb.WriteByte(byte('1' + rank))
		for file := 0; file < 8; file++ {
			sb.WriteByte(' ')
			p := b.grid[rank][file]
			if p == nil {
				sb.WriteByte('.')
				continue
			}
			ch := pieceLetters[p.Type]
			if p.Color == Black {
				ch += 'a' - 'A'
			}
			sb.WriteByte(ch)
		}
		sb.WriteByte('\n')
	}
	sb.WriteString("  a b c d e f g h\n")
	return sb.String()
}
