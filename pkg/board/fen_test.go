package board

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardPlacementRoundTrip(t *testing.T) {
	assert.Equal(t, StandardPlacement, NewStandard().Placement())

	b, err := ParsePlacement(StandardPlacement)
	require.NoError(t, err)
	assert.True(t, NewStandard().Equal(b))
}

func TestParsePlacementAcceptsFullFEN(t *testing.T) {
	b, err := ParsePlacement("rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq e3 0 1")
	require.NoError(t, err)
	assert.Equal(t, &Piece{Color: White, Type: Pawn}, b.At(sq(t, "e4")))
	assert.Nil(t, b.At(sq(t, "e2")))
}

func TestParsePlacementErrors(t *testing.T) {
	_, err := ParsePlacement("")
	assert.Error(t, err)
	_, err = ParsePlacement("not-a-board")
	assert.Error(t, err)
}

func TestPlacementAfterMoves(t *testing.T) {
	b := NewStandard()
	for _, s := range []string{"e2e4", "e7e5", "g1f3"} {
		m, err := ParseMove(s)
		require.NoError(t, err)
		_, err = b.Apply(m)
		require.NoError(t, err)
	}
	assert.Equal(t, "rnbqkbnr/pppp1ppp/8/4p3/4P3/5N2/PPPP1PPP/RNBQKB1R", b.Placement())

	decoded, err := ParsePlacement(b.Placement())
	require.NoError(t, err)
	assert.True(t, b.Equal(decoded))
}

func TestFEN(t *testing.T) {
	assert.Equal(t, StandardPlacement+" b - - 0 1", NewStandard().FEN(Black))
}
