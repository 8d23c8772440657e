package rating

import (
	"math"
)

// Score of a finished game from white's point of view.
const (
	WhiteWon = 1.0
	Draw     = 0.5
	BlackWon = 0.0
)

// Initial is the rating given to players that do not claim one.
const Initial = 1500

func KFactor(elo int) int {
	if elo >= 2400 {
		return 10
	}
	if elo >= 2000 {
		return 20
	}
	return 40
}

// Expected returns the expected score of a player rated a against b.
func Expected(a, b int) float64 {
	return 1 / (1 + math.Pow(10, float64(b-a)/400))
}

// Update returns the new white and black ratings after a game with the given
// white score.
func Update(white, black int, score float64) (int, int) {
	expectedWhite := Expected(white, black)
	newWhite := white + int(math.Round(float64(KFactor(white))*(score-expectedWhite)))
	newBlack := black + int(math.Round(float64(KFactor(black))*((1-score)-(1-expectedWhite))))
	return newWhite, newBlack
}
