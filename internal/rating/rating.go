// Package rating implements the logistic expected-score rating model used
// for all ranked formats.
package rating

import "math"

// Delta computes the post-battle ratings for a winner/loser pair.
//
// The winner's gain and the loser's raw loss are computed independently from
// the expected score, then the loser's loss magnitude is capped at
// winnerGain*loserProtection, and finally both results are clamped to floor.
// The compute-then-clamp order is load-bearing for game balance; do not
// reorder it.
func Delta(winnerRating, loserRating, kFactor, floor int, loserProtection float64) (newWinner, newLoser int) {
	expectedWinner := 1.0 / (1.0 + math.Pow(10, float64(loserRating-winnerRating)/400.0))

	gain := int(math.Round(float64(kFactor) * (1.0 - expectedWinner)))
	// A heavy favorite's rounded gain can hit zero; a win always pays at
	// least one point so long as the system is live at all.
	if kFactor > 0 && gain < 1 {
		gain = 1
	}
	rawLoss := int(math.Round(float64(kFactor) * (0.0 - (1.0 - expectedWinner))))

	maxLoss := int(math.Round(float64(gain) * loserProtection))
	if -rawLoss > maxLoss {
		rawLoss = -maxLoss
	}

	newWinner = winnerRating + gain
	newLoser = loserRating + rawLoss
	if newWinner < floor {
		newWinner = floor
	}
	if newLoser < floor {
		newLoser = floor
	}
	return newWinner, newLoser
}

// TeamAverage is the rating of a two-player team: the arithmetic mean of its
// members, truncated to match per-player integer ratings.
func TeamAverage(a, b int) int {
	return (a + b) / 2
}
