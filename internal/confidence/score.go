// Package confidence maps a nearest-neighbor distance to a score in (0, 1].
package confidence

import "math"

const (
	maxPixel = 255.0
	decay    = 10.0
)

// Scorer normalizes distances by the largest L2 distance two images of the
// given size can have, then applies exponential decay.
type Scorer struct {
	Width  int
	Height int
}

func NewScorer(width, height int) Scorer {
	return Scorer{Width: width, Height: height}
}

// MaxDistance is the distance between an all-black and an all-white image.
func (s Scorer) MaxDistance() float64 {
	return maxPixel * math.Sqrt(float64(s.Width*s.Height))
}

// Score returns 1 for an exact match and exp(-10*d/MaxDistance) otherwise.
func (s Scorer) Score(distance float64) float64 {
	if distance <= 0 {
		return 1.0
	}
	normalized := distance / s.MaxDistance()
	return math.Exp(-normalized * decay)
}

// Reciprocal is the older 1/(1+d) policy.
//
// Deprecated: its values are not comparable with Score. Use Scorer.Score.
func Reciprocal(distance float64) float64 {
	return 1 / (1 + distance)
}
