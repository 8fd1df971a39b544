package optimizer

import (
	"errors"
	"math"

	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/internal/domain/setup"
)

const (
	// HuberDelta is the transition point of the robust error magnitude.
	HuberDelta = 0.8
	// outlierGain controls how strongly large errors reduce a turn's weight.
	outlierGain   = 0.6
	defaultFactor = 1.0
)

// ErrLengthMismatch is returned when moves and weights differ in length.
var ErrLengthMismatch = errors.New("moves and weights differ in length")

// Huber is quadratic up to delta and linear beyond it.
func Huber(x, delta float64) float64 {
	ax := math.Abs(x)
	if ax <= delta {
		return 0.5 * ax * ax
	}
	return delta * (ax - 0.5*delta)
}

// ErrorMagnitude is the mean Huber loss over all dimensions. Non-finite
// entries count as zero.
func ErrorMagnitude(v ErrorVector) float64 {
	var sum float64
	for _, x := range v {
		sum += Huber(finite(x), HuberDelta)
	}
	return sum / float64(len(v))
}

// OutlierScale down-weights turns with a large error magnitude.
func OutlierScale(magnitude float64) float64 {
	return 1 / (1 + outlierGain*magnitude)
}

// CornerWeight is the importance of a turn, bounded above by weightCap.
// Unset factors default to 1.
func CornerWeight(turn *session.Turn, stabilityPriority, weightCap float64) float64 {
	w := turn.TimeLossWeight.Or(defaultFactor) *
		turn.OccurrenceRate.Or(defaultFactor) *
		turn.DriverConfidenceWeight.Or(defaultFactor) *
		stabilityPriority
	return math.Min(weightCap, w)
}

// Aggregate sums moves weighted by weights, in order. The result is not
// normalised by the total weight.
func Aggregate(moves []setup.Move, weights []float64) (setup.Move, error) {
	if len(moves) != len(weights) {
		return nil, ErrLengthMismatch
	}
	agg := setup.Move{}
	for i, mv := range moves {
		for p, v := range mv {
			agg[p] += weights[i] * v
		}
	}
	return agg, nil
}
