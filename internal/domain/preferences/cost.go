package preferences

import "errors"

// ErrInvalidSubmission is returned for submissions that are not JSON objects.
var ErrInvalidSubmission = errors.New("invalid preference submission")

// CostWeights weighs the objective terms of a setup. They are derived from
// the stability bias and reported with each result; the heuristic engine does
// not consume them.
type CostWeights struct {
	Balance   float64 `json:"w_bal"`
	Stability float64 `json:"w_stab"`
	Tyre      float64 `json:"w_tyre"`
	Ride      float64 `json:"w_ride"`
	Pace      float64 `json:"w_pace"`
}

// BuildCostWeights favours stability over pace as the stability bias grows.
func BuildCostWeights(p UserPreferences) CostWeights {
	sb := p.StabilityBias
	return CostWeights{
		Balance:   1.0 + 0.5*sb,
		Stability: 1.2 + 0.8*sb,
		Tyre:      0.6 + 0.4*sb,
		Ride:      0.5 + 0.4*sb,
		Pace:      0.4 * (1.0 - sb),
	}
}
