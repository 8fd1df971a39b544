// Package preferences holds driver preference weights that bias how hard the
// engine corrects a setup, independent of the track targets.
package preferences

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"

	"github.com/okian/pitwall/internal/domain/session"
)

// Defaults for preferences not present in a document or submission.
const (
	DefaultStabilityBias       = 0.8
	DefaultSteeringWeight      = "medium"
	DefaultThrottleLinearity   = 0.85
	DefaultBrakePedalLinearity = 0.90
	DefaultAggression          = 0.2
)

// UserPreferences biases the engine's corrections.
type UserPreferences struct {
	StabilityBias            float64 `json:"stability_bias"`
	SteeringWeightPreference string  `json:"steering_weight_preference"`
	ThrottleLinearity        float64 `json:"throttle_linearity"`
	BrakePedalLinearity      float64 `json:"brake_pedal_linearity"`
	Aggression               float64 `json:"aggression"`

	BrakeBiasSensitivity  float64 `json:"brake_bias_sensitivity"`
	DiffSensitivity       float64 `json:"diff_sensitivity"`
	WingSensitivity       float64 `json:"wing_sensitivity"`
	ARBSensitivity        float64 `json:"arb_sensitivity"`
	DamperSensitivity     float64 `json:"damper_sensitivity"`
	ToeSensitivity        float64 `json:"toe_sensitivity"`
	PressureSensitivity   float64 `json:"pressure_sensitivity"`
	RideHeightSensitivity float64 `json:"ride_height_sensitivity"`
}

// Default returns neutral preferences.
func Default() UserPreferences {
	return UserPreferences{
		StabilityBias:            DefaultStabilityBias,
		SteeringWeightPreference: DefaultSteeringWeight,
		ThrottleLinearity:        DefaultThrottleLinearity,
		BrakePedalLinearity:      DefaultBrakePedalLinearity,
		Aggression:               DefaultAggression,
		BrakeBiasSensitivity:     1,
		DiffSensitivity:          1,
		WingSensitivity:          1,
		ARBSensitivity:           1,
		DamperSensitivity:        1,
		ToeSensitivity:           1,
		PressureSensitivity:      1,
		RideHeightSensitivity:    1,
	}
}

// AggressionFor maps a stability priority to an aggression level. Priorities
// outside [0, 1] are clamped first.
func AggressionFor(stabilityPriority float64) float64 {
	return 0.15 + 0.2*(1-clamp(stabilityPriority, 0, 1))
}

// FromDocument derives preferences from the session metadata and the initial
// setup's controls. Sensitivities stay at 1.
func FromDocument(doc *session.Document) UserPreferences {
	p := Default()
	rsp := DefaultStabilityBias
	if doc != nil {
		rsp = doc.RookieStabilityPriority()
	}
	p.StabilityBias = clamp(rsp, 0, 1)
	p.Aggression = AggressionFor(rsp)

	if doc == nil || doc.InitialSetup == nil {
		return p
	}
	s := doc.InitialSetup
	p.SteeringWeightPreference = s.Label("controls", "steering_weight_preference").Or(DefaultSteeringWeight)
	p.ThrottleLinearity = s.Number("controls", "throttle_pedal_linearity").Or(DefaultThrottleLinearity)
	p.BrakePedalLinearity = s.Number("controls", "brake_pedal_linearity").Or(DefaultBrakePedalLinearity)
	return p
}

// Scale is the uniform multiplier applied to each per-turn move.
func (p UserPreferences) Scale() float64 {
	return 0.7 + 0.6*p.Aggression
}

// ApplySubmission overlays a questionnaire submission on base. Only numeric
// leaves (and the steering weight string) are read; everything else is ignored.
// A stability_bias without an explicit aggression also moves aggression.
func ApplySubmission(base UserPreferences, raw []byte) (UserPreferences, error) {
	if !gjson.ValidBytes(raw) {
		return base, fmt.Errorf("%w: submission is not valid JSON", ErrInvalidSubmission)
	}
	doc := gjson.ParseBytes(raw)
	if !doc.IsObject() {
		return base, fmt.Errorf("%w: submission must be an object", ErrInvalidSubmission)
	}

	p := base
	unit := func(path string, dst *float64) bool {
		r := doc.Get(path)
		if r.Type != gjson.Number {
			return false
		}
		*dst = clamp(r.Float(), 0, 1)
		return true
	}
	positive := func(path string, dst *float64) {
		r := doc.Get(path)
		if r.Type == gjson.Number && r.Float() >= 0 {
			*dst = r.Float()
		}
	}

	biasSet := unit("stability_bias", &p.StabilityBias) || unit("rookie_stability_priority", &p.StabilityBias)
	if !unit("aggression", &p.Aggression) && biasSet {
		p.Aggression = AggressionFor(p.StabilityBias)
	}
	unit("throttle_linearity", &p.ThrottleLinearity)
	unit("brake_pedal_linearity", &p.BrakePedalLinearity)

	if r := doc.Get("steering_weight_preference"); r.Type == gjson.String {
		switch r.Str {
		case "light", "medium", "heavy":
			p.SteeringWeightPreference = r.Str
		}
	}

	positive("sensitivities.brake_bias", &p.BrakeBiasSensitivity)
	positive("sensitivities.diff", &p.DiffSensitivity)
	positive("sensitivities.wing", &p.WingSensitivity)
	positive("sensitivities.arb", &p.ARBSensitivity)
	positive("sensitivities.damper", &p.DamperSensitivity)
	positive("sensitivities.toe", &p.ToeSensitivity)
	positive("sensitivities.pressure", &p.PressureSensitivity)
	positive("sensitivities.ride_height", &p.RideHeightSensitivity)

	positive("brake_bias_sensitivity", &p.BrakeBiasSensitivity)
	positive("diff_sensitivity", &p.DiffSensitivity)
	positive("wing_sensitivity", &p.WingSensitivity)
	positive("arb_sensitivity", &p.ARBSensitivity)
	positive("damper_sensitivity", &p.DamperSensitivity)
	positive("toe_sensitivity", &p.ToeSensitivity)
	positive("pressure_sensitivity", &p.PressureSensitivity)
	positive("ride_height_sensitivity", &p.RideHeightSensitivity)
	return p, nil
}

func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}
