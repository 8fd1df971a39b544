package optimizer

import (
	"math"

	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/setup"
)

// Rule thresholds.
const (
	entryBand        = 0.10
	midBand          = 0.08
	exitBand         = 0.10
	tractionExcess   = 0.10
	tractionMargin   = -0.05
	lockExcess       = 0.05
	surfaceHotC      = 5.0
	kerbImpactLimitG = 0.8
	porpoiseExcess   = 0.2
	bottomingLimit   = 0.4
)

type sensitivity func(preferences.UserPreferences) float64

func brakeBias(p preferences.UserPreferences) float64  { return p.BrakeBiasSensitivity }
func diff(p preferences.UserPreferences) float64       { return p.DiffSensitivity }
func wing(p preferences.UserPreferences) float64       { return p.WingSensitivity }
func arb(p preferences.UserPreferences) float64        { return p.ARBSensitivity }
func damper(p preferences.UserPreferences) float64     { return p.DamperSensitivity }
func toe(p preferences.UserPreferences) float64        { return p.ToeSensitivity }
func pressure(p preferences.UserPreferences) float64   { return p.PressureSensitivity }
func rideHeight(p preferences.UserPreferences) float64 { return p.RideHeightSensitivity }

// effect adds base (times an optional sensitivity) to one parameter.
type effect struct {
	param setup.Param
	base  float64
	sens  sensitivity
}

func (e effect) delta(p preferences.UserPreferences) float64 {
	if e.sens == nil {
		return e.base
	}
	return e.base * e.sens(p)
}

// Rule is one threshold heuristic. Rules are independent; several may fire
// for the same turn and their effects add up.
type Rule struct {
	Name    string
	when    func(Observation, *reader) bool
	effects []effect
}

// Lazily read turn fields.
const (
	kerbImpactField = "track_env.kerb_impact_g"
	bottomingField  = "aero_ride.bottoming_risk_index"
)

// Rules in evaluation order.
var Rules = []Rule{ //nolint:gochecknoglobals // closed rule table
	{
		Name: "entry_oversteer",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimEntry] > entryBand },
		effects: []effect{
			{setup.BrakeBiasFront, +0.4, brakeBias},
			{setup.DiffEntry, +3.0, diff},
			{setup.FrontWingFlap, -0.2, wing},
		},
	},
	{
		Name: "entry_understeer",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimEntry] < -entryBand },
		effects: []effect{
			{setup.BrakeBiasFront, -0.3, brakeBias},
			{setup.DiffEntry, -2.0, diff},
			{setup.FrontWingFlap, +0.2, wing},
		},
	},
	{
		Name: "mid_understeer",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimMid] < -midBand },
		effects: []effect{
			{setup.FrontWingFlap, +0.3, wing},
			{setup.FrontToeOut, +0.01, toe},
		},
	},
	{
		Name: "mid_understeer_kerb",
		when: func(o Observation, r *reader) bool {
			return o.Errors[DimMid] < -midBand && r.turn(kerbImpactField, o.KerbImpactG) > kerbImpactLimitG
		},
		effects: []effect{
			{setup.HighSpeedBump, -1.0, damper},
		},
	},
	{
		Name: "mid_oversteer",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimMid] > midBand },
		effects: []effect{
			{setup.RearWingMain, +0.3, wing},
			{setup.FrontWingFlap, -0.1, wing},
		},
	},
	{
		Name: "exit_oversteer_or_traction",
		when: func(o Observation, _ *reader) bool {
			return o.Errors[DimExit] > exitBand || o.Errors[DimTraction] > tractionExcess
		},
		effects: []effect{
			{setup.DiffExit, -3.0, diff},
			{setup.RearARBSteps, -1.0, arb},
			{setup.ERSExitScale, -0.2, nil},
		},
	},
	{
		Name: "exit_understeer_with_traction",
		when: func(o Observation, _ *reader) bool {
			return o.Errors[DimExit] < -exitBand && o.Errors[DimTraction] < tractionMargin
		},
		effects: []effect{
			{setup.DiffExit, +2.0, diff},
		},
	},
	{
		Name: "front_locking",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimLockFront] > lockExcess },
		effects: []effect{
			{setup.BrakeBiasFront, -0.3, brakeBias},
			{setup.BrakeMigrationMap, +1.0, nil},
		},
	},
	{
		Name: "rear_locking",
		when: func(o Observation, _ *reader) bool { return o.Errors[DimLockRear] > lockExcess },
		effects: []effect{
			{setup.BrakeBiasFront, +0.2, brakeBias},
		},
	},
	{
		Name: "rear_tyres_hot",
		when: func(o Observation, _ *reader) bool {
			return o.Errors[DimSurfRR] > surfaceHotC || o.Errors[DimSurfRL] > surfaceHotC
		},
		effects: []effect{
			{setup.PressureRR, -0.3, pressure},
			{setup.PressureRL, -0.3, pressure},
			{setup.DiffExit, -1.0, diff},
		},
	},
	{
		Name: "front_tyres_hot",
		when: func(o Observation, _ *reader) bool {
			return o.Errors[DimSurfFL] > surfaceHotC || o.Errors[DimSurfFR] > surfaceHotC
		},
		effects: []effect{
			{setup.PressureFL, -0.3, pressure},
			{setup.PressureFR, -0.3, pressure},
		},
	},
	{
		Name: "porpoising_or_bottoming",
		when: func(o Observation, r *reader) bool {
			return o.Errors[DimPorpoise] > porpoiseExcess || r.turn(bottomingField, o.BottomingRiskIndex) > bottomingLimit
		},
		effects: []effect{
			{setup.RideHeightRear, +2.0, rideHeight},
			{setup.BeamWingSlotGap, +0.5, nil},
		},
	},
}

// Propose runs every rule against obs, caps each parameter to its per-turn
// step cap and scales the move by the preference aggression. It returns the
// move and the names of the rules that fired. A rule that needs a reading the
// turn does not have fails the whole turn with a MalformedTurnError.
func Propose(obs Observation, stepCaps map[string]float64, prefs preferences.UserPreferences) (setup.Move, []string, error) {
	raw := setup.Move{}
	var fired []string
	rd := &reader{index: obs.Index, turnID: obs.TurnID}
	for _, r := range Rules {
		hit := r.when(obs, rd)
		if rd.err != nil {
			return nil, nil, rd.err
		}
		if !hit {
			continue
		}
		fired = append(fired, r.Name)
		for _, e := range r.effects {
			raw[e.param] += e.delta(prefs)
		}
	}

	scale := prefs.Scale()
	move := make(setup.Move, len(raw))
	for p, v := range raw {
		limit := math.Abs(v)
		if c, ok := stepCaps[string(p)]; ok {
			limit = math.Abs(c)
		}
		move[p] = setup.Clamp(v, -limit, limit) * scale
	}
	return move, fired, nil
}
