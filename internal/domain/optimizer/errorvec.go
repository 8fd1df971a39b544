package optimizer

import (
	"encoding/json"
	"math"

	"github.com/okian/pitwall/internal/domain/session"
)

// Dim indexes one dimension of an ErrorVector.
type Dim int

const (
	DimEntry Dim = iota
	DimMid
	DimExit
	DimLockFront
	DimLockRear
	DimTraction
	DimPorpoise
	DimSurfFL
	DimSurfFR
	DimSurfRL
	DimSurfRR

	numDims
)

var dimNames = [numDims]string{ //nolint:gochecknoglobals // fixed names
	"d_entry", "d_mid", "d_exit",
	"lock_front_excess", "lock_rear_excess", "traction_excess", "porpoise_excess",
	"surf_fl_excess", "surf_fr_excess", "surf_rl_excess", "surf_rr_excess",
}

func (d Dim) String() string {
	if d < 0 || d >= numDims {
		return "unknown"
	}
	return dimNames[d]
}

// ErrorVector is the signed deviation of one turn from the targets. Positive
// balance errors mean more oversteer than wanted.
type ErrorVector [numDims]float64

// At returns the value of dimension d.
func (v ErrorVector) At(d Dim) float64 { return v[d] }

// MarshalJSON writes the vector keyed by dimension name.
func (v ErrorVector) MarshalJSON() ([]byte, error) {
	m := make(map[string]float64, numDims)
	for i, x := range v {
		m[dimNames[i]] = x
	}
	return json.Marshal(m)
}

// Observation is what the rules see of one turn. The kerb impact and
// bottoming risk readings are looked up only by the rules that need them, so
// a turn may leave them out as long as those rules never ask.
type Observation struct {
	Index              int
	TurnID             string
	Errors             ErrorVector
	KerbImpactG        *float64
	BottomingRiskIndex *float64
}

type reader struct {
	index  int
	turnID string
	err    error
}

func (r *reader) turn(field string, v *float64) float64 {
	if r.err != nil {
		return 0
	}
	if v == nil {
		r.err = &session.MalformedTurnError{Index: r.index, TurnID: r.turnID, Field: field}
		return 0
	}
	return *v
}

func (r *reader) target(path string, v *float64) float64 {
	if r.err != nil {
		return 0
	}
	if v == nil {
		r.err = &session.SchemaError{Path: path, Reason: "missing required key"}
		return 0
	}
	return *v
}

func orZero[T any](p *T) *T {
	if p == nil {
		return new(T)
	}
	return p
}

// Evaluate computes the observation of the turn at index against targets.
// Targets are read before the turn, so a missing target is reported first.
func Evaluate(index int, turn *session.Turn, targets *session.Targets) (Observation, error) {
	r := &reader{index: index, turnID: turn.TurnID}
	if targets == nil {
		targets = &session.Targets{}
	}

	bg := orZero(targets.BalanceGoal)
	sg := orZero(targets.StabilityGoal)
	tg := orZero(targets.TyreGoal)
	tEntry := r.target("targets.balance_goal.entry_oversteer_index", bg.EntryOversteerIndex)
	tMid := r.target("targets.balance_goal.mid_oversteer_index", bg.MidOversteerIndex)
	tExit := r.target("targets.balance_goal.exit_oversteer_index", bg.ExitOversteerIndex)
	tLockF := r.target("targets.stability_goal.brake_locking_risk_front", sg.BrakeLockingRiskFront)
	tLockR := r.target("targets.stability_goal.brake_locking_risk_rear", sg.BrakeLockingRiskRear)
	tTraction := r.target("targets.stability_goal.traction_loss_index", sg.TractionLossIndex)
	tPorpoise := r.target("targets.stability_goal.porpoising_amplitude_mm", sg.PorpoisingAmplitudeMM)
	tSurf := r.target("targets.tyre_goal.surface_temp_target_c", tg.SurfaceTempTargetC)

	b := orZero(turn.Balance)
	br := orZero(turn.Braking)
	tr := orZero(turn.Traction)
	ar := orZero(turn.AeroRide)
	env := orZero(turn.TrackEnv)
	surf := orZero(orZero(turn.Tyre).SurfaceTempC)

	obs := Observation{
		Index:              index,
		TurnID:             turn.TurnID,
		KerbImpactG:        env.KerbImpactG,
		BottomingRiskIndex: ar.BottomingRiskIndex,
	}
	e := &obs.Errors
	e[DimEntry] = r.turn("balance.entry_oversteer_index", b.EntryOversteerIndex) - tEntry
	e[DimMid] = r.turn("balance.mid_oversteer_index", b.MidOversteerIndex) - tMid
	e[DimExit] = r.turn("balance.exit_oversteer_index", b.ExitOversteerIndex) - tExit
	e[DimLockFront] = r.turn("braking.brake_locking_risk_front", br.BrakeLockingRiskFront) - tLockF
	e[DimLockRear] = r.turn("braking.brake_locking_risk_rear", br.BrakeLockingRiskRear) - tLockR
	e[DimTraction] = r.turn("traction.traction_loss_index", tr.TractionLossIndex) - tTraction
	e[DimPorpoise] = r.turn("aero_ride.porpoising_amplitude_mm", ar.PorpoisingAmplitudeMM) - tPorpoise
	e[DimSurfFL] = r.turn("tyre.surface_temp_c.fl", surf.FL) - tSurf
	e[DimSurfFR] = r.turn("tyre.surface_temp_c.fr", surf.FR) - tSurf
	e[DimSurfRL] = r.turn("tyre.surface_temp_c.rl", surf.RL) - tSurf
	e[DimSurfRR] = r.turn("tyre.surface_temp_c.rr", surf.RR) - tSurf

	if r.err != nil {
		return Observation{}, r.err
	}
	return obs, nil
}

// finite maps NaN and infinities to zero.
func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}
