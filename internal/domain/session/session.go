// Package session decodes and validates session documents: targets, per-turn
// telemetry and the initial setup a session starts from.
package session

import (
	"fmt"

	"github.com/okian/pitwall/internal/domain/setup"
	"github.com/okian/pitwall/internal/domain/types"
)

// Defaults applied when the document leaves a value unset.
const (
	DefaultRookieStabilityPriority = 0.8
	DefaultTimeLossWeightCap       = 3.0
)

// Document is one session: car setup, targets and per-turn telemetry.
type Document struct {
	Metadata              *Metadata              `json:"metadata"`
	Targets               *Targets               `json:"targets"`
	WeightsAndConstraints *WeightsAndConstraints `json:"weights_and_constraints,omitempty"`
	TelemetryUnits        map[string]string      `json:"telemetry_units,omitempty"`
	Turns                 []Turn                 `json:"turns"`
	InitialSetup          *setup.Setup           `json:"initial_setup"`
}

type Metadata struct {
	Track                   string       `json:"track,omitempty"`
	Session                 string       `json:"session,omitempty"`
	TyreCompound            string       `json:"tyre_compound,omitempty"`
	AmbientTempC            types.Number `json:"ambient_temp_c,omitzero"`
	TrackTempC              types.Number `json:"track_temp_c,omitzero"`
	WindKmh                 types.Number `json:"wind_kmh,omitzero"`
	RookieStabilityPriority types.Number `json:"rookie_stability_priority,omitzero"`
	ParcFermeSafe           bool         `json:"parc_ferme_safe,omitempty"`
}

type Targets struct {
	BalanceGoal   *BalanceGoal   `json:"balance_goal"`
	StabilityGoal *StabilityGoal `json:"stability_goal"`
	TyreGoal      *TyreGoal      `json:"tyre_goal"`
}

type BalanceGoal struct {
	EntryOversteerIndex *float64 `json:"entry_oversteer_index"`
	MidOversteerIndex   *float64 `json:"mid_oversteer_index"`
	ExitOversteerIndex  *float64 `json:"exit_oversteer_index"`
}

type StabilityGoal struct {
	BrakeLockingRiskFront *float64 `json:"brake_locking_risk_front"`
	BrakeLockingRiskRear  *float64 `json:"brake_locking_risk_rear"`
	TractionLossIndex     *float64 `json:"traction_loss_index"`
	PorpoisingAmplitudeMM *float64 `json:"porpoising_amplitude_mm"`
}

type TyreGoal struct {
	CoreTempTargetC         *float64 `json:"core_temp_target_c,omitempty"`
	SurfaceTempTargetC      *float64 `json:"surface_temp_target_c"`
	WearBalanceDeltaPctRLRR *float64 `json:"wear_balance_delta_pct_rl_rr,omitempty"`
}

// WeightsAndConstraints bounds how far one turn may move a parameter and where
// any parameter may end up.
type WeightsAndConstraints struct {
	TimeLossWeightCap types.Number       `json:"time_loss_weight_cap,omitzero"`
	StepCaps          map[string]float64 `json:"per_turn_step_caps,omitempty"`
	AbsoluteLimits    setup.Limits       `json:"absolute_limits,omitempty"`
}

// Turn carries the telemetry summary for one corner. Only the pointer leaves
// are read by the engine; identity and the remaining readings are lenient so
// a stray type there never rejects the turn.
type Turn struct {
	TurnID                 string         `json:"turn_id"`
	Name                   types.Label    `json:"name,omitzero"`
	Sector                 types.Number   `json:"sector,omitzero"`
	LengthM                types.Number   `json:"length_m,omitzero"`
	TimeLossWeight         types.Number   `json:"time_loss_weight,omitzero"`
	OccurrenceRate         types.Number   `json:"occurrence_rate,omitzero"`
	DriverConfidenceWeight types.Number   `json:"driver_confidence_weight,omitzero"`
	Balance                *Balance       `json:"balance"`
	Braking                *Braking       `json:"braking"`
	Traction               *Traction      `json:"traction"`
	Tyre                   *TyreTelemetry `json:"tyre"`
	AeroRide               *AeroRide      `json:"aero_ride"`
	TrackEnv               *TrackEnv      `json:"track_env"`
	Kinematics             map[string]any `json:"kinematics,omitempty"`
	ERSFuel                map[string]any `json:"ers_fuel,omitempty"`
	Flags                  map[string]any `json:"flags,omitempty"`
}

type Balance struct {
	EntryOversteerIndex *float64 `json:"entry_oversteer_index"`
	MidOversteerIndex   *float64 `json:"mid_oversteer_index"`
	ExitOversteerIndex  *float64 `json:"exit_oversteer_index"`
}

type Braking struct {
	BrakeLockingRiskFront *float64     `json:"brake_locking_risk_front"`
	BrakeLockingRiskRear  *float64     `json:"brake_locking_risk_rear"`
	MinLongGBrake         types.Number `json:"min_long_g_brake,omitzero"`
}

type Traction struct {
	TractionLossIndex       *float64     `json:"traction_loss_index"`
	DeploymentWheelspinRisk types.Number `json:"deployment_wheelspin_risk,omitzero"`
	MaxLongGExit            types.Number `json:"max_long_g_exit,omitzero"`
}

type TyreTelemetry struct {
	CoreTempC         map[string]types.Number `json:"core_temp_c,omitempty"`
	SurfaceTempC      *Wheels                 `json:"surface_temp_c"`
	PressuresPSI      map[string]types.Number `json:"pressures_psi,omitempty"`
	WearRatePctPerLap map[string]types.Number `json:"wear_rate_pct_per_lap,omitempty"`
	GrainingRisk      map[string]types.Number `json:"graining_risk,omitempty"`
	BlisterRisk       map[string]types.Number `json:"blister_risk,omitempty"`
}

// Wheels holds one required reading per wheel.
type Wheels struct {
	FL *float64 `json:"fl"`
	FR *float64 `json:"fr"`
	RL *float64 `json:"rl"`
	RR *float64 `json:"rr"`
}

// AeroRide readings. BottomingRiskIndex is only read when the porpoising
// excess alone does not trip the ride height rule.
type AeroRide struct {
	AeroBalanceShiftFrontPct types.Number `json:"aero_balance_shift_front_pct,omitzero"`
	PorpoisingAmplitudeMM    *float64     `json:"porpoising_amplitude_mm"`
	BottomingRiskIndex       *float64     `json:"bottoming_risk_index,omitempty"`
	RideHeightMarginMinMM    types.Number `json:"ride_height_margin_min_mm,omitzero"`
}

// TrackEnv readings. KerbImpactG is only read for mid-corner understeer.
type TrackEnv struct {
	GripIndex    types.Number `json:"grip_index,omitzero"`
	WindYawDeg   types.Number `json:"wind_yaw_deg,omitzero"`
	WindSpeedKmh types.Number `json:"wind_speed_kmh,omitzero"`
	KerbImpactG  *float64     `json:"kerb_impact_g,omitempty"`
	BumpRmsMM    types.Number `json:"bump_rms_mm,omitzero"`
}

// Label returns the turn id, or a positional name when the id is empty.
func (t *Turn) Label(index int) string {
	if t.TurnID != "" {
		return t.TurnID
	}
	return fmt.Sprintf("#%d", index)
}

// RookieStabilityPriority returns the stability priority multiplier.
func (d *Document) RookieStabilityPriority() float64 {
	if d.Metadata == nil {
		return DefaultRookieStabilityPriority
	}
	return d.Metadata.RookieStabilityPriority.Or(DefaultRookieStabilityPriority)
}

// TimeLossWeightCap returns the upper bound on a turn's importance weight.
func (d *Document) TimeLossWeightCap() float64 {
	if d.WeightsAndConstraints == nil {
		return DefaultTimeLossWeightCap
	}
	return d.WeightsAndConstraints.TimeLossWeightCap.Or(DefaultTimeLossWeightCap)
}

// StepCaps returns the per-turn step caps keyed by parameter name.
func (d *Document) StepCaps() map[string]float64 {
	if d.WeightsAndConstraints == nil {
		return nil
	}
	return d.WeightsAndConstraints.StepCaps
}

// AbsoluteLimits returns the absolute parameter limits.
func (d *Document) AbsoluteLimits() setup.Limits {
	if d.WeightsAndConstraints == nil {
		return nil
	}
	return d.WeightsAndConstraints.AbsoluteLimits
}
