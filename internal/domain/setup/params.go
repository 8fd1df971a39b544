package setup

// Param names a flat, tunable setup parameter.
type Param string

const (
	PressureFL        Param = "pressures_psi_fl"
	PressureFR        Param = "pressures_psi_fr"
	PressureRL        Param = "pressures_psi_rl"
	PressureRR        Param = "pressures_psi_rr"
	BrakeBiasFront    Param = "brake_bias_percent_front"
	BrakeMigrationMap Param = "brake_migration_map"
	DiffEntry         Param = "diff_entry_percent"
	DiffMid           Param = "diff_mid_percent"
	DiffExit          Param = "diff_exit_percent"
	FrontWingFlap     Param = "front_wing_flap_deg"
	RearWingMain      Param = "rear_wing_main_deg"
	BeamWingSlotGap   Param = "beam_wing_slot_gap_mm"
	RearARBSteps      Param = "rear_arb_steps"
	HighSpeedBump     Param = "high_speed_bump"
	FrontToeOut       Param = "front_toe_out_deg_total"
	RearToeIn         Param = "rear_toe_in_deg_total"
	RideHeightFront   Param = "ride_height_front_mm"
	RideHeightRear    Param = "ride_height_rear_mm"

	// ERSExitScale is a pseudo-parameter. It never maps to a leaf and is
	// applied as a multiplicative cut on ERS corner deployment.
	ERSExitScale Param = "ers_exit_scale"
)

// PressureLimitKey is the absolute-limit key that bounds all four tyre
// pressures when no per-wheel limit is configured.
const PressureLimitKey = "pressures_psi"

// ApplyOrder is the fixed order in which moves are written into a setup.
var ApplyOrder = []Param{ //nolint:gochecknoglobals // closed registry
	PressureFL, PressureFR, PressureRL, PressureRR,
	BrakeBiasFront, BrakeMigrationMap,
	DiffEntry, DiffMid, DiffExit,
	FrontWingFlap, RearWingMain, BeamWingSlotGap,
	RearARBSteps, HighSpeedBump,
	FrontToeOut, RearToeIn,
	RideHeightFront, RideHeightRear,
}

// paths maps each settable parameter to its leaf in the setup tree.
var paths = map[Param][]string{ //nolint:gochecknoglobals // closed registry
	PressureFL:        {"tyres", "pressures_psi", "fl"},
	PressureFR:        {"tyres", "pressures_psi", "fr"},
	PressureRL:        {"tyres", "pressures_psi", "rl"},
	PressureRR:        {"tyres", "pressures_psi", "rr"},
	BrakeBiasFront:    {"brakes", "brake_bias_percent_front"},
	BrakeMigrationMap: {"brakes", "brake_migration_map"},
	DiffEntry:         {"differential_and_power", "diff_entry_percent"},
	DiffMid:           {"differential_and_power", "diff_mid_percent"},
	DiffExit:          {"differential_and_power", "diff_exit_percent"},
	FrontWingFlap:     {"aero", "front_wing_flap_deg"},
	RearWingMain:      {"aero", "rear_wing_main_deg"},
	BeamWingSlotGap:   {"aero", "beam_wing_slot_gap_mm"},
	RearARBSteps:      {"ride_and_suspension", "antiroll_bar_scale_0_10", "rear"},
	HighSpeedBump:     {"ride_and_suspension", "dampers_clicks", "high_speed_bump"},
	FrontToeOut:       {"alignment", "front_toe_out_deg_total"},
	RearToeIn:         {"alignment", "rear_toe_in_deg_total"},
	RideHeightFront:   {"ride_and_suspension", "ride_height_front_mm"},
	RideHeightRear:    {"ride_and_suspension", "ride_height_rear_mm"},
}

// ERSDeploymentPath locates the per-corner ERS deployment table.
var ERSDeploymentPath = []string{"differential_and_power", "ers_corner_deployment"} //nolint:gochecknoglobals // closed registry

// Settable reports whether p maps to a setup leaf.
func (p Param) Settable() bool {
	_, ok := paths[p]
	return ok
}

// Path returns the leaf location of p, or nil for a pseudo-parameter.
func (p Param) Path() []string {
	return append([]string(nil), paths[p]...)
}

// IsPressure reports whether p is one of the four tyre pressures.
func (p Param) IsPressure() bool {
	switch p {
	case PressureFL, PressureFR, PressureRL, PressureRR:
		return true
	default:
		return false
	}
}

// Value reads p from s. ok is false when p is not settable or the leaf is
// missing or not numeric. s is not modified.
func (p Param) Value(s *Setup) (float64, bool) {
	path, ok := paths[p]
	if !ok {
		return 0, false
	}
	n := s.Number(path...)
	return n.Or(0), !n.IsZero()
}
