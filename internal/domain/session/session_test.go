package session_test

import (
	"errors"
	"os"
	"testing"

	"github.com/okian/pitwall/internal/domain/session"
	. "github.com/smartystreets/goconvey/convey"
)

const fixturePath = "../../../testdata/cota_fp2.json"

func loadFixture() []byte {
	raw, err := os.ReadFile(fixturePath)
	if err != nil {
		panic(err)
	}
	return raw
}

const minimalYAML = `
metadata:
  track: monza
  rookie_stability_priority: 1.0
targets:
  balance_goal: {entry_oversteer_index: 0, mid_oversteer_index: 0, exit_oversteer_index: 0}
  stability_goal: {brake_locking_risk_front: 0, brake_locking_risk_rear: 0, traction_loss_index: 0, porpoising_amplitude_mm: 0}
  tyre_goal: {surface_temp_target_c: 100}
weights_and_constraints:
  absolute_limits:
    brake_bias_percent_front: [53.0, 58.5]
turns:
  - turn_id: t1
    balance: {entry_oversteer_index: 0.2, mid_oversteer_index: 0, exit_oversteer_index: 0}
    braking: {brake_locking_risk_front: 0, brake_locking_risk_rear: 0}
    traction: {traction_loss_index: 0}
    tyre:
      surface_temp_c: {fl: 100, fr: 100, rl: 100, rr: 100}
    aero_ride: {porpoising_amplitude_mm: 0, bottoming_risk_index: 0}
    track_env: {kerb_impact_g: 0}
initial_setup:
  brakes: {brake_bias_percent_front: 55.6}
`

func TestDecode(t *testing.T) {
	Convey("Given the reference session document", t, func() {
		doc, err := session.Load(loadFixture(), false)

		Convey("Then it decodes and validates", func() {
			So(err, ShouldBeNil)
			So(doc.Metadata.Track, ShouldEqual, "austin_cota")
			So(doc.Turns, ShouldHaveLength, 6)
			So(doc.Turns[1].TurnID, ShouldEqual, "t3_t6")
			So(*doc.Turns[1].TrackEnv.KerbImpactG, ShouldEqual, 0.9)
			So(doc.Turns[0].Flags["track_limits_warning"], ShouldEqual, false)
		})

		Convey("Then the constraint accessors read the document", func() {
			So(doc.RookieStabilityPriority(), ShouldEqual, 0.8)
			So(doc.TimeLossWeightCap(), ShouldEqual, 3.0)
			So(doc.StepCaps()["diff_entry_percent"], ShouldEqual, 6)
			So(doc.AbsoluteLimits()["brake_bias_percent_front"].High(), ShouldEqual, 58.5)
			So(doc.AbsoluteLimits()["pressures_psi"].Low(), ShouldEqual, 20.0)
		})

		Convey("Then the initial setup keeps its free-form settings", func() {
			So(doc.InitialSetup.Number("differential_and_power", "ers_corner_deployment", "t20_exit").Or(0), ShouldEqual, 1.0)
			So(doc.InitialSetup.Label("controls", "steering_weight_preference").Or(""), ShouldEqual, "medium")
		})
	})

	Convey("Given a YAML session document", t, func() {
		doc, err := session.Load([]byte(minimalYAML), true)

		Convey("Then it decodes like the JSON form", func() {
			So(err, ShouldBeNil)
			So(doc.Metadata.Track, ShouldEqual, "monza")
			So(doc.RookieStabilityPriority(), ShouldEqual, 1.0)
			So(doc.TimeLossWeightCap(), ShouldEqual, 3.0)
			So(*doc.Turns[0].Balance.EntryOversteerIndex, ShouldEqual, 0.2)
			So(doc.InitialSetup.Number("brakes", "brake_bias_percent_front").Or(0), ShouldEqual, 55.6)
		})
	})

	Convey("Given malformed input", t, func() {
		Convey("When the bytes are not JSON", func() {
			_, err := session.Decode([]byte(`{"metadata":`))
			So(errors.Is(err, session.ErrSchema), ShouldBeTrue)
		})

		Convey("When the document is not an object", func() {
			_, err := session.Decode([]byte(`[1, 2]`))
			So(errors.Is(err, session.ErrSchema), ShouldBeTrue)
		})

		Convey("When turns is not a list", func() {
			_, err := session.Decode([]byte(`{"turns": {"t1": {}}}`))

			var se *session.SchemaError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Path, ShouldEqual, "turns")
		})

		Convey("When a telemetry leaf has the wrong type", func() {
			_, err := session.Decode([]byte(`{"turns": [{"balance": {"entry_oversteer_index": "high"}}]}`))

			Convey("Then the turn is reported as malformed", func() {
				So(errors.Is(err, session.ErrMalformedTurn), ShouldBeTrue)
				So(err.Error(), ShouldContainSubstring, "entry_oversteer_index")
			})
		})

		Convey("When a lenient metadata leaf is not numeric", func() {
			doc, err := session.Decode([]byte(`{"metadata": {"rookie_stability_priority": "high"}}`))

			Convey("Then the default applies", func() {
				So(err, ShouldBeNil)
				So(doc.RookieStabilityPriority(), ShouldEqual, 0.8)
			})
		})

		Convey("When the initial setup is not an object", func() {
			_, err := session.Decode([]byte(`{"initial_setup": [1, 2]}`))

			var se *session.SchemaError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Path, ShouldEqual, "initial_setup")
		})

		Convey("When turn identity leaves have unexpected types", func() {
			doc, err := session.Decode([]byte(`{"turns": [{"turn_id": "t1", "name": 7, "sector": "S1", "length_m": "long",
				"kinematics": {"apex_kph": "n/a"}, "tyre": {"core_temp_c": {"fl": "hot"}},
				"braking": {"min_long_g_brake": "x"}}]}`))

			Convey("Then the turn still decodes", func() {
				So(err, ShouldBeNil)
				So(doc.Turns[0].TurnID, ShouldEqual, "t1")
				So(doc.Turns[0].Sector.IsZero(), ShouldBeTrue)
				So(doc.Turns[0].LengthM.IsZero(), ShouldBeTrue)
				So(doc.Turns[0].Name.IsZero(), ShouldBeTrue)
			})
		})

		Convey("When the YAML is broken", func() {
			_, err := session.DecodeYAML([]byte("metadata: [unclosed"))
			So(errors.Is(err, session.ErrSchema), ShouldBeTrue)
		})
	})
}

func TestValidate(t *testing.T) {
	Convey("Given documents missing required keys", t, func() {
		cases := []struct {
			raw  string
			path string
		}{
			{`{}`, "metadata"},
			{`{"metadata": {}, "turns": []}`, "targets"},
			{`{"metadata": {}, "targets": {}}`, "turns"},
			{`{"metadata": {}, "targets": {}, "turns": [{}]}`, "initial_setup"},
			{`{"metadata": {}, "targets": {}, "turns": [], "initial_setup": {}}`, "turns"},
			{`{"metadata": {}, "targets": {}, "turns": [{}], "initial_setup": {}}`, "targets.balance_goal"},
			{`{"metadata": {}, "targets": {"balance_goal": {}}, "turns": [{}], "initial_setup": {}}`, "targets.stability_goal"},
			{`{"metadata": {}, "targets": {"balance_goal": {}, "stability_goal": {}}, "turns": [{}], "initial_setup": {}}`, "targets.tyre_goal"},
		}

		for _, c := range cases {
			doc, err := session.Decode([]byte(c.raw))
			So(err, ShouldBeNil)

			err = session.Validate(doc)
			var se *session.SchemaError
			So(errors.As(err, &se), ShouldBeTrue)
			So(se.Path, ShouldEqual, c.path)
		}
	})

	Convey("Given an explicit zero stability priority", t, func() {
		doc, err := session.Decode([]byte(`{"metadata": {"rookie_stability_priority": 0}}`))
		So(err, ShouldBeNil)

		Convey("Then the zero is kept rather than defaulted", func() {
			So(doc.RookieStabilityPriority(), ShouldEqual, 0)
		})
	})

	Convey("Given a nil document", t, func() {
		So(errors.Is(session.Validate(nil), session.ErrSchema), ShouldBeTrue)
	})

	Convey("Given a minimal complete document", t, func() {
		doc, err := session.Decode([]byte(`{"metadata": {}, "targets": {"balance_goal": {}, "stability_goal": {}, "tyre_goal": {}}, "turns": [{}], "initial_setup": {}}`))
		So(err, ShouldBeNil)
		So(session.Validate(doc), ShouldBeNil)
	})
}

func TestErrors(t *testing.T) {
	Convey("Malformed turn errors name the turn and field", t, func() {
		err := &session.MalformedTurnError{Index: 2, TurnID: "t11", Field: "track_env.kerb_impact_g"}
		So(err.Error(), ShouldEqual, "malformed turn 2 (t11): missing track_env.kerb_impact_g")
		So(errors.Is(err, session.ErrMalformedTurn), ShouldBeTrue)
		So(errors.Is(err, session.ErrSchema), ShouldBeFalse)
	})

	Convey("Turn labels fall back to the position", t, func() {
		So((&session.Turn{}).Label(3), ShouldEqual, "#3")
		So((&session.Turn{TurnID: "t1"}).Label(0), ShouldEqual, "t1")
	})
}
