package types_test

import (
	"encoding/json"
	"testing"

	types "github.com/okian/pitwall/internal/domain/types"
	. "github.com/smartystreets/goconvey/convey"
)

func TestNumber(t *testing.T) {
	Convey("Given a struct with an optional number", t, func() {
		type holder struct {
			V types.Number `json:"v,omitzero"`
		}

		Convey("When the leaf is a JSON number", func() {
			var h holder
			So(json.Unmarshal([]byte(`{"v": 0.8}`), &h), ShouldBeNil)

			Convey("Then it is set", func() {
				So(h.V.Valid, ShouldBeTrue)
				So(h.V.Or(1), ShouldEqual, 0.8)
			})
		})

		Convey("When the leaf is an explicit zero", func() {
			var h holder
			So(json.Unmarshal([]byte(`{"v": 0}`), &h), ShouldBeNil)

			Convey("Then zero is kept rather than defaulted", func() {
				So(h.V.Or(1), ShouldEqual, 0)
			})
		})

		Convey("When the leaf is not numeric", func() {
			for _, raw := range []string{`{"v": "0.8"}`, `{"v": true}`, `{"v": null}`, `{"v": {"x": 1}}`, `{}`} {
				var h holder
				So(json.Unmarshal([]byte(raw), &h), ShouldBeNil)
				So(h.V.Valid, ShouldBeFalse)
				So(h.V.Or(3), ShouldEqual, 3)
			}
		})

		Convey("When an unset number is encoded", func() {
			out, err := json.Marshal(holder{})

			Convey("Then the field is omitted", func() {
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, `{}`)
			})
		})

		Convey("When a set number is encoded", func() {
			out, err := json.Marshal(holder{V: types.Num(1.25)})

			Convey("Then the raw value is written", func() {
				So(err, ShouldBeNil)
				So(string(out), ShouldEqual, `{"v":1.25}`)
			})
		})
	})
}

func TestLabel(t *testing.T) {
	Convey("Given an optional string leaf", t, func() {
		type holder struct {
			L types.Label `json:"l,omitzero"`
		}

		Convey("When it holds a string", func() {
			var h holder
			So(json.Unmarshal([]byte(`{"l": "light"}`), &h), ShouldBeNil)
			So(h.L.Or("medium"), ShouldEqual, "light")
		})

		Convey("When it holds a number", func() {
			var h holder
			So(json.Unmarshal([]byte(`{"l": 3}`), &h), ShouldBeNil)
			So(h.L.Or("medium"), ShouldEqual, "medium")
		})

		Convey("When it is set and encoded", func() {
			out, err := json.Marshal(holder{L: types.Text("heavy")})
			So(err, ShouldBeNil)
			So(string(out), ShouldEqual, `{"l":"heavy"}`)
		})
	})
}
