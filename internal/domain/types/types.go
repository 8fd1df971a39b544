// Package types holds small value types shared by the domain packages.
package types

import (
	"encoding/json"

	"github.com/tidwall/gjson"
)

// Number is an optional numeric document leaf. Anything that is not a JSON
// number (strings, booleans, objects, null) decodes as unset, so callers fall
// back to their documented default.
type Number struct {
	Float64 float64
	Valid   bool
}

// Num returns a set Number.
func Num(v float64) Number {
	return Number{Float64: v, Valid: true}
}

// Or returns the value, or def when unset.
func (n Number) Or(def float64) float64 {
	if !n.Valid {
		return def
	}
	return n.Float64
}

// IsZero reports whether the value is unset; used by omitzero.
func (n Number) IsZero() bool {
	return !n.Valid
}

// UnmarshalJSON implements json.Unmarshaler.
func (n *Number) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type != gjson.Number {
		*n = Number{}
		return nil
	}
	*n = Number{Float64: r.Float(), Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Float64)
}

// Label is an optional string leaf. Non-string values decode as unset.
type Label struct {
	String string
	Valid  bool
}

// Text returns a set Label.
func Text(s string) Label {
	return Label{String: s, Valid: true}
}

// Or returns the label, or def when unset.
func (l Label) Or(def string) string {
	if !l.Valid {
		return def
	}
	return l.String
}

// IsZero reports whether the label is unset.
func (l Label) IsZero() bool {
	return !l.Valid
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Label) UnmarshalJSON(b []byte) error {
	r := gjson.ParseBytes(b)
	if r.Type != gjson.String {
		*l = Label{}
		return nil
	}
	*l = Label{String: r.Str, Valid: true}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l Label) MarshalJSON() ([]byte, error) {
	if !l.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(l.String)
}
