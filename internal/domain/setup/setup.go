// Package setup models a car setup tree and the delta moves applied to it.
package setup

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/mitchellh/copystructure"

	"github.com/okian/pitwall/internal/domain/types"
)

// ErrNotObject marks a setup document that is not a JSON object.
var ErrNotObject = errors.New("setup must be an object")

// Setup is the hierarchical car setup, held as its decoded JSON tree. Only the
// leaves named by a Param are ever written; every other group and leaf, known
// or not, round-trips as it was read.
type Setup struct {
	tree map[string]any
}

// New returns an empty setup.
func New() *Setup {
	return &Setup{tree: map[string]any{}}
}

// Parse decodes a setup from a JSON object.
func Parse(raw []byte) (*Setup, error) {
	s := &Setup{}
	if err := s.UnmarshalJSON(raw); err != nil {
		return nil, err
	}
	return s, nil
}

// UnmarshalJSON keeps numbers in their literal form so untouched leaves are
// re-encoded exactly.
func (s *Setup) UnmarshalJSON(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var tree map[string]any
	if err := dec.Decode(&tree); err != nil {
		return fmt.Errorf("%w: %v", ErrNotObject, err)
	}
	if tree == nil {
		tree = map[string]any{}
	}
	s.tree = tree
	return nil
}

func (s Setup) MarshalJSON() ([]byte, error) {
	if s.tree == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(s.tree)
}

// Clone returns a deep copy of s.
func Clone(s *Setup) (*Setup, error) {
	if s == nil || s.tree == nil {
		return New(), nil
	}
	c, err := copystructure.Copy(s.tree)
	if err != nil {
		return nil, fmt.Errorf("clone setup: %w", err)
	}
	tree, ok := c.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("clone setup: unexpected copy type %T", c)
	}
	return &Setup{tree: tree}, nil
}

// lookup walks path without creating anything.
func (s *Setup) lookup(path ...string) (any, bool) {
	if s == nil {
		return nil, false
	}
	var node any = s.tree
	for _, k := range path {
		m, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		if node, ok = m[k]; !ok {
			return nil, false
		}
	}
	return node, true
}

// lookupGroup returns the object at path without creating it.
func (s *Setup) lookupGroup(path ...string) (map[string]any, bool) {
	v, ok := s.lookup(path...)
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// group returns the object at path, replacing missing or non-object nodes
// with empty objects on the way.
func (s *Setup) group(path ...string) map[string]any {
	if s.tree == nil {
		s.tree = map[string]any{}
	}
	node := s.tree
	for _, k := range path {
		next, ok := node[k].(map[string]any)
		if !ok {
			next = map[string]any{}
			node[k] = next
		}
		node = next
	}
	return node
}

// Number reads the numeric leaf at path. Missing and non-numeric leaves are
// unset.
func (s *Setup) Number(path ...string) types.Number {
	v, ok := s.lookup(path...)
	if !ok {
		return types.Number{}
	}
	if f, ok := number(v); ok {
		return types.Num(f)
	}
	return types.Number{}
}

// Label reads the string leaf at path.
func (s *Setup) Label(path ...string) types.Label {
	v, ok := s.lookup(path...)
	if !ok {
		return types.Label{}
	}
	if str, ok := v.(string); ok {
		return types.Text(str)
	}
	return types.Label{}
}

// Has reports whether a node exists at path.
func (s *Setup) Has(path ...string) bool {
	_, ok := s.lookup(path...)
	return ok
}

// LeafError reports a leaf that a move must update but that does not hold a
// number.
type LeafError struct {
	Path  string
	Value any
}

func (e *LeafError) Error() string {
	return fmt.Sprintf("setup leaf %s is not numeric: %v", e.Path, e.Value)
}

// number converts a decoded JSON number to a float.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// current reads the value a move starts from. Absent and null leaves start at
// zero and numeric strings are accepted.
func current(node map[string]any, leaf string, path []string) (float64, error) {
	v, ok := node[leaf]
	if !ok || v == nil {
		return 0, nil
	}
	if f, ok := number(v); ok {
		return f, nil
	}
	if str, ok := v.(string); ok {
		if f, err := strconv.ParseFloat(strings.TrimSpace(str), 64); err == nil {
			return f, nil
		}
	}
	return 0, &LeafError{Path: strings.Join(path, "."), Value: v}
}
