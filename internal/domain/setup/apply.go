package setup

import "math"

// Move is a set of parameter deltas.
type Move map[Param]float64

// Range is an inclusive [low, high] bound.
type Range [2]float64

func (r Range) Low() float64  { return r[0] }
func (r Range) High() float64 { return r[1] }

// Clamp bounds v to the range.
func (r Range) Clamp(v float64) float64 {
	return Clamp(v, r[0], r[1])
}

// Limits maps a parameter name (or PressureLimitKey) to its absolute range.
type Limits map[string]Range

// Clamp bounds v to [lo, hi]. When lo > hi the result is lo.
func Clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// ClampEvent records a parameter whose written value was bounded.
type ClampEvent struct {
	Param Param   `json:"param"`
	Raw   float64 `json:"raw"`
	Value float64 `json:"value"`
	Limit Range   `json:"limit"`
}

// ERS cut bounds. A move of -0.4 removes 40% of corner deployment.
const (
	minERSCut = -0.4
	maxERSCut = 0.0
)

// limitFor returns the range bounding p, if any.
func limitFor(p Param, limits Limits) (Range, bool) {
	if r, ok := limits[string(p)]; ok {
		return r, true
	}
	if p.IsPressure() {
		r, ok := limits[PressureLimitKey]
		return r, ok
	}
	return Range{}, false
}

// Apply writes move into a deep copy of base in ApplyOrder, clamping each
// written value to its absolute limit. Missing groups on a leaf's path are
// created. The ERS exit scale is applied last as a multiplicative cut on every
// corner deployment entry. base is not modified, and leaves no move touches
// are carried over unchanged.
func Apply(base *Setup, move Move, limits Limits) (*Setup, []ClampEvent, error) {
	out, err := Clone(base)
	if err != nil {
		return nil, nil, err
	}

	var clamps []ClampEvent
	for _, p := range ApplyOrder {
		delta, ok := move[p]
		if !ok {
			continue
		}
		path := paths[p]
		node := out.group(path[:len(path)-1]...)
		leaf := path[len(path)-1]
		cur, err := current(node, leaf, path)
		if err != nil {
			return nil, nil, err
		}
		raw := cur + delta
		v := raw
		if r, ok := limitFor(p, limits); ok {
			v = r.Clamp(raw)
			if v != raw {
				clamps = append(clamps, ClampEvent{Param: p, Raw: raw, Value: v, Limit: r})
			}
		}
		node[leaf] = v
	}

	if cut, ok := move[ERSExitScale]; ok {
		if table, ok := out.lookupGroup(ERSDeploymentPath...); ok {
			factor := 1 + Clamp(cut, minERSCut, maxERSCut)
			for k, v := range table {
				if f, ok := number(v); ok {
					table[k] = f * factor
				}
			}
		}
	}
	return out, clamps, nil
}
