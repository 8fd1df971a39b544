// Package optimizer turns per-turn telemetry into one aggregated setup change.
//
// Each turn is compared with the session targets, a fixed table of heuristic
// rules proposes a move for it, and the moves are combined by a robust
// weighted sum before being written into a copy of the initial setup.
package optimizer

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/okian/pitwall/internal/domain/preferences"
	"github.com/okian/pitwall/internal/domain/session"
	"github.com/okian/pitwall/internal/domain/setup"
)

const defaultParallelism = 4

// Option configures an Engine.
type Option func(*Engine)

// WithParallelism bounds how many turns are evaluated concurrently.
func WithParallelism(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// Engine computes optimized setups. It holds no per-call state and is safe
// for concurrent use.
type Engine struct {
	parallelism int
}

// New creates an Engine.
func New(opts ...Option) *Engine {
	e := &Engine{parallelism: defaultParallelism}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// TurnDiagnostics explains how one turn contributed to the result.
type TurnDiagnostics struct {
	TurnID         string      `json:"turn_id"`
	Errors         ErrorVector `json:"errors"`
	ErrorMagnitude float64     `json:"error_magnitude"`
	OutlierScale   float64     `json:"outlier_scale"`
	CornerWeight   float64     `json:"corner_weight"`
	Weight         float64     `json:"weight"`
	FiredRules     []string    `json:"fired_rules"`
	Move           setup.Move  `json:"move"`
}

// Diagnostics accompanies every optimized setup.
type Diagnostics struct {
	PerTurnWeights []float64                   `json:"per_turn_weights"`
	AggregatedMove setup.Move                  `json:"aggregated_move"`
	Preferences    preferences.UserPreferences `json:"preferences"`
	CostWeights    preferences.CostWeights     `json:"cost_weights"`
	Turns          []TurnDiagnostics           `json:"turns"`
	Clamps         []setup.ClampEvent          `json:"clamps"`
}

// Result is the engine output.
type Result struct {
	OptimizedSetup *setup.Setup `json:"optimized_setup"`
	Diagnostics    Diagnostics  `json:"diagnostics"`
}

// Optimize validates doc and returns a new setup. When prefs is nil they are
// derived from the document. doc is never modified. On error no partial result
// is returned; when several turns are malformed the lowest index is reported.
func (e *Engine) Optimize(ctx context.Context, doc *session.Document, prefs *preferences.UserPreferences) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}
	if err := session.Validate(doc); err != nil {
		return nil, err
	}

	p := preferences.FromDocument(doc)
	if prefs != nil {
		p = *prefs
	}

	turns, err := e.evaluateTurns(doc, p)
	if err != nil {
		return nil, err
	}

	moves := make([]setup.Move, len(turns))
	weights := make([]float64, len(turns))
	for i, t := range turns {
		moves[i] = t.Move
		weights[i] = t.Weight
	}
	agg, err := Aggregate(moves, weights)
	if err != nil {
		return nil, fmt.Errorf("optimize: %w", err)
	}

	out, clamps, err := setup.Apply(doc.InitialSetup, agg, doc.AbsoluteLimits())
	if err != nil {
		var leafErr *setup.LeafError
		if errors.As(err, &leafErr) {
			return nil, &session.SchemaError{Path: "initial_setup." + leafErr.Path, Reason: "must be a number"}
		}
		return nil, fmt.Errorf("optimize: %w", err)
	}

	return &Result{
		OptimizedSetup: out,
		Diagnostics: Diagnostics{
			PerTurnWeights: weights,
			AggregatedMove: agg,
			Preferences:    p,
			CostWeights:    preferences.BuildCostWeights(p),
			Turns:          turns,
			Clamps:         clamps,
		},
	}, nil
}

// evaluateTurns runs the per-turn pipeline concurrently. Results are stored by
// index so aggregation order never depends on scheduling.
func (e *Engine) evaluateTurns(doc *session.Document, p preferences.UserPreferences) ([]TurnDiagnostics, error) {
	var (
		rsp     = doc.RookieStabilityPriority()
		wcap    = doc.TimeLossWeightCap()
		caps    = doc.StepCaps()
		results = make([]TurnDiagnostics, len(doc.Turns))
		errs    = make([]error, len(doc.Turns))
		g       errgroup.Group
	)
	g.SetLimit(e.parallelism)
	for i := range doc.Turns {
		g.Go(func() error {
			results[i], errs[i] = evaluateTurn(i, &doc.Turns[i], doc.Targets, rsp, wcap, caps, p)
			return nil
		})
	}
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return results, nil
}

func evaluateTurn(
	index int,
	turn *session.Turn,
	targets *session.Targets,
	rsp, wcap float64,
	caps map[string]float64,
	p preferences.UserPreferences,
) (TurnDiagnostics, error) {
	obs, err := Evaluate(index, turn, targets)
	if err != nil {
		return TurnDiagnostics{}, err
	}
	mag := ErrorMagnitude(obs.Errors)
	outlier := OutlierScale(mag)
	cw := CornerWeight(turn, rsp, wcap)
	move, fired, err := Propose(obs, caps, p)
	if err != nil {
		return TurnDiagnostics{}, err
	}
	return TurnDiagnostics{
		TurnID:         turn.Label(index),
		Errors:         obs.Errors,
		ErrorMagnitude: mag,
		OutlierScale:   outlier,
		CornerWeight:   cw,
		Weight:         cw * outlier,
		FiredRules:     fired,
		Move:           move,
	}, nil
}
