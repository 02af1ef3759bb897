// Package evolution implements the differential evolution operators:
// mutation, crossover and selection, and the pipeline chaining them for one
// target index.
package evolution

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/mathutil"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
)

// Settings are the DE control constants.
type Settings struct {
	MutationFactor float64
	CrossoverRate  float64
	// MaxMutationRetries caps mutation's rejection sampling. Zero selects the
	// default, a negative value retries without limit.
	MaxMutationRetries int
}

// Operators applies DE operators over vectors of one parameter space. It holds
// no mutable state and is safe for concurrent use.
type Operators struct {
	space      *space.Space
	f          float64
	xi         float64
	maxRetries int
}

// MutationReport describes how a trial vector was obtained.
type MutationReport struct {
	Donors   [3]int
	Attempts int
	Clamped  bool
}

// Selection is the outcome of comparing a target with its child.
type Selection struct {
	Updated     bool
	Vector      space.Vector
	Objective   float64
	Diagnostics *objective.Diagnostics

	TargetObjective float64
	ChildObjective  float64
}

// New validates settings and builds Operators.
func New(s *space.Space, settings Settings) (*Operators, error) {
	if s == nil {
		return nil, fmt.Errorf("parameter space cannot be nil")
	}
	if settings.MutationFactor <= 0 {
		return nil, fmt.Errorf("mutation factor %.3f must be positive", settings.MutationFactor)
	}
	if settings.CrossoverRate < 0 || settings.CrossoverRate > 1 {
		return nil, fmt.Errorf("crossover rate %.3f must be within [0, 1]", settings.CrossoverRate)
	}
	retries := settings.MaxMutationRetries
	if retries == 0 {
		retries = constants.DefaultMaxMutationRetries
	}
	return &Operators{space: s, f: settings.MutationFactor, xi: settings.CrossoverRate, maxRetries: retries}, nil
}

// Space returns the parameter space the operators work on.
func (o *Operators) Space() *space.Space {
	return o.space
}

// Mutate builds the trial vector for target index i as
// round(r1 + F*(r2 - r3)) over three donors drawn without i. Draws producing
// an out-of-bounds element are rejected; once the retry ceiling is reached the
// last trial is clamped onto the bounds instead.
func (o *Operators) Mutate(rng *rand.Rand, pop []space.Vector, i int) (space.Vector, MutationReport, error) {
	if i < 0 || i >= len(pop) {
		return nil, MutationReport{}, fmt.Errorf("target index %d outside population of %d", i, len(pop))
	}

	var report MutationReport
	for {
		report.Attempts++
		donors := randutil.SampleExcluding(rng, len(pop), constants.MinDistinctDonors, i)
		copy(report.Donors[:], donors)

		trial, valid := o.combine(pop[donors[0]], pop[donors[1]], pop[donors[2]])
		if valid {
			return trial, report, nil
		}
		if o.maxRetries > 0 && report.Attempts >= o.maxRetries {
			report.Clamped = true
			return o.space.Clamp(trial), report, nil
		}
	}
}

func (o *Operators) combine(r1, r2, r3 space.Vector) (space.Vector, bool) {
	trial := r1.Clone()
	valid := true
	for _, p := range o.space.Bounded() {
		a, b, c := r1[p.Name], r2[p.Name], r3[p.Name]
		values := make([]int, p.Dim)
		for k := range values {
			values[k] = mathutil.RoundInt(float64(a[k]) + o.f*float64(b[k]-c[k]))
			if !mathutil.WithinInt(values[k], p.Low, p.High) {
				valid = false
			}
		}
		trial[p.Name] = values
	}
	return trial, valid
}

// Crossover mixes target and mutant element-wise: each bounded element comes
// from the mutant with probability xi. Pass-through entries follow the target.
func (o *Operators) Crossover(rng *rand.Rand, target, mutant space.Vector) space.Vector {
	child := target.Clone()
	for _, p := range o.space.Bounded() {
		from := target[p.Name]
		values := make([]int, len(from))
		for k := range values {
			if rng.Float64() < o.xi && k < len(mutant[p.Name]) {
				values[k] = mutant[p.Name][k]
			} else {
				values[k] = from[k]
			}
		}
		child[p.Name] = values
	}
	return child
}

// Select evaluates target and child independently and keeps the child only if
// it scores strictly higher.
func (o *Operators) Select(ctx context.Context, eval objective.Evaluator, target, child space.Vector) (Selection, error) {
	targetEval, err := eval.Evaluate(ctx, target.Clone())
	if err != nil {
		return Selection{}, fmt.Errorf("evaluate target: %w", err)
	}
	childEval, err := eval.Evaluate(ctx, child.Clone())
	if err != nil {
		return Selection{}, fmt.Errorf("evaluate child: %w", err)
	}

	sel := Selection{TargetObjective: targetEval.Fitness, ChildObjective: childEval.Fitness}
	if childEval.Fitness > targetEval.Fitness {
		sel.Updated = true
		sel.Vector = child
		sel.Objective = childEval.Fitness
		sel.Diagnostics = childEval.Diagnostics
	}
	return sel, nil
}

// Outcome is the result of one full pipeline for a target index.
type Outcome struct {
	Index    int
	Mutation MutationReport
	Selection
}

// Iterate runs Mutation, Crossover and Selection for index i against a
// population snapshot. The snapshot is only read.
func (o *Operators) Iterate(ctx context.Context, rng *rand.Rand, eval objective.Evaluator, pop []space.Vector, i int) (Outcome, error) {
	mutant, report, err := o.Mutate(rng, pop, i)
	if err != nil {
		return Outcome{Index: i}, err
	}
	child := o.Crossover(rng, pop[i], mutant)
	sel, err := o.Select(ctx, eval, pop[i], child)
	if err != nil {
		return Outcome{Index: i, Mutation: report}, err
	}
	return Outcome{Index: i, Mutation: report, Selection: sel}, nil
}
