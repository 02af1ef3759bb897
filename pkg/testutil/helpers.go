// Package testutil provides common utility functions for testing.
package testutil

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// ConstantEvaluator returns the same fitness for every vector.
func ConstantEvaluator(fitness float64) objective.Evaluator {
	return objective.EvaluatorFunc(func(context.Context, space.Vector) (objective.Evaluation, error) {
		return objective.Evaluation{Fitness: fitness}, nil
	})
}

// FirstElementEvaluator scores a vector by the first element of name.
func FirstElementEvaluator(name string) objective.Evaluator {
	return objective.EvaluatorFunc(func(_ context.Context, v space.Vector) (objective.Evaluation, error) {
		values := v[name]
		if len(values) == 0 {
			return objective.Evaluation{Fitness: objective.WorstFitness}, fmt.Errorf("parameter %q missing", name)
		}
		return objective.Evaluation{Fitness: float64(values[0])}, nil
	})
}

// CountingEvaluator wraps an evaluator and counts calls.
type CountingEvaluator struct {
	Next  objective.Evaluator
	calls atomic.Int64
}

// Evaluate implements objective.Evaluator.
func (c *CountingEvaluator) Evaluate(ctx context.Context, v space.Vector) (objective.Evaluation, error) {
	c.calls.Add(1)
	return c.Next.Evaluate(ctx, v)
}

// Calls returns the number of evaluations so far.
func (c *CountingEvaluator) Calls() int64 {
	return c.calls.Load()
}

// PanicEvaluator panics for vectors whose first element of name equals value
// and delegates otherwise.
func PanicEvaluator(next objective.Evaluator, name string, value int) objective.Evaluator {
	return objective.EvaluatorFunc(func(ctx context.Context, v space.Vector) (objective.Evaluation, error) {
		if values := v[name]; len(values) > 0 && values[0] == value {
			panic(fmt.Sprintf("evaluator cannot handle %s=%d", name, value))
		}
		return next.Evaluate(ctx, v)
	})
}
