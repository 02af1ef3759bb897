package objective

import (
	"context"
	"fmt"

	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// Sum scores a vector by the sum of the elements of the listed parameters.
// It is deterministic and mostly useful for tests and smoke runs.
type Sum struct {
	Parameters []string
}

// NewSum builds a Sum evaluator over the bounded parameters of s.
func NewSum(s *space.Space) *Sum {
	params := s.Bounded()
	names := make([]string, len(params))
	for i, p := range params {
		names[i] = p.Name
	}
	return &Sum{Parameters: names}
}

// Evaluate implements Evaluator.
func (e *Sum) Evaluate(_ context.Context, v space.Vector) (Evaluation, error) {
	total := 0
	for _, name := range e.Parameters {
		values, ok := v[name]
		if !ok {
			return Evaluation{Fitness: WorstFitness}, fmt.Errorf("sum objective: parameter %q missing", name)
		}
		for _, value := range values {
			total += value
		}
	}
	return Evaluation{Fitness: float64(total)}, nil
}

// Target scores a vector by the negative L1 distance of its entries to a
// target vector, so the target itself scores 0.
type Target struct {
	Target space.Vector
}

// Evaluate implements Evaluator.
func (e *Target) Evaluate(_ context.Context, v space.Vector) (Evaluation, error) {
	return Evaluation{Fitness: -float64(distance(e.Target, v))}, nil
}

func distance(target, v space.Vector) int {
	total := 0
	for name, want := range target {
		got := v[name]
		for i, w := range want {
			g := 0
			if i < len(got) {
				g = got[i]
			}
			if d := w - g; d < 0 {
				total -= d
			} else {
				total += d
			}
		}
	}
	return total
}
