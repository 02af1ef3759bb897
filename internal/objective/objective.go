// Package objective defines the contract between the optimizer and the code
// that scores a candidate configuration, plus a few ready-made evaluators.
package objective

import (
	"context"
	"math"

	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// WorstFitness is the value an evaluator reports when it cannot compute a
// meaningful fitness for a vector. It loses every strict comparison.
var WorstFitness = math.Inf(-1)

// Evaluator scores a full candidate vector (bounded plus pass-through
// entries). Higher fitness is strictly better. Implementations must not depend
// on optimizer state and must be safe for concurrent use.
type Evaluator interface {
	Evaluate(ctx context.Context, v space.Vector) (Evaluation, error)
}

// EvaluatorFunc adapts a plain function to Evaluator.
type EvaluatorFunc func(ctx context.Context, v space.Vector) (Evaluation, error)

// Evaluate calls f.
func (f EvaluatorFunc) Evaluate(ctx context.Context, v space.Vector) (Evaluation, error) {
	return f(ctx, v)
}

// Evaluation is the result of scoring one vector.
type Evaluation struct {
	Fitness     float64
	Diagnostics *Diagnostics
}

// SessionStats summarizes one randomized backtest session.
type SessionStats struct {
	Trades      int     `json:"trades" yaml:"trades"`
	ROI         float64 `json:"roi" yaml:"roi"`                 // percent
	WinRate     float64 `json:"winRate" yaml:"winRate"`         // percent
	MaxDrawdown float64 `json:"maxDrawdown" yaml:"maxDrawdown"` // percent
	Sharpe      float64 `json:"sharpe" yaml:"sharpe"`
}

// Diagnostics is the optional structured payload attached to an evaluation.
type Diagnostics struct {
	Sessions    []SessionStats `json:"sessions,omitempty" yaml:"sessions,omitempty"`
	MeanROI     float64        `json:"meanRoi" yaml:"meanRoi"`
	StdDevROI   float64        `json:"stdDevRoi" yaml:"stdDevRoi"`
	MeanWinRate float64        `json:"meanWinRate" yaml:"meanWinRate"`
}

// Clone returns a deep copy; nil stays nil.
func (d *Diagnostics) Clone() *Diagnostics {
	if d == nil {
		return nil
	}
	out := *d
	out.Sessions = append([]SessionStats(nil), d.Sessions...)
	return &out
}

// Finite returns a copy with NaN and infinite values replaced by zero, so the
// payload can always be encoded as JSON. nil stays nil.
func (d *Diagnostics) Finite() *Diagnostics {
	out := d.Clone()
	if out == nil {
		return nil
	}
	out.MeanROI = finiteOrZero(out.MeanROI)
	out.StdDevROI = finiteOrZero(out.StdDevROI)
	out.MeanWinRate = finiteOrZero(out.MeanWinRate)
	for i := range out.Sessions {
		s := &out.Sessions[i]
		s.ROI = finiteOrZero(s.ROI)
		s.WinRate = finiteOrZero(s.WinRate)
		s.MaxDrawdown = finiteOrZero(s.MaxDrawdown)
		s.Sharpe = finiteOrZero(s.Sharpe)
	}
	return out
}

func finiteOrZero(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
