package objective

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"gonum.org/v1/gonum/stat"
)

// SessionRunner runs one randomized backtest session for a candidate. The rng
// is owned by the call; runners pick their random window from it.
type SessionRunner interface {
	RunSession(ctx context.Context, v space.Vector, rng *rand.Rand) (SessionStats, error)
}

// Sessions averages a metric over several randomized sessions.
type Sessions struct {
	runner   SessionRunner
	sessions int
	metric   string
	seeder   *randutil.Seeder
}

// NewSessions builds a session-averaging evaluator. metric is one of
// constants.SessionMetricROI or constants.SessionMetricWinRate.
func NewSessions(runner SessionRunner, sessions int, metric string, seeder *randutil.Seeder) (*Sessions, error) {
	if runner == nil {
		return nil, fmt.Errorf("session runner cannot be nil")
	}
	if sessions < 1 {
		return nil, fmt.Errorf("session count %d must be at least 1", sessions)
	}
	switch metric {
	case "":
		metric = constants.SessionMetricROI
	case constants.SessionMetricROI, constants.SessionMetricWinRate:
	default:
		return nil, fmt.Errorf("session metric %q is not supported", metric)
	}
	if seeder == nil {
		seeder = randutil.NewSeeder(0)
	}
	return &Sessions{runner: runner, sessions: sessions, metric: metric, seeder: seeder}, nil
}

// Evaluate implements Evaluator. A vector that produced no trades in any
// session scores WorstFitness.
func (e *Sessions) Evaluate(ctx context.Context, v space.Vector) (Evaluation, error) {
	reports := make([]SessionStats, 0, e.sessions)
	for i := 0; i < e.sessions; i++ {
		report, err := e.runner.RunSession(ctx, v, e.seeder.Rand())
		if err != nil {
			return Evaluation{Fitness: WorstFitness}, fmt.Errorf("session %d: %w", i, err)
		}
		reports = append(reports, report)
	}

	diag := Summarize(reports)
	traded := false
	for _, r := range reports {
		if r.Trades > 0 {
			traded = true
			break
		}
	}
	if !traded {
		return Evaluation{Fitness: WorstFitness, Diagnostics: diag}, nil
	}

	fitness := diag.MeanROI
	if e.metric == constants.SessionMetricWinRate {
		fitness = diag.MeanWinRate
	}
	return Evaluation{Fitness: fitness, Diagnostics: diag}, nil
}

// Summarize aggregates session reports. Sessions without trades contribute a
// zero return.
func Summarize(reports []SessionStats) *Diagnostics {
	roi := make([]float64, len(reports))
	winRate := make([]float64, len(reports))
	for i, r := range reports {
		if r.Trades > 0 {
			roi[i] = r.ROI
			winRate[i] = r.WinRate
		}
	}

	diag := &Diagnostics{Sessions: append([]SessionStats(nil), reports...)}
	if len(reports) == 0 {
		return diag
	}
	diag.MeanROI = stat.Mean(roi, nil)
	diag.MeanWinRate = stat.Mean(winRate, nil)
	if len(reports) > 1 {
		diag.StdDevROI = stat.StdDev(roi, nil)
	}
	return diag
}
