package objective

import (
	"context"
	"math"
	"math/rand/v2"

	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// SyntheticSessions is a stand-in session runner for smoke runs without a
// backtest engine. Its expected return peaks at Target and each session adds
// Gaussian noise, so it behaves like a noisy strategy objective.
type SyntheticSessions struct {
	Target space.Vector
	// Noise is the per-session standard deviation of the return, in percent.
	Noise float64
	// Scale converts one unit of L1 distance into percent of return lost.
	Scale float64
}

// RunSession implements SessionRunner.
func (r *SyntheticSessions) RunSession(ctx context.Context, v space.Vector, rng *rand.Rand) (SessionStats, error) {
	if err := ctx.Err(); err != nil {
		return SessionStats{}, err
	}
	scale := r.Scale
	if scale <= 0 {
		scale = 1
	}

	noise := rng.NormFloat64() * r.Noise
	roi := 10 - float64(distance(r.Target, v))/scale + noise
	trades := 5 + rng.IntN(45)
	winRate := math.Max(0, math.Min(100, 50+roi*2))
	drawdown := math.Abs(noise) + math.Max(0, -roi)
	sharpe := 0.0
	if r.Noise > 0 {
		sharpe = roi / r.Noise
	}

	return SessionStats{
		Trades:      trades,
		ROI:         roi,
		WinRate:     winRate,
		MaxDrawdown: drawdown,
		Sharpe:      sharpe,
	}, nil
}
