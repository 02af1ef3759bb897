// Package metrics exports optimization progress as Prometheus metrics.
package metrics

import (
	"math"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strategy_optimizer"

// Recorder implements optimizer.Observer on top of Prometheus collectors.
type Recorder struct {
	batches       prometheus.Counter
	evaluations   prometheus.Counter
	failures      prometheus.Counter
	clamps        prometheus.Counter
	updates       prometheus.Counter
	iteration     prometheus.Gauge
	bestObjective prometheus.Gauge
	batchDuration prometheus.Histogram
}

// NewRecorder creates the collectors and registers them with reg. A nil
// registerer leaves them unregistered.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "batches_total",
			Help:      "Batches of candidate updates processed.",
		}),
		evaluations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluations_total",
			Help:      "Index pipelines run (mutation, crossover and selection).",
		}),
		failures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evaluation_failures_total",
			Help:      "Index pipelines that failed and were recorded as no update.",
		}),
		clamps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mutation_clamps_total",
			Help:      "Mutations that exhausted their retries and were clamped to bounds.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "updates_total",
			Help:      "Children that replaced their target.",
		}),
		iteration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "iteration",
			Help:      "Iterations consumed by the current run.",
		}),
		bestObjective: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "best_objective",
			Help:      "Best objective value seen in the current run.",
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "batch_duration_seconds",
			Help:      "Wall time spent evaluating a batch.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10),
		}),
	}
	r.bestObjective.Set(math.NaN())

	if reg != nil {
		for _, c := range r.collectors() {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// ObserveBatch records a completed batch.
func (r *Recorder) ObserveBatch(batch runlog.Batch, consumed int, elapsed time.Duration) {
	r.batches.Inc()
	r.evaluations.Add(float64(len(batch.Entries)))
	r.failures.Add(float64(batch.Failures()))
	r.updates.Add(float64(batch.Updates()))
	clamped := 0
	for _, e := range batch.Entries {
		if e.Clamped {
			clamped++
		}
	}
	r.clamps.Add(float64(clamped))
	r.iteration.Set(float64(consumed))
	r.batchDuration.Observe(elapsed.Seconds())
}

// ObserveBest records a new best objective.
func (r *Recorder) ObserveBest(best runlog.Best) {
	if best.Found {
		r.bestObjective.Set(best.Objective)
	}
}

func (r *Recorder) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		r.batches,
		r.evaluations,
		r.failures,
		r.clamps,
		r.updates,
		r.iteration,
		r.bestObjective,
		r.batchDuration,
	}
}
