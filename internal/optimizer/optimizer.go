// Package optimizer drives a Differential Evolution run: it samples batches of
// population indices, dispatches them to the scheduler, applies accepted
// children and persists progress after every batch.
package optimizer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/checkpoint"
	"github.com/iwvelando/strategy-optimizer/internal/evolution"
	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/population"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/scheduler"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/optimization"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"go.uber.org/zap"
)

var (
	// ErrPopulationEmpty is returned by Run when there is nothing to evolve.
	ErrPopulationEmpty = errors.New("population is empty")
	// ErrInvalidRun is returned by Run for unusable run arguments or when
	// the runner has already been used.
	ErrInvalidRun = errors.New("invalid run")
)

// State is the lifecycle position of a Runner.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Observer receives progress notifications from the run loop.
type Observer interface {
	ObserveBatch(batch runlog.Batch, consumed int, elapsed time.Duration)
	ObserveBest(best runlog.Best)
}

// Options wires the collaborators of a Runner. Operators and Evaluator are
// required; everything else has a default.
type Options struct {
	Logger         *zap.Logger
	Population     *population.Store
	Operators      *evolution.Operators
	Scheduler      *scheduler.Scheduler
	Evaluator      objective.Evaluator
	Sink           checkpoint.Sink
	Observer       Observer
	Seeder         *randutil.Seeder
	HeartbeatEvery int
	RunID          string
	// InitialBest carries the best record of a resumed run.
	InitialBest runlog.Best
}

// Status is a point-in-time view of a run.
type Status struct {
	RunID         string
	State         State
	Iteration     int
	MaxIterations int
	Batches       int
	Updates       int
	Failures      int
	StartedAt     time.Time
	Best          runlog.Best
}

// Runner executes one optimization run.
type Runner struct {
	logger    *zap.Logger
	pop       *population.Store
	ops       *evolution.Operators
	sched     *scheduler.Scheduler
	eval      objective.Evaluator
	sink      checkpoint.Sink
	observer  Observer
	seeder    *randutil.Seeder
	heartbeat int
	runID     string

	mu            sync.RWMutex
	state         State
	iteration     int
	maxIterations int
	updates       int
	failures      int
	clamps        int
	startedAt     time.Time
	log           runlog.Log
	best          runlog.Best
}

// New constructs a Runner.
func New(opts Options) (*Runner, error) {
	if opts.Operators == nil {
		return nil, fmt.Errorf("operators cannot be nil")
	}
	if opts.Evaluator == nil {
		return nil, fmt.Errorf("evaluator cannot be nil")
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sched := opts.Scheduler
	if sched == nil {
		sched = scheduler.New(logger, 0)
	}
	sink := opts.Sink
	if sink == nil {
		sink = checkpoint.Discard{}
	}
	seeder := opts.Seeder
	if seeder == nil {
		seeder = randutil.NewSeeder(0)
	}
	heartbeat := opts.HeartbeatEvery
	if heartbeat <= 0 {
		heartbeat = constants.DefaultHeartbeatEvery
	}
	runID := opts.RunID
	if runID == "" {
		runID = checkpoint.NewRunID()
	}

	return &Runner{
		logger:    logger,
		pop:       opts.Population,
		ops:       opts.Operators,
		sched:     sched,
		eval:      opts.Evaluator,
		sink:      sink,
		observer:  opts.Observer,
		seeder:    seeder,
		heartbeat: heartbeat,
		runID:     runID,
		best:      opts.InitialBest.Clone(),
	}, nil
}

// RunID identifies the run in logs and checkpoints.
func (r *Runner) RunID() string {
	return r.runID
}

// State returns the current lifecycle state.
func (r *Runner) State() State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Best returns a copy of the best record.
func (r *Runner) Best() runlog.Best {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.best.Clone()
}

// Log returns a copy of the recorded batches.
func (r *Runner) Log() []runlog.Batch {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.log.Batches()
}

// Status returns a point-in-time view of the run. Safe to call while Run is
// in progress.
func (r *Runner) Status() Status {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Status{
		RunID:         r.runID,
		State:         r.state,
		Iteration:     r.iteration,
		MaxIterations: r.maxIterations,
		Batches:       r.log.Len(),
		Updates:       r.updates,
		Failures:      r.failures,
		StartedAt:     r.startedAt,
		Best:          r.best.Clone(),
	}
}

// Run consumes exactly maxIterations iterations in batches of at most
// batchSize indices. Cancellation is checked between batches; a dispatched
// batch always completes.
func (r *Runner) Run(ctx context.Context, maxIterations, batchSize int) (optimization.Summary, error) {
	if r.pop.Len() == 0 {
		return optimization.Summary{}, ErrPopulationEmpty
	}
	if maxIterations <= 0 {
		return optimization.Summary{}, fmt.Errorf("%w: max iterations %d must be positive", ErrInvalidRun, maxIterations)
	}
	if batchSize <= 0 {
		return optimization.Summary{}, fmt.Errorf("%w: batch size %d must be positive", ErrInvalidRun, batchSize)
	}

	r.mu.Lock()
	if r.state != StateIdle {
		state := r.state
		r.mu.Unlock()
		return optimization.Summary{}, fmt.Errorf("%w: runner is %s", ErrInvalidRun, state)
	}
	r.state = StateRunning
	r.maxIterations = maxIterations
	r.startedAt = time.Now()
	r.mu.Unlock()

	popSize := r.pop.Len()
	r.logger.Info("starting optimization",
		zap.String("op", "optimizer.Run"),
		zap.String("runId", r.runID),
		zap.Int("parameters", r.pop.Space().Dimensionality()),
		zap.Int("populationSize", popSize),
		zap.Int("maxIterations", maxIterations),
		zap.Int("batchSize", batchSize),
		zap.Int("workers", r.sched.Workers()),
	)

	for i := 0; i < maxIterations; {
		if err := ctx.Err(); err != nil {
			return r.fail(fmt.Errorf("run cancelled at iteration %d: %w", i, err))
		}

		n := min(batchSize, maxIterations-i, popSize)
		indices := randutil.Sample(r.seeder.Rand(), popSize, n)
		tasks := make([]scheduler.Task, len(indices))
		for j, idx := range indices {
			tasks[j] = scheduler.Task{Index: idx, Seed: r.seeder.Next()}
		}

		start := time.Now()
		results := r.sched.Run(ctx, r.ops, r.eval, r.pop.Snapshot(), tasks)
		elapsed := time.Since(start)

		batch, err := r.apply(ctx, i, results)
		if err != nil {
			return r.fail(err)
		}
		i += len(results)

		r.mu.Lock()
		r.iteration = i
		r.mu.Unlock()

		if r.observer != nil {
			r.observer.ObserveBatch(batch, i, elapsed)
		}
		if err := r.sink.Save(ctx, r.checkpointState()); err != nil {
			return r.fail(fmt.Errorf("save checkpoint at iteration %d: %w", i, err))
		}

		if batch.Updates() == 0 && r.log.Len()%r.heartbeat == 0 {
			best := r.Best()
			r.logger.Info("no improvement in batch",
				zap.String("op", "optimizer.Run"),
				zap.Int("iteration", i),
				zap.Int("maxIterations", maxIterations),
				zap.Bool("bestFound", best.Found),
				zap.Float64("bestObjective", best.Objective),
			)
		}
	}

	r.mu.Lock()
	r.state = StateCompleted
	r.mu.Unlock()

	summary := r.summary()
	r.logger.Info("optimization finished",
		zap.String("op", "optimizer.Run"),
		zap.String("runId", r.runID),
		zap.Int("iterations", summary.Iterations),
		zap.Int("updates", summary.Updates),
		zap.Int("failures", summary.Failures),
		zap.Bool("bestFound", summary.Found),
		zap.Float64("bestObjective", summary.BestObjective),
		zap.Duration("elapsed", summary.Elapsed),
	)
	return summary, nil
}

// apply writes the accepted children of one batch into the population, records
// the batch and updates the best record. iteration is the number of
// iterations consumed before the batch.
func (r *Runner) apply(ctx context.Context, iteration int, results []scheduler.Result) (runlog.Batch, error) {
	batch := runlog.Batch{Iteration: iteration, Entries: make([]runlog.Entry, len(results))}
	var improved bool

	for j, res := range results {
		entry := runlog.Entry{Index: res.Index, Clamped: res.Mutation.Clamped}
		switch {
		case res.Err != nil:
			entry.Error = res.Err.Error()
		case res.Updated:
			if err := r.pop.Replace(res.Index, res.Vector); err != nil {
				return batch, fmt.Errorf("apply child at iteration %d: %w", iteration+j, err)
			}
			value := res.Objective
			entry.Updated = true
			entry.Vector = res.Vector.Clone()
			entry.Objective = &value
			entry.Diagnostics = res.Diagnostics.Clone()

			r.mu.Lock()
			taken := r.best.Offer(iteration+j, value, res.Vector, res.Diagnostics)
			r.mu.Unlock()
			if taken {
				improved = true
				r.logBest(iteration + j)
			}
		}
		batch.Entries[j] = entry
	}

	r.mu.Lock()
	r.log.Append(batch)
	r.updates += batch.Updates()
	r.failures += batch.Failures()
	for _, e := range batch.Entries {
		if e.Clamped {
			r.clamps++
		}
	}
	r.mu.Unlock()

	if improved {
		best := r.Best()
		if r.observer != nil {
			r.observer.ObserveBest(best)
		}
		if err := r.sink.SaveBest(ctx, best); err != nil {
			return batch, fmt.Errorf("save best at iteration %d: %w", iteration, err)
		}
	}
	return batch, nil
}

func (r *Runner) logBest(iteration int) {
	best := r.Best()
	r.logger.Info("new best objective",
		zap.String("op", "optimizer.Run"),
		zap.Int("iteration", iteration),
		zap.Int("maxIterations", r.maxIterations),
		zap.Float64("objective", best.Objective),
		zap.Any("vector", best.Vector),
	)
	if best.Diagnostics == nil {
		return
	}
	for n, s := range best.Diagnostics.Sessions {
		r.logger.Info("best session",
			zap.String("op", "optimizer.Run"),
			zap.Int("session", n+1),
			zap.Int("trades", s.Trades),
			zap.Float64("roi", s.ROI),
			zap.Float64("winRate", s.WinRate),
			zap.Float64("maxDrawdown", s.MaxDrawdown),
			zap.Float64("sharpe", s.Sharpe),
		)
	}
}

func (r *Runner) checkpointState() checkpoint.State {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return checkpoint.State{
		RunID:         r.runID,
		Iteration:     r.iteration,
		MaxIterations: r.maxIterations,
		Populations:   r.pop.Snapshot(),
		Batches:       r.log.Batches(),
		Best:          r.best.Clone(),
	}
}

func (r *Runner) fail(err error) (optimization.Summary, error) {
	r.mu.Lock()
	r.state = StateFailed
	r.mu.Unlock()

	r.logger.Error("optimization failed",
		zap.String("op", "optimizer.Run"),
		zap.String("runId", r.runID),
		zap.Error(err),
	)
	return r.summary(), err
}

func (r *Runner) summary() optimization.Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := optimization.Summary{
		RunID:          r.runID,
		Parameters:     r.pop.Space().Dimensionality(),
		PopulationSize: r.pop.Len(),
		MaxIterations:  r.maxIterations,
		Iterations:     r.iteration,
		Batches:        r.log.Len(),
		Updates:        r.updates,
		Failures:       r.failures,
		Clamps:         r.clamps,
		Found:          r.best.Found,
		Elapsed:        time.Since(r.startedAt),
	}
	if !r.best.Found {
		return s
	}
	s.BestObjective = r.best.Objective
	s.BestIteration = r.best.Iteration
	s.BestVector = r.best.Vector.Clone()
	if d := r.best.Diagnostics; d != nil {
		s.MeanROI = d.MeanROI
		s.StdDevROI = d.StdDevROI
		s.MeanWinRate = d.MeanWinRate
		for _, session := range d.Sessions {
			s.Sessions = append(s.Sessions, optimization.Session(session))
		}
	}
	return s
}
