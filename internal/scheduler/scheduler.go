// Package scheduler dispatches one batch of independent DE iterations across a
// bounded pool of workers.
package scheduler

import (
	"context"
	"fmt"
	"runtime"

	"github.com/iwvelando/strategy-optimizer/internal/evolution"
	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"github.com/sourcegraph/conc/panics"
	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"
)

// Task is one target index together with the seed of its private generator.
type Task struct {
	Index int
	Seed  uint64
}

// Result is the outcome of one task. A failed task never reports an update.
type Result struct {
	evolution.Outcome
	Err error
}

// Scheduler runs batches of tasks. A new worker pool is created for every
// batch and torn down when the batch completes.
type Scheduler struct {
	logger  *zap.Logger
	workers int
}

// New constructs a Scheduler. workers <= 0 uses one worker per CPU.
func New(logger *zap.Logger, workers int) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	return &Scheduler{logger: logger, workers: workers}
}

// Workers returns the pool size used per batch.
func (s *Scheduler) Workers() int {
	return s.workers
}

// Run executes every task against the read-only population snapshot and
// returns results in task order. It blocks until all tasks have finished;
// dispatched tasks are never cancelled. Errors and panics inside a task are
// confined to that task's Result.
func (s *Scheduler) Run(ctx context.Context, ops *evolution.Operators, eval objective.Evaluator, snapshot []space.Vector, tasks []Task) []Result {
	results := make([]Result, len(tasks))

	p := pool.New().WithMaxGoroutines(s.workers)
	for i, task := range tasks {
		i, task := i, task
		p.Go(func() {
			results[i] = s.runTask(ctx, ops, eval, snapshot, task)
		})
	}
	p.Wait()

	return results
}

func (s *Scheduler) runTask(ctx context.Context, ops *evolution.Operators, eval objective.Evaluator, snapshot []space.Vector, task Task) Result {
	var (
		outcome evolution.Outcome
		err     error
		catcher panics.Catcher
	)
	catcher.Try(func() {
		outcome, err = ops.Iterate(ctx, randutil.FromSeed(task.Seed), eval, snapshot, task.Index)
	})
	if recovered := catcher.Recovered(); recovered != nil {
		err = fmt.Errorf("index %d: %w", task.Index, recovered.AsError())
	}
	if err != nil {
		s.logger.Warn("iteration failed, treating as no update",
			zap.String("op", "scheduler.runTask"),
			zap.Int("index", task.Index),
			zap.Error(err),
		)
		return Result{Outcome: evolution.Outcome{Index: task.Index, Mutation: outcome.Mutation}, Err: err}
	}

	s.logger.Debug("selection",
		zap.String("op", "scheduler.runTask"),
		zap.Int("index", task.Index),
		zap.Float64("diObj", outcome.TargetObjective),
		zap.Float64("ciObj", outcome.ChildObjective),
		zap.Bool("updated", outcome.Updated),
		zap.Int("mutationAttempts", outcome.Mutation.Attempts),
		zap.Bool("mutationClamped", outcome.Mutation.Clamped),
	)
	return Result{Outcome: outcome}
}
