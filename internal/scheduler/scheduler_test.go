package scheduler

import (
	"context"
	"errors"
	"runtime"
	"sync/atomic"
	"testing"

	"github.com/iwvelando/strategy-optimizer/internal/evolution"
	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"github.com/iwvelando/strategy-optimizer/pkg/testutil"
	"go.uber.org/zap"
)

func setup(t *testing.T) (*space.Space, *evolution.Operators, []space.Vector) {
	t.Helper()
	s, err := space.New(space.Vector{"x": {0}, "y": {0, 0}}, map[string]space.Bounds{
		"x": {Low: 0, High: 100},
		"y": {Low: 0, High: 100},
	})
	if err != nil {
		t.Fatalf("space.New() error = %v", err)
	}
	ops, err := evolution.New(s, evolution.Settings{MutationFactor: 0.5, CrossoverRate: 0.9})
	if err != nil {
		t.Fatalf("evolution.New() error = %v", err)
	}
	rng := randutil.FromSeed(10)
	pop := make([]space.Vector, 12)
	for i := range pop {
		pop[i] = s.Random(rng)
	}
	return s, ops, pop
}

func tasksFor(indices ...int) []Task {
	tasks := make([]Task, len(indices))
	for i, idx := range indices {
		tasks[i] = Task{Index: idx, Seed: uint64(100 + idx)}
	}
	return tasks
}

func TestNewDefaultsWorkers(t *testing.T) {
	if got := New(nil, 0).Workers(); got != runtime.NumCPU() {
		t.Errorf("Workers() = %d, expected %d", got, runtime.NumCPU())
	}
	if got := New(zap.NewNop(), 3).Workers(); got != 3 {
		t.Errorf("Workers() = %d, expected 3", got)
	}
}

func TestRunPreservesOrderAndMatchesSequential(t *testing.T) {
	s, ops, pop := setup(t)
	eval := objective.NewSum(s)
	tasks := tasksFor(7, 2, 9, 0, 5)

	results := New(zap.NewNop(), 4).Run(context.Background(), ops, eval, pop, tasks)
	if len(results) != len(tasks) {
		t.Fatalf("Run() returned %d results, expected %d", len(results), len(tasks))
	}

	for i, task := range tasks {
		if results[i].Err != nil {
			t.Fatalf("task %d error = %v", i, results[i].Err)
		}
		if results[i].Index != task.Index {
			t.Errorf("result %d index = %d, expected %d", i, results[i].Index, task.Index)
		}
		want, err := ops.Iterate(context.Background(), randutil.FromSeed(task.Seed), eval, pop, task.Index)
		if err != nil {
			t.Fatalf("Iterate() error = %v", err)
		}
		if want.Updated != results[i].Updated || want.Objective != results[i].Objective || !want.Vector.Equal(results[i].Vector) {
			t.Errorf("result %d differs from sequential run: %+v vs %+v", i, results[i].Outcome, want)
		}
	}
}

func TestRunDoesNotMutateSnapshot(t *testing.T) {
	s, ops, pop := setup(t)
	before := make([]space.Vector, len(pop))
	for i, v := range pop {
		before[i] = v.Clone()
	}

	New(zap.NewNop(), 4).Run(context.Background(), ops, objective.NewSum(s), pop, tasksFor(0, 1, 2, 3, 4, 5))
	for i := range pop {
		if !pop[i].Equal(before[i]) {
			t.Fatalf("snapshot vector %d changed during the batch", i)
		}
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	_, ops, pop := setup(t)
	boom := errors.New("backtest crashed")
	target := pop[3]["x"][0]
	var calls atomic.Int64
	eval := objective.EvaluatorFunc(func(_ context.Context, v space.Vector) (objective.Evaluation, error) {
		calls.Add(1)
		if v.Equal(pop[3]) {
			return objective.Evaluation{}, boom
		}
		return objective.Evaluation{Fitness: float64(v["x"][0])}, nil
	})

	results := New(zap.NewNop(), 2).Run(context.Background(), ops, eval, pop, tasksFor(1, 3, 5))
	if !errors.Is(results[1].Err, boom) {
		t.Fatalf("failing task error = %v, expected %v (x=%d)", results[1].Err, boom, target)
	}
	if results[1].Updated || results[1].Index != 3 {
		t.Errorf("failing task should report no update for index 3: %+v", results[1].Outcome)
	}
	for _, i := range []int{0, 2} {
		if results[i].Err != nil {
			t.Errorf("sibling task %d error = %v", i, results[i].Err)
		}
	}
	if calls.Load() < 5 {
		t.Errorf("expected sibling evaluations to run, got %d calls", calls.Load())
	}
}

func TestRunRecoversPanics(t *testing.T) {
	s, ops, pop := setup(t)
	eval := testutil.PanicEvaluator(objective.NewSum(s), "x", pop[4]["x"][0])
	// Only the snapshot vector at 4 is guaranteed to trigger the panic, so
	// restrict the batch to indices whose targets do not share its x value.
	indices := []int{4}
	for i := range pop {
		if i != 4 && pop[i]["x"][0] != pop[4]["x"][0] && len(indices) < 3 {
			indices = append(indices, i)
		}
	}

	results := New(zap.NewNop(), 3).Run(context.Background(), ops, eval, pop, tasksFor(indices...))
	if results[0].Err == nil {
		t.Fatalf("expected recovered panic for index 4")
	}
	if results[0].Updated {
		t.Errorf("panicking task reported an update")
	}
}

func TestRunEmptyBatch(t *testing.T) {
	s, ops, pop := setup(t)
	if got := New(zap.NewNop(), 2).Run(context.Background(), ops, objective.NewSum(s), pop, nil); len(got) != 0 {
		t.Fatalf("Run() with no tasks returned %d results", len(got))
	}
}
