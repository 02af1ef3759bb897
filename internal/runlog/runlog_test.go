package runlog

import (
	"math"
	"testing"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
)

func TestBestOfferIsStrictlyMonotone(t *testing.T) {
	var best Best
	steps := []struct {
		name      string
		value     float64
		wantTaken bool
		wantBest  float64
	}{
		{"First finite value", -5, true, -5},
		{"Improvement", 2, true, 2},
		{"Tie is ignored", 2, false, 2},
		{"Regression is ignored", 1, false, 2},
		{"NaN is ignored", math.NaN(), false, 2},
		{"Further improvement", 3.5, true, 3.5},
	}

	for i, step := range steps {
		t.Run(step.name, func(t *testing.T) {
			taken := best.Offer(i, step.value, space.Vector{"x": {i}}, nil)
			if taken != step.wantTaken {
				t.Fatalf("Offer(%v) = %v, expected %v", step.value, taken, step.wantTaken)
			}
			if best.Objective != step.wantBest {
				t.Errorf("Objective = %v, expected %v", best.Objective, step.wantBest)
			}
		})
	}
	if best.Iteration != 5 || best.Vector["x"][0] != 5 {
		t.Errorf("best record = %+v, expected iteration 5", best)
	}
}

func TestBestOfferCopiesInputs(t *testing.T) {
	var best Best
	v := space.Vector{"x": {1}}
	diag := &objective.Diagnostics{Sessions: []objective.SessionStats{{Trades: 2}}}
	best.Offer(0, 1, v, diag)

	v["x"][0] = 9
	diag.Sessions[0].Trades = 9
	if best.Vector["x"][0] != 1 || best.Diagnostics.Sessions[0].Trades != 2 {
		t.Fatalf("Offer() kept references to caller data: %+v", best)
	}

	clone := best.Clone()
	clone.Vector["x"][0] = 7
	if best.Vector["x"][0] != 1 {
		t.Fatalf("Clone() shares the vector")
	}
}

func TestBatchCounters(t *testing.T) {
	one := 1.0
	b := Batch{Entries: []Entry{
		{Index: 0, Updated: true, Objective: &one},
		{Index: 1},
		{Index: 2, Error: "boom"},
	}}
	if b.Updates() != 1 {
		t.Errorf("Updates() = %d, expected 1", b.Updates())
	}
	if b.Failures() != 1 {
		t.Errorf("Failures() = %d, expected 1", b.Failures())
	}
}

func TestLogAppend(t *testing.T) {
	var l Log
	l.Append(Batch{Iteration: 0})
	l.Append(Batch{Iteration: 8})
	if l.Len() != 2 {
		t.Fatalf("Len() = %d, expected 2", l.Len())
	}
	batches := l.Batches()
	batches[0].Iteration = 99
	if l.Batches()[0].Iteration != 0 {
		t.Fatalf("Batches() exposed internal storage")
	}
}
