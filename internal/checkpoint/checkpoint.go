// Package checkpoint persists the state of an optimization run after every
// batch, and the best candidate vector whenever it improves.
package checkpoint

import (
	"context"
	"errors"
	"math"

	"github.com/google/uuid"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// State is everything needed to inspect or resume a run.
type State struct {
	RunID         string
	Iteration     int
	MaxIterations int
	Populations   []space.Vector
	Batches       []runlog.Batch
	Best          runlog.Best
}

// Sink is a durable store for run state.
type Sink interface {
	// Save persists the full state; called after every batch.
	Save(ctx context.Context, state State) error
	// SaveBest persists the best record; called on every improvement.
	SaveBest(ctx context.Context, best runlog.Best) error
}

// Multi fans out to several sinks and joins their errors.
type Multi []Sink

// Save implements Sink.
func (m Multi) Save(ctx context.Context, state State) error {
	var errs []error
	for _, s := range m {
		if err := s.Save(ctx, state); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SaveBest implements Sink.
func (m Multi) SaveBest(ctx context.Context, best runlog.Best) error {
	var errs []error
	for _, s := range m {
		if err := s.SaveBest(ctx, best); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NewRunID returns a fresh identifier for a run.
func NewRunID() string {
	return uuid.New().String()
}

// Discard is a Sink that stores nothing.
type Discard struct{}

// Save implements Sink.
func (Discard) Save(context.Context, State) error { return nil }

// SaveBest implements Sink.
func (Discard) SaveBest(context.Context, runlog.Best) error { return nil }

// finite returns nil for NaN and infinities, which JSON cannot encode.
func finite(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func sanitizeBatch(b runlog.Batch) runlog.Batch {
	out := runlog.Batch{Iteration: b.Iteration, Entries: make([]runlog.Entry, len(b.Entries))}
	for i, e := range b.Entries {
		e.Objective = finite(e.Objective)
		e.Diagnostics = e.Diagnostics.Finite()
		out.Entries[i] = e
	}
	return out
}
