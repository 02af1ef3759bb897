// Package runlog holds the append-only record of an optimization run.
package runlog

import (
	"math"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/space"
)

// Entry is the outcome for one evaluated index within a batch. Vector,
// Objective and Diagnostics are only set when Updated is true.
type Entry struct {
	Index       int                    `json:"index"`
	Updated     bool                   `json:"updated"`
	Vector      space.Vector           `json:"vector,omitempty"`
	Objective   *float64               `json:"objective,omitempty"`
	Diagnostics *objective.Diagnostics `json:"info,omitempty"`
	Clamped     bool                   `json:"clamped,omitempty"`
	Error       string                 `json:"error,omitempty"`
}

// Batch records one generation step.
type Batch struct {
	Iteration int     `json:"iteration"`
	Entries   []Entry `json:"entries"`
}

// Updates counts the accepted children of the batch.
func (b Batch) Updates() int {
	n := 0
	for _, e := range b.Entries {
		if e.Updated {
			n++
		}
	}
	return n
}

// Failures counts the entries whose pipeline failed.
func (b Batch) Failures() int {
	n := 0
	for _, e := range b.Entries {
		if e.Error != "" {
			n++
		}
	}
	return n
}

// Best is the best-known solution of a run.
type Best struct {
	Found       bool                   `json:"found"`
	Iteration   int                    `json:"iteration"`
	Objective   float64                `json:"objective"`
	Vector      space.Vector           `json:"vector,omitempty"`
	Diagnostics *objective.Diagnostics `json:"info,omitempty"`
}

// Offer replaces the best record when value strictly improves on it and
// reports whether it did. NaN never becomes the best.
func (b *Best) Offer(iteration int, value float64, v space.Vector, diag *objective.Diagnostics) bool {
	if math.IsNaN(value) || (b.Found && !(value > b.Objective)) {
		return false
	}
	b.Found = true
	b.Iteration = iteration
	b.Objective = value
	b.Vector = v.Clone()
	b.Diagnostics = diag.Clone()
	return true
}

// Clone returns a deep copy of the record.
func (b Best) Clone() Best {
	out := b
	out.Vector = b.Vector.Clone()
	out.Diagnostics = b.Diagnostics.Clone()
	return out
}

// Log is the ordered list of batches of a run.
type Log struct {
	batches []Batch
}

// Append adds a batch at the end of the log.
func (l *Log) Append(b Batch) {
	l.batches = append(l.batches, b)
}

// Len returns the number of batches recorded.
func (l *Log) Len() int {
	return len(l.batches)
}

// Batches returns a copy of the recorded batches.
func (l *Log) Batches() []Batch {
	return append([]Batch(nil), l.batches...)
}
