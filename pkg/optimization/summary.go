// Package optimization provides shared data structures for optimization results.
package optimization

import "time"

// Session is the per-session breakdown of the best candidate.
type Session struct {
	Trades      int     `json:"trades"`
	ROI         float64 `json:"roi"`
	WinRate     float64 `json:"winRate"`
	MaxDrawdown float64 `json:"maxDrawdown"`
	Sharpe      float64 `json:"sharpe"`
}

// Summary captures the result of a single optimization run.
type Summary struct {
	RunID          string           `json:"runId"`
	Parameters     int              `json:"parameters"`
	PopulationSize int              `json:"populationSize"`
	MaxIterations  int              `json:"maxIterations"`
	Iterations     int              `json:"iterations"`
	Batches        int              `json:"batches"`
	Updates        int              `json:"updates"`
	Failures       int              `json:"failures"`
	Clamps         int              `json:"clamps"`
	Found          bool             `json:"found"`
	BestObjective  float64          `json:"bestObjective"`
	BestIteration  int              `json:"bestIteration"`
	BestVector     map[string][]int `json:"bestVector,omitempty"`
	Sessions       []Session        `json:"sessions,omitempty"`
	MeanROI        float64          `json:"meanRoi,omitempty"`
	StdDevROI      float64          `json:"stdDevRoi,omitempty"`
	MeanWinRate    float64          `json:"meanWinRate,omitempty"`
	Elapsed        time.Duration    `json:"elapsed"`
}

// Completed reports whether every requested iteration was consumed.
func (s Summary) Completed() bool {
	return s.MaxIterations > 0 && s.Iterations == s.MaxIterations
}
