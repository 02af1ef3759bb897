package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/space"
)

func sampleState() State {
	two, nan := 2.0, math.NaN()
	return State{
		RunID:         "run-1",
		Iteration:     4,
		MaxIterations: 10,
		Populations:   []space.Vector{{"x": {1}, "y": {7}}, {"x": {2}, "y": {7}}},
		Batches: []runlog.Batch{
			{Iteration: 0, Entries: []runlog.Entry{
				{Index: 1, Updated: true, Vector: space.Vector{"x": {2}, "y": {7}}, Objective: &two},
				{Index: 0},
			}},
			{Iteration: 2, Entries: []runlog.Entry{
				{Index: 0, Updated: true, Vector: space.Vector{"x": {1}, "y": {7}}, Objective: &nan},
				{Index: 1, Error: "evaluate child: boom"},
			}},
		},
		Best: runlog.Best{
			Found:     true,
			Iteration: 1,
			Objective: 2,
			Vector:    space.Vector{"x": {2}, "y": {7}},
			Diagnostics: &objective.Diagnostics{
				Sessions: []objective.SessionStats{{Trades: 3, ROI: 0.1}},
				MeanROI:  0.1,
			},
		},
	}
}

func TestFileStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	bestPath := filepath.Join(dir, "best.yaml")

	store := NewFileStore(path, bestPath)
	saved := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return saved }

	state := sampleState()
	if err := store.Save(context.Background(), state); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	if err := store.SaveBest(context.Background(), state.Best); err != nil {
		t.Fatalf("SaveBest() returned error: %v", err)
	}

	archive, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	if archive.RunID != "run-1" || archive.Iteration != 4 || archive.MaxIterations != 10 {
		t.Errorf("archive header = %+v", archive)
	}
	if !archive.SavedAt.Equal(saved) {
		t.Errorf("SavedAt = %v, expected %v", archive.SavedAt, saved)
	}
	if len(archive.Populations) != 2 || !archive.Populations[1].Equal(state.Populations[1]) {
		t.Errorf("Populations = %v", archive.Populations)
	}
	if got := archive.Iterations; len(got) != 2 || got[0] != 0 || got[1] != 2 {
		t.Errorf("Iterations = %v, expected [0 2]", got)
	}
	if archive.Indices[0][0] != 1 || archive.Indices[0][1] != 0 {
		t.Errorf("Indices[0] = %v, expected [1 0]", archive.Indices[0])
	}
	if archive.Objective[0][0] == nil || *archive.Objective[0][0] != 2 {
		t.Errorf("Objective[0][0] = %v, expected 2", archive.Objective[0][0])
	}
	if archive.Objective[1][0] != nil {
		t.Errorf("NaN objective should be stored as null, got %v", *archive.Objective[1][0])
	}
	if archive.Errors == nil || archive.Errors[1][1] != "evaluate child: boom" {
		t.Errorf("Errors = %v", archive.Errors)
	}

	best := archive.Best()
	if !best.Found || best.Objective != 2 || best.Iteration != 1 || !best.Vector.Equal(state.Best.Vector) {
		t.Errorf("Best() = %+v", best)
	}
	if best.Diagnostics == nil || best.Diagnostics.Sessions[0].Trades != 3 {
		t.Errorf("Best().Diagnostics = %+v", best.Diagnostics)
	}

	vector, err := LoadBestFile(bestPath)
	if err != nil {
		t.Fatalf("LoadBestFile() returned error: %v", err)
	}
	if !vector.Equal(state.Best.Vector) {
		t.Errorf("LoadBestFile() = %v, expected %v", vector, state.Best.Vector)
	}
}

func TestFileStoreOmitsErrorsWhenNoneFailed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	state := sampleState()
	state.Batches = state.Batches[:1]

	if err := NewFileStore(path, "").Save(context.Background(), state); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatal(err)
	}
	if _, ok := raw["errors"]; ok {
		t.Errorf("archive contains errors key without failures")
	}
	for _, key := range []string{"populations", "objective", "control_params", "info", "op_objective"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("archive is missing %q", key)
		}
	}
}

func TestFileStoreSkipsEmptyPaths(t *testing.T) {
	store := NewFileStore("", "")
	if err := store.Save(context.Background(), sampleState()); err != nil {
		t.Errorf("Save() returned error: %v", err)
	}
	if err := store.SaveBest(context.Background(), sampleState().Best); err != nil {
		t.Errorf("SaveBest() returned error: %v", err)
	}
}

func TestFileStoreSaveBestNotFound(t *testing.T) {
	bestPath := filepath.Join(t.TempDir(), "best.yaml")
	if err := NewFileStore("", bestPath).SaveBest(context.Background(), runlog.Best{}); err != nil {
		t.Fatalf("SaveBest() returned error: %v", err)
	}
	if _, err := os.Stat(bestPath); !os.IsNotExist(err) {
		t.Errorf("best file written for a record that was never found")
	}
}

func TestArchiveBestWithoutRecord(t *testing.T) {
	var a Archive
	if a.Best().Found {
		t.Errorf("empty archive should not report a best record")
	}
}

func TestFileStoreNonFiniteDiagnostics(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	state := sampleState()
	diag := &objective.Diagnostics{
		Sessions:  []objective.SessionStats{{Trades: 1, ROI: 4, Sharpe: math.NaN(), MaxDrawdown: math.Inf(1)}},
		MeanROI:   4,
		StdDevROI: math.NaN(),
	}
	state.Batches[0].Entries[0].Diagnostics = diag
	state.Best.Diagnostics = diag

	if err := NewFileStore(path, "").Save(context.Background(), state); err != nil {
		t.Fatalf("Save() returned error: %v", err)
	}
	archive, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() returned error: %v", err)
	}
	info := archive.Info[0][0]
	if info == nil || info.Sessions[0].Sharpe != 0 || info.Sessions[0].MaxDrawdown != 0 || info.StdDevROI != 0 {
		t.Errorf("Info[0][0] = %+v, expected non-finite values zeroed", info)
	}
	if info.Sessions[0].ROI != 4 || info.MeanROI != 4 {
		t.Errorf("Info[0][0] = %+v, finite values must be kept", info)
	}
	if op := archive.OpInfo; op == nil || op.Sessions[0].Sharpe != 0 {
		t.Errorf("OpInfo = %+v, expected a zeroed Sharpe", op)
	}
	if !math.IsNaN(diag.Sessions[0].Sharpe) {
		t.Errorf("Save() modified the caller's diagnostics")
	}
}

func TestArchiveBestNonFiniteObjective(t *testing.T) {
	tests := []struct {
		name  string
		value float64
	}{
		{"Positive infinity", math.Inf(1)},
		{"Negative infinity", math.Inf(-1)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "out.json")
			state := sampleState()
			state.Best.Objective = tt.value

			if err := NewFileStore(path, "").Save(context.Background(), state); err != nil {
				t.Fatalf("Save() returned error: %v", err)
			}
			archive, err := LoadFile(path)
			if err != nil {
				t.Fatalf("LoadFile() returned error: %v", err)
			}
			if archive.OpObjective != nil {
				t.Errorf("op_objective = %v, expected null", *archive.OpObjective)
			}
			best := archive.Best()
			if !best.Found || best.Objective != tt.value || best.Iteration != 1 {
				t.Errorf("Best() = %+v, expected found with objective %v", best, tt.value)
			}
		})
	}
}

func TestArchiveBestWithoutFoundFlag(t *testing.T) {
	value := 3.0
	a := Archive{OpObjective: &value, OpControlParams: space.Vector{"x": {1}}}
	best := a.Best()
	if !best.Found || best.Objective != 3 {
		t.Errorf("Best() = %+v, expected the stored objective", best)
	}
}

func TestLoadFileErrors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte("{"), 0644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		path string
	}{
		{"Missing file", filepath.Join(dir, "missing.json")},
		{"Malformed JSON", bad},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := LoadFile(tt.path); err == nil {
				t.Errorf("LoadFile(%q) expected error", tt.path)
			}
		})
	}
}

type recordingSink struct {
	saves int
	bests int
	err   error
}

func (r *recordingSink) Save(context.Context, State) error {
	r.saves++
	return r.err
}

func (r *recordingSink) SaveBest(context.Context, runlog.Best) error {
	r.bests++
	return r.err
}

func TestMultiCallsEverySink(t *testing.T) {
	boom := errors.New("boom")
	first := &recordingSink{err: boom}
	second := &recordingSink{}
	m := Multi{first, second, Discard{}}

	if err := m.Save(context.Background(), State{}); !errors.Is(err, boom) {
		t.Errorf("Save() error = %v, expected %v", err, boom)
	}
	if err := m.SaveBest(context.Background(), runlog.Best{}); !errors.Is(err, boom) {
		t.Errorf("SaveBest() error = %v, expected %v", err, boom)
	}
	if second.saves != 1 || second.bests != 1 {
		t.Errorf("second sink called %d/%d times, expected 1/1", second.saves, second.bests)
	}

	if err := (Multi{second}).Save(context.Background(), State{}); err != nil {
		t.Errorf("Save() returned error: %v", err)
	}
}

func TestFinite(t *testing.T) {
	one, inf, nan := 1.0, math.Inf(-1), math.NaN()
	tests := []struct {
		name  string
		value *float64
		want  bool
	}{
		{"Nil", nil, false},
		{"Finite", &one, true},
		{"Infinite", &inf, false},
		{"NaN", &nan, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := finite(tt.value) != nil; got != tt.want {
				t.Errorf("finite() kept value = %v, expected %v", got, tt.want)
			}
		})
	}
}
