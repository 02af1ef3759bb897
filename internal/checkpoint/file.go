package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"gopkg.in/yaml.v3"
)

// Archive is the on-disk layout of the full checkpoint. The per-batch arrays
// are aligned: Indices[b][j] is the population index whose outcome is stored
// at Objective[b][j], ControlParams[b][j] and Info[b][j].
type Archive struct {
	RunID         string                     `json:"run_id"`
	SavedAt       time.Time                  `json:"saved_at"`
	Iteration     int                        `json:"iteration"`
	MaxIterations int                        `json:"max_iterations"`
	Populations   []space.Vector             `json:"populations"`
	Iterations    []int                      `json:"iterations"`
	Indices       [][]int                    `json:"indices"`
	Objective     [][]*float64               `json:"objective"`
	ControlParams [][]space.Vector           `json:"control_params"`
	Info          [][]*objective.Diagnostics `json:"info"`
	Errors        [][]string                 `json:"errors,omitempty"`

	OpFound     bool     `json:"op_found"`
	OpObjective *float64 `json:"op_objective"`
	// OpObjectiveText holds an infinite best objective, which JSON numbers
	// cannot carry, as "+Inf" or "-Inf".
	OpObjectiveText string                 `json:"op_objective_text,omitempty"`
	OpControlParams space.Vector           `json:"op_control_params,omitempty"`
	OpInfo          *objective.Diagnostics `json:"op_info,omitempty"`
	OpIteration     int                    `json:"op_iteration"`
}

// FileStore writes the full archive as JSON and the best vector as YAML.
type FileStore struct {
	path     string
	bestPath string
	now      func() time.Time
}

// NewFileStore creates a FileStore. Either path may be empty to skip that
// file.
func NewFileStore(path, bestPath string) *FileStore {
	return &FileStore{path: path, bestPath: bestPath, now: time.Now}
}

// Save implements Sink.
func (f *FileStore) Save(_ context.Context, state State) error {
	if f.path == "" {
		return nil
	}
	data, err := json.Marshal(newArchive(state, f.now()))
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	if err := writeAtomic(f.path, data); err != nil {
		return fmt.Errorf("write checkpoint %s: %w", f.path, err)
	}
	return nil
}

// SaveBest implements Sink. Only the vector is written so the file can be
// used directly as a parameter template.
func (f *FileStore) SaveBest(_ context.Context, best runlog.Best) error {
	if f.bestPath == "" || !best.Found {
		return nil
	}
	data, err := yaml.Marshal(map[string][]int(best.Vector))
	if err != nil {
		return fmt.Errorf("encode best vector: %w", err)
	}
	if err := writeAtomic(f.bestPath, data); err != nil {
		return fmt.Errorf("write best vector %s: %w", f.bestPath, err)
	}
	return nil
}

// LoadFile reads an archive written by FileStore.
func LoadFile(path string) (*Archive, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	var archive Archive
	if err := json.Unmarshal(data, &archive); err != nil {
		return nil, fmt.Errorf("decode checkpoint %s: %w", path, err)
	}
	return &archive, nil
}

// LoadBestFile reads a best-vector file written by FileStore.
func LoadBestFile(path string) (space.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read best vector: %w", err)
	}
	var v map[string][]int
	if err := yaml.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode best vector %s: %w", path, err)
	}
	return space.Vector(v), nil
}

// Best rebuilds the best record stored in the archive. Archives written
// before op_found existed are treated as found when op_objective is set.
func (a *Archive) Best() runlog.Best {
	if a.OpControlParams == nil || (!a.OpFound && a.OpObjective == nil) {
		return runlog.Best{}
	}
	value := objective.WorstFitness
	switch {
	case a.OpObjective != nil:
		value = *a.OpObjective
	case a.OpObjectiveText != "":
		if parsed, err := strconv.ParseFloat(a.OpObjectiveText, 64); err == nil && !math.IsNaN(parsed) {
			value = parsed
		}
	}
	return runlog.Best{
		Found:       true,
		Iteration:   a.OpIteration,
		Objective:   value,
		Vector:      a.OpControlParams.Clone(),
		Diagnostics: a.OpInfo.Clone(),
	}
}

func newArchive(state State, savedAt time.Time) Archive {
	a := Archive{
		RunID:         state.RunID,
		SavedAt:       savedAt.UTC(),
		Iteration:     state.Iteration,
		MaxIterations: state.MaxIterations,
		Populations:   state.Populations,
		Iterations:    make([]int, len(state.Batches)),
		Indices:       make([][]int, len(state.Batches)),
		Objective:     make([][]*float64, len(state.Batches)),
		ControlParams: make([][]space.Vector, len(state.Batches)),
		Info:          make([][]*objective.Diagnostics, len(state.Batches)),
	}

	failed := false
	errs := make([][]string, len(state.Batches))
	for b, batch := range state.Batches {
		batch = sanitizeBatch(batch)
		a.Iterations[b] = batch.Iteration
		a.Indices[b] = make([]int, len(batch.Entries))
		a.Objective[b] = make([]*float64, len(batch.Entries))
		a.ControlParams[b] = make([]space.Vector, len(batch.Entries))
		a.Info[b] = make([]*objective.Diagnostics, len(batch.Entries))
		errs[b] = make([]string, len(batch.Entries))
		for j, e := range batch.Entries {
			a.Indices[b][j] = e.Index
			a.Objective[b][j] = e.Objective
			a.ControlParams[b][j] = e.Vector
			a.Info[b][j] = e.Diagnostics
			errs[b][j] = e.Error
			if e.Error != "" {
				failed = true
			}
		}
	}
	if failed {
		a.Errors = errs
	}

	if state.Best.Found {
		value := state.Best.Objective
		a.OpFound = true
		a.OpObjective = finite(&value)
		if a.OpObjective == nil {
			a.OpObjectiveText = strconv.FormatFloat(value, 'g', -1, 64)
		}
		a.OpControlParams = state.Best.Vector
		a.OpInfo = state.Best.Diagnostics.Finite()
		a.OpIteration = state.Best.Iteration
	}
	return a
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
