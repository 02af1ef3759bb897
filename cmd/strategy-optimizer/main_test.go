package main

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/iwvelando/strategy-optimizer/internal/checkpoint"
	"github.com/iwvelando/strategy-optimizer/internal/config"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"go.uber.org/zap"
)

func testConfiguration(t *testing.T) *config.Configuration {
	t.Helper()
	dir := t.TempDir()
	conf := &config.Configuration{
		Optimizer: config.OptimizerConfig{
			ScaleFactor:   5,
			MaxIterations: 40,
			BatchSize:     4,
			Workers:       2,
			Seed:          17,
		},
		Parameters: config.ParametersConfig{
			Template: map[string][]int{"ema": {5, 20}, "rsi": {14}, "tp": {3}},
			Bounds: map[string]space.Bounds{
				"ema": {Low: 2, High: 50},
				"rsi": {Low: 5, High: 30},
			},
		},
		Checkpoint: config.CheckpointConfig{
			Path:     filepath.Join(dir, "out.json"),
			BestPath: filepath.Join(dir, "best.yaml"),
			SQLite:   filepath.Join(dir, "runs.db"),
		},
	}
	conf.Normalize()
	if err := conf.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	return conf
}

func TestInitializeLogger(t *testing.T) {
	tests := []struct {
		name      string
		logging   config.LoggingConfig
		override  string
		wantError bool
	}{
		{"Defaults", config.LoggingConfig{}, "", false},
		{"Console debug", config.LoggingConfig{Level: "debug", Format: "console"}, "", false},
		{"Mixed case", config.LoggingConfig{Level: "INFO", Format: "Console"}, "", false},
		{"Uppercase override", config.LoggingConfig{}, "WARN", false},
		{"Override wins", config.LoggingConfig{Level: "bogus"}, "warn", false},
		{"Invalid level", config.LoggingConfig{Level: "trace"}, "", true},
		{"Invalid format", config.LoggingConfig{Format: "xml"}, "", true},
		{"Output file", config.LoggingConfig{OutputFile: filepath.Join(t.TempDir(), "logs", "run.log")}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := initializeLogger(tt.logging, tt.override)
			if (err != nil) != tt.wantError {
				t.Fatalf("initializeLogger() error = %v, wantError %v", err, tt.wantError)
			}
			if logger != nil {
				_ = logger.Sync()
			}
		})
	}
}

func TestBuildEvaluator(t *testing.T) {
	conf := testConfiguration(t)
	s, err := conf.Space()
	if err != nil {
		t.Fatalf("Space() error = %v", err)
	}
	v := space.Vector{"ema": {10, 30}, "rsi": {14}, "tp": {3}}

	tests := []struct {
		name      string
		objective config.ObjectiveConfig
		want      float64
		wantError bool
	}{
		{"Sum", config.ObjectiveConfig{Kind: constants.ObjectiveSum}, 54, false},
		{"Target", config.ObjectiveConfig{Kind: constants.ObjectiveTarget, Target: map[string][]int{"ema": {10, 30}, "rsi": {14}}}, 0, false},
		{"Sessions", config.ObjectiveConfig{Kind: constants.ObjectiveSessions, Target: map[string][]int{"ema": {10, 30}, "rsi": {14}}, Sessions: 2}, 10, false},
		{"Unknown", config.ObjectiveConfig{Kind: "sharpe"}, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conf.Objective = tt.objective
			eval, err := buildEvaluator(conf, s, randutil.NewSeeder(1))
			if (err != nil) != tt.wantError {
				t.Fatalf("buildEvaluator() error = %v, wantError %v", err, tt.wantError)
			}
			if err != nil {
				if !errors.Is(err, config.ErrInvalidConfig) {
					t.Errorf("buildEvaluator() error = %v, expected ErrInvalidConfig", err)
				}
				return
			}
			got, err := eval.Evaluate(context.Background(), v)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if got.Fitness != tt.want {
				t.Errorf("Fitness = %v, expected %v", got.Fitness, tt.want)
			}
		})
	}
}

func TestRunWritesCheckpoints(t *testing.T) {
	conf := testConfiguration(t)

	summary, err := run(context.Background(), zap.NewNop(), conf, runOptions{Version: "test"})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if summary.Iterations != 40 || summary.PopulationSize != 15 || summary.Parameters != 3 {
		t.Errorf("summary = %+v", summary)
	}

	archive, err := checkpoint.LoadFile(conf.Checkpoint.Path)
	if err != nil {
		t.Fatalf("LoadFile() error = %v", err)
	}
	if archive.RunID != summary.RunID || archive.Iteration != 40 || len(archive.Populations) != 15 {
		t.Errorf("archive = run %s, iteration %d, %d vectors", archive.RunID, archive.Iteration, len(archive.Populations))
	}

	if summary.Found {
		best, err := checkpoint.LoadBestFile(conf.Checkpoint.BestPath)
		if err != nil {
			t.Fatalf("LoadBestFile() error = %v", err)
		}
		if !best.Equal(space.Vector(summary.BestVector)) {
			t.Errorf("best file = %v, expected %v", best, summary.BestVector)
		}
		if best["tp"][0] != 3 {
			t.Errorf("pass-through parameter changed: %v", best["tp"])
		}
	}

	store := checkpoint.NewSQLiteStore(conf.Checkpoint.SQLite, summary.RunID)
	if err := store.Init(context.Background()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	defer store.Close()
	batches, err := store.LoadBatches(context.Background(), summary.RunID)
	if err != nil {
		t.Fatalf("LoadBatches() error = %v", err)
	}
	if len(batches) != summary.Batches {
		t.Errorf("sqlite holds %d batches, expected %d", len(batches), summary.Batches)
	}
}

func TestRunResumesFromArchive(t *testing.T) {
	first := testConfiguration(t)
	firstSummary, err := run(context.Background(), zap.NewNop(), first, runOptions{})
	if err != nil {
		t.Fatalf("first run() error = %v", err)
	}

	second := testConfiguration(t)
	second.Checkpoint.SQLite = ""
	summary, err := run(context.Background(), zap.NewNop(), second, runOptions{ResumePath: first.Checkpoint.Path})
	if err != nil {
		t.Fatalf("resumed run() error = %v", err)
	}
	if summary.RunID == firstSummary.RunID {
		t.Errorf("resumed run reused run id %s", summary.RunID)
	}
	if firstSummary.Found && (!summary.Found || summary.BestObjective < firstSummary.BestObjective) {
		t.Errorf("resumed best %v regressed from %v", summary.BestObjective, firstSummary.BestObjective)
	}
}

func TestRunResumeMissingArchive(t *testing.T) {
	conf := testConfiguration(t)
	_, err := run(context.Background(), zap.NewNop(), conf, runOptions{ResumePath: filepath.Join(t.TempDir(), "missing.json")})
	if err == nil {
		t.Fatalf("run() expected error for a missing archive")
	}
}

func TestStartServer(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})
	stop, err := startServer(context.Background(), zap.NewNop(), config.ServerConfig{Enabled: true, Address: "127.0.0.1:0"}, handler)
	if err != nil {
		t.Fatalf("startServer() error = %v", err)
	}
	stop()
	stop()

	_, err = startServer(context.Background(), zap.NewNop(), config.ServerConfig{Enabled: true, Address: "not-an-address"}, handler)
	if err == nil {
		t.Fatalf("startServer() expected error for an invalid address")
	}
}

func TestExampleConfiguration(t *testing.T) {
	path := filepath.Join("..", "..", constants.ExampleConfigFile)
	if _, err := os.Stat(path); err != nil {
		t.Skipf("example configuration not available: %v", err)
	}

	conf, err := config.LoadConfiguration(path)
	if err != nil {
		t.Fatalf("LoadConfiguration() error = %v", err)
	}
	dir := t.TempDir()
	conf.Checkpoint = config.CheckpointConfig{
		Path:     filepath.Join(dir, "out.json"),
		BestPath: filepath.Join(dir, "best.yaml"),
	}
	conf.Server.Enabled = false
	conf.Optimizer.MaxIterations = 16

	summary, err := run(context.Background(), zap.NewNop(), conf, runOptions{})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !summary.Completed() {
		t.Errorf("example run did not complete: %+v", summary)
	}
	if !strings.HasPrefix(conf.Objective.Kind, constants.ObjectiveSessions) {
		t.Errorf("example configuration should demonstrate the sessions objective, got %q", conf.Objective.Kind)
	}
}
