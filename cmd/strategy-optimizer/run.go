package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/iwvelando/strategy-optimizer/internal/checkpoint"
	"github.com/iwvelando/strategy-optimizer/internal/config"
	"github.com/iwvelando/strategy-optimizer/internal/evolution"
	"github.com/iwvelando/strategy-optimizer/internal/metrics"
	"github.com/iwvelando/strategy-optimizer/internal/objective"
	"github.com/iwvelando/strategy-optimizer/internal/optimizer"
	"github.com/iwvelando/strategy-optimizer/internal/population"
	"github.com/iwvelando/strategy-optimizer/internal/runlog"
	"github.com/iwvelando/strategy-optimizer/internal/scheduler"
	"github.com/iwvelando/strategy-optimizer/internal/server"
	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/optimization"
	"github.com/iwvelando/strategy-optimizer/pkg/randutil"
	"github.com/iwvelando/strategy-optimizer/pkg/validation"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
)

type runOptions struct {
	ResumePath string
	Version    string
}

// run wires every component from the configuration and executes one run.
func run(ctx context.Context, logger *zap.Logger, conf *config.Configuration, opts runOptions) (optimization.Summary, error) {
	s, err := conf.Space()
	if err != nil {
		return optimization.Summary{}, err
	}
	seeder := randutil.NewSeeder(conf.Optimizer.Seed)

	pop, initialBest, err := loadPopulation(s, conf, seeder, opts.ResumePath)
	if err != nil {
		return optimization.Summary{}, err
	}
	if opts.ResumePath != "" {
		logger.Info("resumed population from checkpoint",
			zap.String("op", "main.run"),
			zap.String("path", opts.ResumePath),
			zap.Int("populationSize", pop.Len()),
			zap.Bool("bestFound", initialBest.Found),
		)
	}

	sched := scheduler.New(logger, conf.Optimizer.Workers)
	for _, warning := range validation.RunWarnings(pop.Len(), conf.Optimizer.BatchSize, conf.Optimizer.MaxIterations, sched.Workers()) {
		logger.Warn("Configuration warning: "+warning,
			zap.String("op", "main.run"),
		)
	}

	ops, err := evolution.New(s, evolution.Settings{
		MutationFactor:     conf.Optimizer.MutationFactor,
		CrossoverRate:      conf.Optimizer.Crossover(),
		MaxMutationRetries: conf.Optimizer.MaxMutationRetries,
	})
	if err != nil {
		return optimization.Summary{}, err
	}

	eval, err := buildEvaluator(conf, s, seeder)
	if err != nil {
		return optimization.Summary{}, err
	}

	runID := checkpoint.NewRunID()
	sink, closeSink, err := buildSink(ctx, conf.Checkpoint, runID)
	if err != nil {
		return optimization.Summary{}, err
	}
	defer func() {
		if err := closeSink(); err != nil {
			logger.Warn("failed to close checkpoint store",
				zap.String("op", "main.run"),
				zap.Error(err),
			)
		}
	}()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		return optimization.Summary{}, fmt.Errorf("register metrics: %w", err)
	}

	runner, err := optimizer.New(optimizer.Options{
		Logger:         logger,
		Population:     pop,
		Operators:      ops,
		Scheduler:      sched,
		Evaluator:      eval,
		Sink:           sink,
		Observer:       recorder,
		Seeder:         seeder,
		HeartbeatEvery: conf.Optimizer.HeartbeatEvery,
		RunID:          runID,
		InitialBest:    initialBest,
	})
	if err != nil {
		return optimization.Summary{}, err
	}

	if conf.Server.Enabled {
		stopServer, err := startServer(ctx, logger, conf.Server, server.NewHandler(logger, runner, reg, opts.Version))
		if err != nil {
			return optimization.Summary{}, err
		}
		defer stopServer()
	}

	return runner.Run(ctx, conf.Optimizer.MaxIterations, conf.Optimizer.BatchSize)
}

func loadPopulation(s *space.Space, conf *config.Configuration, seeder *randutil.Seeder, resumePath string) (*population.Store, runlog.Best, error) {
	if resumePath == "" {
		pop, err := population.New(s, conf.Optimizer.ScaleFactor, seeder.Rand())
		return pop, runlog.Best{}, err
	}

	archive, err := checkpoint.LoadFile(resumePath)
	if err != nil {
		return nil, runlog.Best{}, err
	}
	pop, err := population.Restore(s, archive.Populations)
	if err != nil {
		return nil, runlog.Best{}, fmt.Errorf("resume from %s: %w", resumePath, err)
	}
	best := archive.Best()
	if best.Found {
		best.Vector = s.Merge(best.Vector)
	}
	return pop, best, nil
}

func buildEvaluator(conf *config.Configuration, s *space.Space, seeder *randutil.Seeder) (objective.Evaluator, error) {
	switch conf.Objective.Kind {
	case constants.ObjectiveSum:
		return objective.NewSum(s), nil
	case constants.ObjectiveTarget:
		return &objective.Target{Target: space.Vector(conf.Objective.Target)}, nil
	case constants.ObjectiveSessions:
		runner := &objective.SyntheticSessions{
			Target: space.Vector(conf.Objective.Target),
			Noise:  conf.Objective.Noise,
		}
		return objective.NewSessions(runner, conf.Objective.Sessions, conf.Objective.Metric, seeder)
	default:
		return nil, fmt.Errorf("%w: objective kind %q is not supported", config.ErrInvalidConfig, conf.Objective.Kind)
	}
}

func buildSink(ctx context.Context, conf config.CheckpointConfig, runID string) (checkpoint.Sink, func() error, error) {
	sinks := checkpoint.Multi{checkpoint.NewFileStore(conf.Path, conf.BestPath)}
	closeFn := func() error { return nil }

	if conf.SQLite != "" {
		store := checkpoint.NewSQLiteStore(conf.SQLite, runID)
		if err := store.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("open checkpoint database %s: %w", conf.SQLite, err)
		}
		sinks = append(sinks, store)
		closeFn = store.Close
	}
	return sinks, closeFn, nil
}

// startServer runs the status server until the returned stop function is
// called or ctx is cancelled.
func startServer(ctx context.Context, logger *zap.Logger, conf config.ServerConfig, h http.Handler) (func(), error) {
	srvCfg, err := server.LoadConfig(conf.ConfigFile)
	if err != nil {
		return nil, err
	}
	if conf.ConfigFile == "" {
		srvCfg.Address = conf.Address
	}

	srvCtx, cancel := context.WithCancel(ctx)
	ready := make(chan string, 1)
	done := make(chan error, 1)
	go func() {
		done <- server.Serve(srvCtx, logger, srvCfg, h, ready)
	}()

	select {
	case <-ready:
	case err := <-done:
		cancel()
		return nil, fmt.Errorf("start status server: %w", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			if err := <-done; err != nil {
				logger.Warn("status server stopped with error",
					zap.String("op", "main.startServer"),
					zap.Error(err),
				)
			}
		})
	}, nil
}
