package config

import (
	"fmt"

	"github.com/iwvelando/strategy-optimizer/pkg/constants"
)

// OptimizerConfig holds the Differential Evolution settings.
type OptimizerConfig struct {
	ScaleFactor    int     `yaml:"scaleFactor,omitempty" mapstructure:"scaleFactor"`
	MutationFactor float64 `yaml:"mutationFactor,omitempty" mapstructure:"mutationFactor"`
	// CrossoverRate is nil when unset. An explicit 0 never takes a mutant element.
	CrossoverRate *float64 `yaml:"crossoverRate,omitempty" mapstructure:"crossoverRate"`
	MaxIterations int      `yaml:"maxIterations,omitempty" mapstructure:"maxIterations"`
	BatchSize     int      `yaml:"batchSize,omitempty" mapstructure:"batchSize"`
	Workers       int      `yaml:"workers,omitempty" mapstructure:"workers"` // 0 means one per CPU
	// MaxMutationRetries bounds mutation rejection sampling; negative retries
	// forever.
	MaxMutationRetries int    `yaml:"maxMutationRetries,omitempty" mapstructure:"maxMutationRetries"`
	HeartbeatEvery     int    `yaml:"heartbeatEvery,omitempty" mapstructure:"heartbeatEvery"`
	Seed               uint64 `yaml:"seed,omitempty" mapstructure:"seed"` // 0 seeds from the clock
}

// Normalize ensures defaults are applied before validation.
func (o *OptimizerConfig) Normalize() {
	if o == nil {
		return
	}
	if o.ScaleFactor == 0 {
		o.ScaleFactor = constants.DefaultScaleFactor
	}
	if o.MutationFactor == 0 {
		o.MutationFactor = constants.DefaultMutationFactor
	}
	if o.CrossoverRate == nil {
		xi := float64(constants.DefaultCrossoverRate)
		o.CrossoverRate = &xi
	}
	if o.MaxIterations == 0 {
		o.MaxIterations = constants.DefaultMaxIterations
	}
	if o.BatchSize == 0 {
		o.BatchSize = constants.DefaultBatchSize
	}
	if o.MaxMutationRetries == 0 {
		o.MaxMutationRetries = constants.DefaultMaxMutationRetries
	}
	if o.HeartbeatEvery <= 0 {
		o.HeartbeatEvery = constants.DefaultHeartbeatEvery
	}
}

// Validate returns an error when the optimizer configuration is unsupported.
func (o *OptimizerConfig) Validate() error {
	if o == nil {
		return fmt.Errorf("optimizer configuration cannot be nil")
	}

	o.Normalize()

	if o.ScaleFactor < 1 {
		return fmt.Errorf("optimizer scale factor %d must be at least 1", o.ScaleFactor)
	}
	if o.MutationFactor <= 0 {
		return fmt.Errorf("optimizer mutation factor %.2f must be positive", o.MutationFactor)
	}
	if xi := o.Crossover(); xi < 0 || xi > 1 {
		return fmt.Errorf("optimizer crossover rate %.2f must be within [0, 1]", xi)
	}
	if o.MaxIterations < 1 {
		return fmt.Errorf("optimizer max iterations %d must be positive", o.MaxIterations)
	}
	if o.BatchSize < 1 {
		return fmt.Errorf("optimizer batch size %d must be positive", o.BatchSize)
	}
	if o.Workers < 0 {
		return fmt.Errorf("optimizer workers %d cannot be negative", o.Workers)
	}
	return nil
}

// Crossover returns the configured crossover rate, or the default when unset.
func (o *OptimizerConfig) Crossover() float64 {
	if o == nil || o.CrossoverRate == nil {
		return constants.DefaultCrossoverRate
	}
	return *o.CrossoverRate
}
