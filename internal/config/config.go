// Package config defines the data structures related to configuration and
// includes functions for loading, normalizing and validating the config.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/iwvelando/strategy-optimizer/internal/space"
	"github.com/iwvelando/strategy-optimizer/pkg/constants"
	"github.com/iwvelando/strategy-optimizer/pkg/validation"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned when the configuration cannot be used.
var ErrInvalidConfig = errors.New("invalid configuration")

// Configuration holds all configuration for strategy-optimizer.
type Configuration struct {
	Optimizer  OptimizerConfig  `yaml:"optimizer" mapstructure:"optimizer"`
	Parameters ParametersConfig `yaml:"parameters" mapstructure:"parameters"`
	Objective  ObjectiveConfig  `yaml:"objective" mapstructure:"objective"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" mapstructure:"checkpoint"`
	Server     ServerConfig     `yaml:"server,omitempty" mapstructure:"server"`
	Logging    LoggingConfig    `yaml:"logging,omitempty" mapstructure:"logging"`
	Output     OutputConfig     `yaml:"output,omitempty" mapstructure:"output"`
}

// LoggingConfig holds logging configuration options
type LoggingConfig struct {
	Level      string `yaml:"level,omitempty" mapstructure:"level"`           // debug, info, warn, error
	Format     string `yaml:"format,omitempty" mapstructure:"format"`         // json, console
	OutputFile string `yaml:"outputFile,omitempty" mapstructure:"outputFile"` // optional file output
}

// OutputConfig holds output format configuration options
type OutputConfig struct {
	Format string `yaml:"format,omitempty" mapstructure:"format"` // pretty, csv
}

// ParametersConfig describes the searched parameter space. Template gives the
// dimensionality of every parameter and the values of those passed through
// unchanged; Bounds lists the parameters under optimization.
type ParametersConfig struct {
	Template     map[string][]int        `yaml:"template" mapstructure:"template"`
	Bounds       map[string]space.Bounds `yaml:"bounds" mapstructure:"bounds"`
	TemplateFile string                  `yaml:"templateFile,omitempty" mapstructure:"templateFile"`
}

// ObjectiveConfig selects the built-in evaluator.
type ObjectiveConfig struct {
	Kind     string           `yaml:"kind" mapstructure:"kind"` // sum, target, sessions
	Target   map[string][]int `yaml:"target,omitempty" mapstructure:"target"`
	Sessions int              `yaml:"sessions,omitempty" mapstructure:"sessions"`
	Metric   string           `yaml:"metric,omitempty" mapstructure:"metric"` // roi, win_rate
	Noise    float64          `yaml:"noise,omitempty" mapstructure:"noise"`
}

// CheckpointConfig controls where run state is persisted. Empty paths disable
// the corresponding store.
type CheckpointConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	BestPath string `yaml:"bestPath" mapstructure:"bestPath"`
	SQLite   string `yaml:"sqlite,omitempty" mapstructure:"sqlite"`
}

// ServerConfig enables the optional status server.
type ServerConfig struct {
	Enabled    bool   `yaml:"enabled" mapstructure:"enabled"`
	Address    string `yaml:"address,omitempty" mapstructure:"address"`
	ConfigFile string `yaml:"configFile,omitempty" mapstructure:"configFile"`
}

// LoadConfiguration takes a file path as input and loads the YAML-formatted
// configuration there. Keys can be overridden from the environment, e.g.
// OPTIMIZER_MAXITERATIONS=200.
func LoadConfiguration(configPath string) (*Configuration, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file, %s", err)
	}

	var configuration Configuration
	if err := v.Unmarshal(&configuration); err != nil {
		return nil, fmt.Errorf("unable to decode into struct, %s", err)
	}

	if err := configuration.ResolveTemplate(); err != nil {
		return nil, err
	}
	configuration.Normalize()
	if err := configuration.Validate(); err != nil {
		return nil, err
	}
	return &configuration, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("optimizer.scaleFactor", constants.DefaultScaleFactor)
	v.SetDefault("optimizer.mutationFactor", constants.DefaultMutationFactor)
	v.SetDefault("optimizer.crossoverRate", constants.DefaultCrossoverRate)
	v.SetDefault("optimizer.maxIterations", constants.DefaultMaxIterations)
	v.SetDefault("optimizer.batchSize", constants.DefaultBatchSize)
	v.SetDefault("optimizer.maxMutationRetries", constants.DefaultMaxMutationRetries)
	v.SetDefault("optimizer.heartbeatEvery", constants.DefaultHeartbeatEvery)
	v.SetDefault("objective.kind", constants.ObjectiveSum)
	v.SetDefault("checkpoint.path", constants.DefaultCheckpointFile)
	v.SetDefault("checkpoint.bestPath", constants.DefaultBestFile)
	v.SetDefault("server.address", constants.DefaultServerAddress)
	v.SetDefault("output.format", constants.OutputFormatPretty)
}

// ResolveTemplate loads Parameters.TemplateFile, when set, and overlays the
// inline template on top of it.
func (conf *Configuration) ResolveTemplate() error {
	if conf.Parameters.TemplateFile == "" {
		return nil
	}
	fromFile, err := LoadTemplateFile(conf.Parameters.TemplateFile)
	if err != nil {
		return err
	}
	for name, values := range conf.Parameters.Template {
		fromFile[name] = values
	}
	conf.Parameters.Template = fromFile
	return nil
}

// LoadTemplateFile reads a YAML mapping of parameter name to integer list, such
// as the best-vector file written by a previous run.
func LoadTemplateFile(path string) (map[string][]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	template := make(map[string][]int)
	if err := yaml.Unmarshal(data, &template); err != nil {
		return nil, fmt.Errorf("failed to parse template file %s: %w", path, err)
	}
	return template, nil
}

// Normalize applies defaults for values left empty.
func (conf *Configuration) Normalize() {
	conf.Optimizer.Normalize()

	conf.Objective.Kind = strings.ToLower(strings.TrimSpace(conf.Objective.Kind))
	if conf.Objective.Kind == "" {
		conf.Objective.Kind = constants.ObjectiveSum
	}
	if conf.Objective.Kind == constants.ObjectiveSessions {
		if conf.Objective.Sessions <= 0 {
			conf.Objective.Sessions = constants.DefaultSessions
		}
		if conf.Objective.Metric == "" {
			conf.Objective.Metric = constants.SessionMetricROI
		}
	}

	if conf.Server.Address == "" {
		conf.Server.Address = constants.DefaultServerAddress
	}
	if conf.Output.Format == "" {
		conf.Output.Format = constants.OutputFormatPretty
	}
}

// Validate checks the configuration and builds the parameter space once to
// surface template and bounds problems early.
func (conf *Configuration) Validate() error {
	if err := conf.Optimizer.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	s, err := conf.Space()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	switch conf.Objective.Kind {
	case constants.ObjectiveSum:
	case constants.ObjectiveTarget, constants.ObjectiveSessions:
		if len(conf.Objective.Target) == 0 {
			return fmt.Errorf("%w: objective %s requires a target vector", ErrInvalidConfig, conf.Objective.Kind)
		}
		for _, p := range s.Bounded() {
			if len(conf.Objective.Target[p.Name]) != p.Dim {
				return fmt.Errorf("%w: objective target for %q must have %d values", ErrInvalidConfig, p.Name, p.Dim)
			}
		}
	default:
		return fmt.Errorf("%w: objective kind %q is not supported", ErrInvalidConfig, conf.Objective.Kind)
	}
	if conf.Objective.Kind == constants.ObjectiveSessions {
		if conf.Objective.Metric != constants.SessionMetricROI && conf.Objective.Metric != constants.SessionMetricWinRate {
			return fmt.Errorf("%w: session metric %q is not supported", ErrInvalidConfig, conf.Objective.Metric)
		}
		if conf.Objective.Noise < 0 {
			return fmt.Errorf("%w: session noise %.2f cannot be negative", ErrInvalidConfig, conf.Objective.Noise)
		}
	}

	if err := validation.ValidateOutputFormat(conf.Output.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if err := validation.ValidateLogging(conf.Logging.Level, conf.Logging.Format); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// Space builds the parameter space described by the configuration.
func (conf *Configuration) Space() (*space.Space, error) {
	return space.New(space.Vector(conf.Parameters.Template), conf.Parameters.Bounds)
}
