// Package constants provides shared constants for the strategy-optimizer application.
package constants

// Differential evolution defaults
const (
	// DefaultScaleFactor is the population size multiplier applied to the total
	// dimensionality of the bounded parameters.
	DefaultScaleFactor = 15

	// DefaultMutationFactor (F) scales the differential vector during mutation.
	DefaultMutationFactor = 0.5

	// DefaultCrossoverRate (xi) is the probability of taking a mutant element.
	DefaultCrossoverRate = 0.9

	// DefaultMaxIterations is the default iteration budget of a run.
	DefaultMaxIterations = 60

	// DefaultBatchSize is the default number of indices evaluated per batch.
	DefaultBatchSize = 8

	// DefaultMaxMutationRetries caps the rejection sampling loop of mutation.
	DefaultMaxMutationRetries = 1000

	// DefaultHeartbeatEvery is the batch interval of the no-improvement heartbeat.
	DefaultHeartbeatEvery = 10

	// MinDistinctDonors is the number of donor vectors a mutation draws.
	MinDistinctDonors = 3
)

// Objective kinds
const (
	// ObjectiveSum scores a vector by the sum of its bounded elements.
	ObjectiveSum = "sum"

	// ObjectiveTarget scores a vector by its negative distance to a target vector.
	ObjectiveTarget = "target"

	// ObjectiveSessions scores a vector by averaging synthetic randomized sessions.
	ObjectiveSessions = "sessions"

	// SessionMetricROI averages the per-session return on investment.
	SessionMetricROI = "roi"

	// SessionMetricWinRate averages the per-session win rate.
	SessionMetricWinRate = "win_rate"

	// DefaultSessions is the number of randomized sessions per evaluation.
	DefaultSessions = 3
)

// Output format constants
const (
	// OutputFormatPretty is the human-readable output format
	OutputFormatPretty = "pretty"

	// OutputFormatCSV is the CSV output format
	OutputFormatCSV = "csv"
)

// Configuration file constants
const (
	// DefaultConfigFile is the default configuration file name
	DefaultConfigFile = "config.yaml"

	// ExampleConfigFile is the example configuration file name
	ExampleConfigFile = "config.yaml.example"

	// DefaultServerConfigFile is the default server configuration file name
	DefaultServerConfigFile = "server-config.yaml"
)

// Checkpoint defaults
const (
	// DefaultCheckpointFile receives the full archive after every batch.
	DefaultCheckpointFile = "out.json"

	// DefaultBestFile receives the best candidate vector whenever it improves.
	DefaultBestFile = "out-op_control_param.yaml"
)

// Server configuration defaults
const (
	// DefaultServerAddress is the default HTTP listen address for the status server
	DefaultServerAddress = ":9090"
)
