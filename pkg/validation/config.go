// Package validation provides configuration validation utilities.
package validation

import (
	"fmt"
	"strings"
)

// ValidateLogging checks the logging level and format. Empty values select the
// defaults and are accepted.
func ValidateLogging(level, format string) error {
	switch strings.ToLower(level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unsupported log level %q", level)
	}
	switch strings.ToLower(format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("unsupported log format %q", format)
	}
	return nil
}

// RunWarnings reports run settings that are legal but probably unintended.
func RunWarnings(populationSize, batchSize, maxIterations, workers int) []string {
	var warnings []string

	if populationSize > 0 && batchSize > populationSize {
		warnings = append(warnings, fmt.Sprintf("batch size %d exceeds population size %d - batches are capped at the population size",
			batchSize, populationSize))
	}
	if populationSize > 0 && maxIterations < populationSize {
		warnings = append(warnings, fmt.Sprintf("max iterations %d is below population size %d - some candidates may never be evolved",
			maxIterations, populationSize))
	}
	if populationSize > 0 && populationSize < 4 {
		warnings = append(warnings, fmt.Sprintf("population size %d is below 4 - mutation donors will repeat",
			populationSize))
	}
	if workers > 0 && batchSize < workers {
		warnings = append(warnings, fmt.Sprintf("batch size %d is below worker count %d - some workers will stay idle",
			batchSize, workers))
	}

	return warnings
}
