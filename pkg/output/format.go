// Package output provides utilities for formatting and displaying optimization results.
package output

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/iwvelando/strategy-optimizer/pkg/optimization"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// PrettyFormat outputs a human-readable rather than machine-readable summary.
func PrettyFormat(summary optimization.Summary) {
	WritePretty(os.Stdout, summary)
}

// CsvFormat outputs the best vector in comma-separated value format.
func CsvFormat(summary optimization.Summary) {
	WriteCsv(os.Stdout, summary)
}

// WritePretty writes the pretty summary to w.
func WritePretty(w io.Writer, summary optimization.Summary) {
	p := message.NewPrinter(language.English)
	_, _ = fmt.Fprintf(w, "--- Results for run %s ---\n", summary.RunID)
	_, _ = p.Fprintf(w, "Parameters: %d | Population: %d | Iterations: %d/%d | Batches: %d\n",
		summary.Parameters, summary.PopulationSize, summary.Iterations, summary.MaxIterations, summary.Batches)
	_, _ = p.Fprintf(w, "Updates: %d | Failures: %d | Clamped mutations: %d | Elapsed: %s\n",
		summary.Updates, summary.Failures, summary.Clamps, summary.Elapsed.Round(1e6))

	if !summary.Found {
		_, _ = fmt.Fprintf(w, "No improving candidate was found\n")
		return
	}

	_, _ = p.Fprintf(w, "Best objective: %.6f (iteration %d)\n", summary.BestObjective, summary.BestIteration)
	_, _ = fmt.Fprintf(w, "Parameter | Values\n")
	_, _ = fmt.Fprintf(w, "_________ | ______\n")
	for _, name := range sortedNames(summary.BestVector) {
		_, _ = fmt.Fprintf(w, "%s | %s\n", name, joinInts(summary.BestVector[name], ", "))
	}

	if len(summary.Sessions) == 0 {
		return
	}
	_, _ = fmt.Fprintf(w, "\nSession | Trades | ROI | Win rate | Max drawdown | Sharpe\n")
	_, _ = fmt.Fprintf(w, "_______ | ______ | ___ | ________ | ____________ | ______\n")
	for i, s := range summary.Sessions {
		_, _ = p.Fprintf(w, "%d | %d | %.2f%% | %.2f%% | %.2f%% | %.3f\n",
			i+1, s.Trades, s.ROI, s.WinRate, s.MaxDrawdown, s.Sharpe)
	}
	_, _ = p.Fprintf(w, "Mean ROI: %.2f%% (std dev %.2f%%) | Mean win rate: %.2f%%\n",
		summary.MeanROI, summary.StdDevROI, summary.MeanWinRate)
}

// WriteCsv writes the best vector as one row per parameter element.
func WriteCsv(w io.Writer, summary optimization.Summary) {
	_, _ = fmt.Fprintf(w, `"parameter","index","value"`)
	_, _ = fmt.Fprintf(w, "\n")
	for _, name := range sortedNames(summary.BestVector) {
		for i, v := range summary.BestVector[name] {
			_, _ = fmt.Fprintf(w, `"%s","%d","%d"`, name, i, v)
			_, _ = fmt.Fprintf(w, "\n")
		}
	}
	if summary.Found {
		_, _ = fmt.Fprintf(w, `"objective","","%g"`, summary.BestObjective)
		_, _ = fmt.Fprintf(w, "\n")
	}
}

func sortedNames(v map[string][]int) []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func joinInts(values []int, sep string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = fmt.Sprintf("%d", v)
	}
	return strings.Join(parts, sep)
}
