package report

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/nao1215/qprovider/internal/provider"
)

// histogramWidth is the length of the longest histogram bar.
const histogramWidth = 40

// SimpleWriter outputs human-readable text reports for terminal display.
type SimpleWriter struct {
	baseWriter

	// binary prints outcomes as bit strings instead of hex.
	binary bool

	// verbose adds the circuit header of every experiment.
	verbose bool

	title cases.Caser
}

// SimpleWriterOption configures a SimpleWriter.
type SimpleWriterOption func(*SimpleWriter)

// WithBinary prints outcomes as zero-padded bit strings.
func WithBinary(binary bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.binary = binary
	}
}

// WithVerbose enables verbose output with additional details.
func WithVerbose(verbose bool) SimpleWriterOption {
	return func(w *SimpleWriter) {
		w.verbose = verbose
	}
}

// NewSimpleWriter creates a SimpleWriter that outputs to the given writer.
func NewSimpleWriter(output io.Writer, opts ...SimpleWriterOption) *SimpleWriter {
	w := &SimpleWriter{
		baseWriter: newBaseWriter(output),
		title:      cases.Title(language.English),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w
}

// Write outputs the result in human-readable format.
func (w *SimpleWriter) Write(result *provider.Result) (int, error) {
	var sb strings.Builder

	w.writeHeader(&sb, result)
	for i, exp := range result.Results {
		w.writeExperiment(&sb, i, exp)
	}
	w.writeFooter(&sb)

	return w.output.Write([]byte(sb.String()))
}

// status renders "DONE" as "Done".
func (w *SimpleWriter) status(s string) string {
	return w.title.String(strings.ToLower(s))
}

func (w *SimpleWriter) writeHeader(sb *strings.Builder, result *provider.Result) {
	sb.WriteString("\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
	sb.WriteString("                          JOB RESULT\n")
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n\n")

	fmt.Fprintf(sb, "Backend:      %s (version %s)\n", result.BackendName, result.BackendVersion)
	fmt.Fprintf(sb, "Job:          %s\n", result.JobID)
	fmt.Fprintf(sb, "Status:       %s\n", w.status(result.Status))
	fmt.Fprintf(sb, "Experiments:  %d\n", len(result.Results))
	sb.WriteString("\n")
}

func (w *SimpleWriter) writeExperiment(sb *strings.Builder, i int, exp provider.ExperimentResult) {
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n")
	fmt.Fprintf(sb, "EXPERIMENT %d  job %s  %s  %d shots\n", i, exp.JobID, w.status(exp.Status), exp.Shots)
	sb.WriteString(strings.Repeat("-", 70))
	sb.WriteString("\n\n")

	if w.verbose && len(exp.Header) > 0 {
		for _, k := range sortedKeys(exp.Header) {
			fmt.Fprintf(sb, "  %s: %v\n", k, exp.Header[k])
		}
		sb.WriteString("\n")
	}

	if len(exp.Counts) == 0 {
		sb.WriteString("  No counts\n\n")
		return
	}

	total := exp.Counts.Shots()
	maxCount := 0
	for _, n := range exp.Counts {
		maxCount = max(maxCount, n)
	}
	width := outcomeWidth(exp.Counts)

	for _, k := range exp.Counts.Keys() {
		n := exp.Counts[k]
		label := k
		if w.binary {
			if bits, err := provider.Bitstring(k, width); err == nil {
				label = bits
			}
		}
		bar := strings.Repeat("#", n*histogramWidth/maxCount)
		fmt.Fprintf(sb, "  %-*s %6d  %5.1f%%  %s\n", max(width, 6), label, n, 100*float64(n)/float64(total), bar)
	}
	sb.WriteString("\n")
}

// WriteComparison outputs the comparison as a table.
func (w *SimpleWriter) WriteComparison(c *Comparison) (int, error) {
	var sb strings.Builder

	sb.WriteString("\n")
	fmt.Fprintf(&sb, "Comparing %s (%d shots) with %s (%d shots)\n", c.LeftLabel, c.LeftShots, c.RightLabel, c.RightShots)
	fmt.Fprintf(&sb, "Total variation distance: %.4f\n\n", c.Distance)
	fmt.Fprintf(&sb, "  %-12s %8s %8s %8s\n", "OUTCOME", "LEFT", "RIGHT", "DELTA")
	for _, r := range c.Rows {
		fmt.Fprintf(&sb, "  %-12s %8.4f %8.4f %+8.4f\n", r.Outcome, r.Left, r.Right, r.Delta)
	}
	sb.WriteString("\n")

	return w.output.Write([]byte(sb.String()))
}

func (w *SimpleWriter) writeFooter(sb *strings.Builder) {
	sb.WriteString(strings.Repeat("=", 70))
	sb.WriteString("\n")
}
