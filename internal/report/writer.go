package report

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"

	"github.com/nao1215/qprovider/internal/provider"
)

// Writer outputs job results in some format.
type Writer interface {
	// Write outputs a job result.
	// Returns the number of bytes written and any error encountered.
	Write(result *provider.Result) (int, error)

	// WriteComparison outputs a comparison of two count distributions.
	WriteComparison(c *Comparison) (int, error)
}

// MultiWriter writes to multiple Writers, for example the terminal and
// a file.
type MultiWriter struct {
	writers []Writer
}

// NewMultiWriter creates a Writer that writes to all provided Writers.
func NewMultiWriter(writers ...Writer) *MultiWriter {
	return &MultiWriter{writers: writers}
}

// Write outputs the result to all Writers and stops on the first error.
// Returns the total bytes written across all writers.
func (m *MultiWriter) Write(result *provider.Result) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.Write(result)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// WriteComparison outputs the comparison to all Writers.
func (m *MultiWriter) WriteComparison(c *Comparison) (int, error) {
	var total int
	for _, w := range m.writers {
		n, err := w.WriteComparison(c)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// baseWriter provides common functionality for report writers.
type baseWriter struct {
	output io.Writer
}

// newBaseWriter creates a baseWriter with the given output destination.
func newBaseWriter(output io.Writer) baseWriter {
	return baseWriter{output: output}
}

// outcomeWidth returns the bit width needed for the largest outcome in
// counts, at least 1.
func outcomeWidth(counts provider.Counts) int {
	width := 1
	for _, k := range counts.Keys() {
		if bits, err := provider.Bitstring(k, 0); err == nil && len(bits) > width {
			width = len(bits)
		}
	}
	return width
}

func sortedKeys(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}

// formatHeader renders header values on one line, sorted by key.
func formatHeader(header map[string]any) string {
	parts := make([]string, 0, len(header))
	for _, k := range sortedKeys(header) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, header[k]))
	}
	return strings.Join(parts, ", ")
}
