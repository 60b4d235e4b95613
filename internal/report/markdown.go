package report

import (
	"fmt"
	"io"
	"sort"
	"strconv"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"github.com/nao1215/qprovider/internal/provider"
)

// maxPieSlices bounds the slices of a pie chart; smaller outcomes are
// folded into "other".
const maxPieSlices = 16

// MarkdownWriter outputs results in Markdown format for documentation
// and sharing.
type MarkdownWriter struct {
	baseWriter
}

// NewMarkdownWriter creates a MarkdownWriter that outputs to the given writer.
func NewMarkdownWriter(output io.Writer) *MarkdownWriter {
	return &MarkdownWriter{
		baseWriter: newBaseWriter(output),
	}
}

// Write outputs the result in Markdown format.
func (w *MarkdownWriter) Write(result *provider.Result) (int, error) {
	md := markdown.NewMarkdown(w.output)

	w.writeHeader(md, result)
	w.writeAlert(md, result)
	for i, exp := range result.Results {
		w.writeExperiment(md, i, exp)
	}
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeHeader(md *markdown.Markdown, result *provider.Result) {
	md.H1("Job Result")
	md.PlainText("")

	md.Table(markdown.TableSet{
		Header: []string{"Property", "Value"},
		Rows: [][]string{
			{"Backend", "`" + result.BackendName + "`"},
			{"Backend Version", result.BackendVersion},
			{"Job", "`" + result.JobID + "`"},
			{"Status", w.statusText(result.Status)},
			{"Experiments", strconv.Itoa(len(result.Results))},
		},
	})
	md.PlainText("")
}

func (w *MarkdownWriter) statusText(status string) string {
	switch status {
	case provider.JobStatusDone.String():
		return "✅ Done"
	case provider.JobStatusCancelled.String():
		return "⚠️ Cancelled"
	case provider.JobStatusError.String():
		return "❌ Error"
	default:
		return status
	}
}

func (w *MarkdownWriter) writeAlert(md *markdown.Markdown, result *provider.Result) {
	failed := 0
	for _, exp := range result.Results {
		if !exp.Success {
			failed++
		}
	}

	switch {
	case result.Status == provider.JobStatusCancelled.String():
		md.Warningf("The job was cancelled. %d of %d experiment(s) did not complete.", failed, len(result.Results))
	case failed > 0:
		md.Cautionf("%d of %d experiment(s) did not complete.", failed, len(result.Results))
	default:
		md.Tip("All experiments completed.")
	}
	md.PlainText("")
}

func (w *MarkdownWriter) writeExperiment(md *markdown.Markdown, i int, exp provider.ExperimentResult) {
	md.H2(fmt.Sprintf("Experiment %d", i))
	md.PlainText("")

	props := [][]string{
		{"Job", "`" + exp.JobID + "`"},
		{"Status", exp.Status},
		{"Shots", strconv.Itoa(exp.Shots)},
	}
	if len(exp.Header) > 0 {
		props = append(props, []string{"Header", formatHeader(exp.Header)})
	}
	md.Table(markdown.TableSet{Header: []string{"Property", "Value"}, Rows: props})
	md.PlainText("")

	if len(exp.Counts) == 0 {
		md.PlainText("No counts returned.")
		md.PlainText("")
		return
	}

	total := exp.Counts.Shots()
	width := outcomeWidth(exp.Counts)
	rows := make([][]string, 0, len(exp.Counts))
	for _, k := range exp.Counts.Keys() {
		bits, err := provider.Bitstring(k, width)
		if err != nil {
			bits = "-"
		}
		n := exp.Counts[k]
		rows = append(rows, []string{
			"`" + k + "`",
			"`" + bits + "`",
			strconv.Itoa(n),
			fmt.Sprintf("%.2f%%", 100*float64(n)/float64(total)),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Bits", "Count", "Share"},
		Rows:   rows,
	})
	md.PlainText("")

	w.writePieChart(md, i, exp.Counts)
}

// writePieChart writes a mermaid pie chart of the counts.
func (w *MarkdownWriter) writePieChart(md *markdown.Markdown, i int, counts provider.Counts) {
	chart := piechart.NewPieChart(
		io.Discard,
		piechart.WithTitle(fmt.Sprintf("Experiment %d outcomes", i)),
		piechart.WithShowData(true),
	)

	keys := counts.Keys()
	// Largest outcomes first so the folded remainder holds the small ones.
	sortByCount(keys, counts)

	var other int
	for j, k := range keys {
		if j >= maxPieSlices-1 && len(keys) > maxPieSlices {
			other += counts[k]
			continue
		}
		chart.LabelAndIntValue(k, uint64(counts[k])) //nolint:gosec // counts are non-negative
	}
	if other > 0 {
		chart.LabelAndIntValue("other", uint64(other)) //nolint:gosec // counts are non-negative
	}

	md.PlainText("")
	md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
	md.PlainText("")
}

// WriteComparison outputs the comparison in Markdown format.
func (w *MarkdownWriter) WriteComparison(c *Comparison) (int, error) {
	md := markdown.NewMarkdown(w.output)

	md.H1("Result Comparison")
	md.PlainText("")
	md.Table(markdown.TableSet{
		Header: []string{"", "Label", "Shots"},
		Rows: [][]string{
			{"Left", "`" + c.LeftLabel + "`", strconv.Itoa(c.LeftShots)},
			{"Right", "`" + c.RightLabel + "`", strconv.Itoa(c.RightShots)},
		},
	})
	md.PlainText("")
	md.PlainTextf("Total variation distance: **%.4f**", c.Distance)
	md.PlainText("")

	rows := make([][]string, 0, len(c.Rows))
	for _, r := range c.Rows {
		rows = append(rows, []string{
			"`" + r.Outcome + "`",
			fmt.Sprintf("%.4f", r.Left),
			fmt.Sprintf("%.4f", r.Right),
			fmt.Sprintf("%+.4f", r.Delta),
		})
	}
	md.Table(markdown.TableSet{
		Header: []string{"Outcome", "Left", "Right", "Delta"},
		Rows:   rows,
	})
	md.PlainText("")
	w.writeFooter(md)

	return len(md.String()), md.Build()
}

func (w *MarkdownWriter) writeFooter(md *markdown.Markdown) {
	md.HorizontalRule()
	md.PlainText("")
	md.PlainTextf("*Report generated by [qprovider](https://github.com/nao1215/qprovider)*")
}

// sortByCount orders keys by descending count, keeping the numeric order
// among equal counts.
func sortByCount(keys []string, counts provider.Counts) {
	sort.SliceStable(keys, func(i, j int) bool {
		return counts[keys[i]] > counts[keys[j]]
	})
}
