// Package report renders job results and count comparisons.
//
// Writers for three formats share the Writer interface:
//   - SimpleWriter: plain text with a histogram, for terminals
//   - JSONWriter: the result as JSON, for other tools
//   - MarkdownWriter: tables and a mermaid pie chart, for sharing
//
// Compare computes the total variation distance between two count
// distributions, as used by "qprovider history compare".
package report
