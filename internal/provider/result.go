package provider

import (
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/nao1215/qprovider/internal/api"
)

// Counts maps a hexadecimal outcome such as "0x3" to its occurrences.
type Counts map[string]int

// Shots returns the total number of occurrences.
func (c Counts) Shots() int {
	total := 0
	for _, n := range c {
		total += n
	}
	return total
}

// Keys returns the outcomes ordered by numeric value.
func (c Counts) Keys() []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		a, b := hexValue(keys[i]), hexValue(keys[j])
		if a == nil || b == nil {
			return keys[i] < keys[j]
		}
		return a.Cmp(b) < 0
	})
	return keys
}

// Probabilities returns each outcome's share of all shots.
func (c Counts) Probabilities() map[string]float64 {
	total := c.Shots()
	out := make(map[string]float64, len(c))
	if total == 0 {
		return out
	}
	for k, n := range c {
		out[k] = float64(n) / float64(total)
	}
	return out
}

// Bitstring renders a hex outcome as a binary string padded to width.
func Bitstring(outcome string, width int) (string, error) {
	v := hexValue(outcome)
	if v == nil {
		return "", fmt.Errorf("invalid outcome %q", outcome)
	}
	s := v.Text(2)
	if len(s) < width {
		s = strings.Repeat("0", width-len(s)) + s
	}
	return s, nil
}

func hexValue(outcome string) *big.Int {
	v, ok := new(big.Int).SetString(strings.TrimPrefix(outcome, "0x"), 16)
	if !ok {
		return nil
	}
	return v
}

// countsFromRegisters zips the per-shot values of every register, in
// server order, concatenates them into one bit string per shot and counts
// the hexadecimal values. Registers of unequal length are truncated to
// the shortest.
func countsFromRegisters(regs api.Registers) (Counts, int, error) {
	counts := make(Counts)
	if len(regs) == 0 {
		return counts, 0, nil
	}

	shots := len(regs[0].Shots)
	for _, r := range regs[1:] {
		shots = min(shots, len(r.Shots))
	}

	var sb strings.Builder
	for i := range shots {
		sb.Reset()
		for _, r := range regs {
			sb.WriteString(r.Shots[i])
		}
		v, ok := new(big.Int).SetString(sb.String(), 2)
		if !ok {
			return nil, 0, fmt.Errorf("shot %d: invalid bit string %q", i, sb.String())
		}
		counts["0x"+v.Text(16)]++
	}
	return counts, shots, nil
}

// ExperimentResult is the outcome of one circuit.
type ExperimentResult struct {
	// JobID is the API job that ran the circuit.
	JobID string `json:"job_id"`

	// Status is the API job status.
	Status string `json:"status"`

	Success bool `json:"success"`
	Shots   int  `json:"shots"`

	Counts Counts `json:"counts"`

	// Header carries the circuit metadata.
	Header map[string]any `json:"header"`

	// Registers are the raw per-shot register values.
	Registers api.Registers `json:"registers,omitempty"`
}

// Result is the outcome of a Job.
type Result struct {
	BackendName    string             `json:"backend_name"`
	BackendVersion string             `json:"backend_version"`
	JobID          string             `json:"job_id"`
	Success        bool               `json:"success"`
	Status         string             `json:"status"`
	Results        []ExperimentResult `json:"results"`
}

// GetCounts returns the counts of experiment i. With one experiment, i
// may be omitted.
func (r *Result) GetCounts(i ...int) (Counts, error) {
	idx := 0
	switch len(i) {
	case 0:
		if len(r.Results) != 1 {
			return nil, fmt.Errorf("result has %d experiments, pass an index", len(r.Results))
		}
	case 1:
		idx = i[0]
	default:
		return nil, fmt.Errorf("GetCounts takes at most one index")
	}
	if idx < 0 || idx >= len(r.Results) {
		return nil, fmt.Errorf("experiment %d out of range [0, %d)", idx, len(r.Results))
	}
	return r.Results[idx].Counts, nil
}
