package provider

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
)

// Priority values accepted by the API.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// CircuitKind tells Run what a Circuit holds.
type CircuitKind int

const (
	// CircuitQASM is an OpenQASM 2.0 program.
	CircuitQASM CircuitKind = iota
	// CircuitPulse is a pulse schedule; backends reject it.
	CircuitPulse
)

// Circuit is one program to run.
type Circuit struct {
	// Name labels the API job. Options.Name is used when empty.
	Name string

	// QASM is the OpenQASM 2.0 source.
	QASM string

	// Metadata is copied into the experiment result header.
	Metadata map[string]any

	Kind CircuitKind
}

// Options are the run options of a backend.
type Options struct {
	// Shots is the number of repetitions. Zero selects the backend default.
	Shots int

	// Priority is the queue priority: low, normal or high. Empty selects
	// the backend default.
	Priority string

	// Name labels the submitted jobs.
	Name string

	// Extra holds options the backend does not know. They are logged and
	// ignored.
	Extra map[string]any
}

// resolve fills defaults and checks values. Unknown Extra keys are logged
// with a warning. An explicit priority is kept even when shots are unset.
func (o Options) resolve(defaults Options, maxShots int, logger *slog.Logger) (Options, error) {
	keys := make([]string, 0, len(o.Extra))
	for k := range o.Extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		logger.Warn("option is not used by this backend", "option", k)
	}

	out := Options{Shots: o.Shots, Priority: o.Priority, Name: o.Name}
	if out.Shots == 0 {
		out.Shots = defaults.Shots
	}
	if out.Priority == "" {
		out.Priority = defaults.Priority
	}

	if out.Shots < 0 || (maxShots > 0 && out.Shots > maxShots) {
		return Options{}, fmt.Errorf("%w: shots must be between 1 and %d, got %d", ErrInvalidOption, maxShots, out.Shots)
	}
	switch strings.ToLower(out.Priority) {
	case PriorityLow, PriorityNormal, PriorityHigh:
		out.Priority = strings.ToLower(out.Priority)
	default:
		return Options{}, fmt.Errorf("%w: priority %q", ErrInvalidOption, out.Priority)
	}
	return out, nil
}
