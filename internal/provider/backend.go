package provider

import (
	"context"
	"fmt"
	"slices"

	"github.com/nao1215/qprovider/internal/api"
)

// GateConfig describes one gate a backend accepts.
type GateConfig struct {
	Name       string   `json:"name"`
	Parameters []string `json:"parameters"`
	QASMDef    string   `json:"qasm_def"`
}

// BackendConfiguration is the static description of a backend.
type BackendConfiguration struct {
	BackendName    string       `json:"backend_name"`
	BackendVersion string       `json:"backend_version"`
	NQubits        int          `json:"n_qubits"`
	BasisGates     []string     `json:"basis_gates"`
	Gates          []GateConfig `json:"gates"`
	Simulator      bool         `json:"simulator"`
	Local          bool         `json:"local"`
	Conditional    bool         `json:"conditional"`
	OpenPulse      bool         `json:"open_pulse"`
	Memory         bool         `json:"memory"`
	MaxShots       int          `json:"max_shots"`
}

// Configuration template shared by all discovered machines.
const (
	templateVersion  = "0.0.1"
	templateMaxShots = 10000
)

// newConfiguration fills the template for one machine.
func newConfiguration(m api.Machine) BackendConfiguration {
	gate := func(name string, params ...string) GateConfig {
		if params == nil {
			params = []string{}
		}
		return GateConfig{Name: name, Parameters: params, QASMDef: "TODO"}
	}
	return BackendConfiguration{
		BackendName:    m.Name,
		BackendVersion: templateVersion,
		NQubits:        m.NQubits,
		BasisGates:     []string{"rx", "ry", "rz", "cx", "h", "u1", "x", "y", "u3"},
		Gates: []GateConfig{
			gate("x"), gate("y"), gate("z"), gate("CX"), gate("cx"), gate("h"),
			gate("s"), gate("sdg"), gate("t"), gate("tdg"),
			gate("rx", "theta"), gate("ry", "theta"), gate("rz", "phi"),
			gate("cz"), gate("cy"), gate("ch"), gate("ccx"),
			gate("crz", "lambda"), gate("cu1", "lambda"),
			gate("cu3", "theta", "phi", "lambda"),
		},
		Conditional: true,
		MaxShots:    templateMaxShots,
	}
}

// SupportsGate reports whether name is in the gate list.
func (c BackendConfiguration) SupportsGate(name string) bool {
	return slices.ContainsFunc(c.Gates, func(g GateConfig) bool { return g.Name == name })
}

// BackendStatus is the live state of a backend.
type BackendStatus struct {
	BackendName    string `json:"backend_name"`
	BackendVersion string `json:"backend_version"`
	StatusMsg      string `json:"status_msg"`
	Operational    bool   `json:"operational"`
	PendingJobs    int    `json:"pending_jobs"`
}

// Backend is one hosted machine.
type Backend struct {
	provider *Provider
	config   BackendConfiguration
}

// Name returns the machine name.
func (b *Backend) Name() string {
	return b.config.BackendName
}

// Configuration returns a copy of the backend configuration.
func (b *Backend) Configuration() BackendConfiguration {
	c := b.config
	c.BasisGates = slices.Clone(b.config.BasisGates)
	c.Gates = slices.Clone(b.config.Gates)
	return c
}

// Provider returns the provider that discovered b.
func (b *Backend) Provider() *Provider {
	return b.provider
}

// DefaultOptions returns the run defaults.
func (b *Backend) DefaultOptions() Options {
	return Options{Shots: b.provider.cfg.Shots, Priority: b.provider.cfg.Priority}
}

// Status queries the machine state.
func (b *Backend) Status(ctx context.Context) (BackendStatus, error) {
	st, err := b.provider.apiClient().MachineStatus(ctx, b.Name())
	if api.IsNotFound(err) {
		return BackendStatus{}, fmt.Errorf("%w: %s: %w", ErrBackendNotFound, b.Name(), err)
	}
	if err != nil {
		return BackendStatus{}, fmt.Errorf("couldn't get backend status: %w", err)
	}
	return BackendStatus(st), nil
}

// Run validates circuits and options, submits one API job per circuit
// and returns the Job.
func (b *Backend) Run(ctx context.Context, circuits []Circuit, opts Options) (*Job, error) {
	if len(circuits) == 0 {
		return nil, ErrNoCircuits
	}
	for i, c := range circuits {
		if c.Kind == CircuitPulse {
			return nil, ErrPulseNotSupported
		}
		if c.QASM == "" {
			return nil, fmt.Errorf("%w: circuit %d has no program", ErrInvalidOption, i)
		}
	}

	resolved, err := opts.resolve(b.DefaultOptions(), b.config.MaxShots, b.provider.logger)
	if err != nil {
		return nil, err
	}

	job := b.newJob()
	job.circuits = slices.Clone(circuits)
	job.opts = resolved
	if err := job.Submit(ctx); err != nil {
		return job, err
	}
	return job, nil
}

// RetrieveJob returns a Job for an API job submitted earlier.
func (b *Backend) RetrieveJob(id string) *Job {
	job := b.newJob()
	job.jobIDs = []string{id}
	return job
}

// RetrieveJobs returns one Job per API job id.
func (b *Backend) RetrieveJobs(ids []string) []*Job {
	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, b.RetrieveJob(id))
	}
	return jobs
}

// ResumeJob rebuilds a multi-circuit Job from its local id and API job
// ids, as recorded in the job history.
func (b *Backend) ResumeJob(localID string, ids []string, opts Options) *Job {
	job := b.newJob()
	if localID != "" {
		job.localID = localID
	}
	job.jobIDs = slices.Clone(ids)
	job.opts = opts
	job.persist = true
	job.saved = true
	return job
}
