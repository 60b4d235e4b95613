package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Job status strings as returned by the API.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusCanceling = "cancelling"
	StatusCanceled  = "canceled"
	StatusFailed    = "failed"
)

// IsFinalStatus reports whether an API job status is terminal.
func IsFinalStatus(status string) bool {
	switch status {
	case StatusCompleted, StatusCanceled, StatusFailed:
		return true
	default:
		return false
	}
}

// Language is the program language sent with every job.
const Language = "OPENQASM 2.0"

// Machine is one entry of GET /machine?config=true.
type Machine struct {
	Name    string `json:"name"`
	NQubits int    `json:"n_qubits"`
	// Extra carries fields this client does not interpret.
	Extra map[string]json.RawMessage `json:"-"`
}

// UnmarshalJSON keeps unknown fields in Extra.
func (m *Machine) UnmarshalJSON(data []byte) error {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return err
	}
	type plain Machine
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	delete(all, "name")
	delete(all, "n_qubits")
	*m = Machine(p)
	if len(all) > 0 {
		m.Extra = all
	}
	return nil
}

// MachineStatus is the normalised reply of GET /machine/{name}.
type MachineStatus struct {
	BackendName    string `json:"backend_name"`
	BackendVersion string `json:"backend_version"`
	StatusMsg      string `json:"status_msg"`
	Operational    bool   `json:"operational"`
	PendingJobs    int    `json:"pending_jobs"`
}

// JobRequest is the body of POST /job.
type JobRequest struct {
	Machine  string `json:"machine"`
	Count    int    `json:"count"`
	Language string `json:"language"`
	Program  string `json:"program"`
	Priority string `json:"priority"`
	Name     string `json:"name,omitempty"`
}

// WebsocketInfo is the credential pair used to subscribe to job updates.
type WebsocketInfo struct {
	TaskToken    string `json:"task_token"`
	ExecutionArn string `json:"executionArn"`
}

// JobResponse is returned by job submission, status and the websocket.
type JobResponse struct {
	Job        string          `json:"job"`
	Name       string          `json:"name,omitempty"`
	Status     string          `json:"status"`
	SubmitDate string          `json:"submit-date,omitempty"`
	StartDate  string          `json:"start-date,omitempty"`
	ResultDate string          `json:"result-date,omitempty"`
	Error      json.RawMessage `json:"error,omitempty"`
	Websocket  *WebsocketInfo  `json:"websocket,omitempty"`
	Results    Registers       `json:"results,omitempty"`
}

// HasError reports whether the response carries an "error" field.
func (r *JobResponse) HasError() bool {
	return len(r.Error) > 0 && string(r.Error) != "null"
}

// ErrorMessage renders the error field, or "" when there is none.
func (r *JobResponse) ErrorMessage() string {
	return rawErrorMessage(r.Error)
}

// Register holds the per-shot bit strings of one classical register.
type Register struct {
	Name  string
	Shots []string
}

// Registers are the job results keyed by register name, in the order the
// server sent them. The order matters: bit strings are concatenated
// across registers to form a count key.
type Registers []Register

// UnmarshalJSON decodes a JSON object while preserving key order.
func (rs *Registers) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*rs = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("results: expected object, got %v", tok)
	}

	var out Registers
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("results: expected register name, got %v", tok)
		}
		var shots []string
		if err := dec.Decode(&shots); err != nil {
			return fmt.Errorf("results: register %q: %w", name, err)
		}
		out = append(out, Register{Name: name, Shots: shots})
	}
	if _, err := dec.Token(); err != nil {
		return err
	}
	*rs = out
	return nil
}

// MarshalJSON encodes the registers as an object in their stored order.
func (rs Registers) MarshalJSON() ([]byte, error) {
	if rs == nil {
		return []byte("null"), nil
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, r := range rs {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := json.Marshal(r.Name)
		if err != nil {
			return nil, err
		}
		shots, err := json.Marshal(r.Shots)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(shots)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the shots of the named register.
func (rs Registers) Get(name string) ([]string, bool) {
	for _, r := range rs {
		if r.Name == name {
			return r.Shots, true
		}
	}
	return nil, false
}
