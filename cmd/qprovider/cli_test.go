package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/nao1215/qprovider/internal/config"
)

const bellQASM = `OPENQASM 2.0;
include "qelib1.inc";
qreg q[2];
creg c[2];
h q[0];
cx q[0],q[1];
measure q -> c;
`

// machineAPI is an in-memory machine API whose jobs finish immediately.
type machineAPI struct {
	mu        sync.Mutex
	submitted int
	canceled  map[string]bool
}

func (m *machineAPI) handler() http.Handler {
	mux := http.NewServeMux()
	reply := func(w http.ResponseWriter, body string) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}

	mux.HandleFunc("GET /v1/machine", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, `[{"name":"H1-1E","n_qubits":20},{"name":"H1-2","n_qubits":12}]`)
	})
	mux.HandleFunc("GET /v1/machine/{name}", func(w http.ResponseWriter, _ *http.Request) {
		reply(w, `{"state":"online","version":"1.2.3","pending_jobs":3}`)
	})
	mux.HandleFunc("POST /v1/job", func(w http.ResponseWriter, _ *http.Request) {
		m.mu.Lock()
		m.submitted++
		n := m.submitted
		m.mu.Unlock()
		reply(w, fmt.Sprintf(`{"job":"job-%d","status":"queued","submit-date":"2026-01-02T03:04:%02d"}`, n, n))
	})
	mux.HandleFunc("GET /v1/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		m.mu.Lock()
		canceled := m.canceled[id]
		m.mu.Unlock()
		if canceled {
			reply(w, `{"job":"`+id+`","status":"canceled"}`)
			return
		}
		reply(w, `{"job":"`+id+`","status":"completed","results":{"c":["00","11","11","01"]}}`)
	})
	mux.HandleFunc("POST /v1/job/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		m.mu.Lock()
		m.canceled[id] = true
		m.mu.Unlock()
		reply(w, `{"job":"`+id+`","status":"cancelling"}`)
	})
	return mux
}

// setupCLI starts a machine API and returns the global flags pointing
// the CLI at it, with a private account file and history.
func setupCLI(t *testing.T) (*machineAPI, []string, string) {
	t.Helper()

	clearEnv(t)
	t.Setenv(config.EnvAPIKey, "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln")

	api := &machineAPI{canceled: make(map[string]bool)}
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	circuit := filepath.Join(dir, "bell.qasm")
	if err := os.WriteFile(circuit, []byte(bellQASM), 0600); err != nil {
		t.Fatal(err)
	}

	global := []string{
		"--config", filepath.Join(dir, "accounts.yaml"),
		"--history-dir", dir,
		"--service-url", srv.URL + "/v1",
	}
	return api, global, circuit
}

func run(t *testing.T, global []string, args ...string) (string, string, error) {
	t.Helper()
	return execute(t, append(append([]string{}, global...), args...)...)
}

func TestBackendsAndStatus(t *testing.T) {
	_, global, _ := setupCLI(t)

	out, _, err := run(t, global, "backends")
	if err != nil {
		t.Fatalf("backends: %v", err)
	}
	for _, want := range []string{"NAME", "H1-1E", "H1-2", "10000"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	out, _, err = run(t, global, "backends", "H1-2", "--json")
	if err != nil {
		t.Fatalf("backends --json: %v", err)
	}
	if !strings.Contains(out, `"backend_name": "H1-2"`) || strings.Contains(out, "H1-1E") {
		t.Errorf("unexpected JSON:\n%s", out)
	}

	if _, _, err := run(t, global, "backends", "H9"); err == nil {
		t.Error("expected error for unknown backend")
	}

	out, _, err = run(t, global, "status", "H1-1E")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	for _, want := range []string{"Backend:      H1-1E", "Version:      1.2.3", "Pending jobs: 3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}
}

func TestRunAndHistory(t *testing.T) {
	_, global, circuit := setupCLI(t)

	out, stderr, err := run(t, global, "run", "H1-1E", circuit, "--shots", "4")
	if err != nil {
		t.Fatalf("run: %v\n%s", err, stderr)
	}
	if !strings.Contains(stderr, "Submitted job") {
		t.Errorf("expected submission notice, got %q", stderr)
	}
	for _, want := range []string{"JOB RESULT", "Status:       Done", "0x3"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	out, _, err = run(t, global, "run", "H1-1E", circuit, "--name", "second", "--no-wait")
	if err != nil {
		t.Fatalf("run --no-wait: %v", err)
	}
	second := strings.TrimSpace(out)
	if second == "" {
		t.Fatal("expected the local job id on stdout")
	}

	out, _, err = run(t, global, "history", "list")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected header and 2 jobs, got:\n%s", out)
	}
	if !strings.HasPrefix(lines[1], second) {
		t.Errorf("expected newest job first, got %q", lines[1])
	}
	first := strings.Fields(lines[2])[0]

	out, _, err = run(t, global, "job", "status", second)
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if !strings.Contains(out, "DONE") {
		t.Errorf("expected DONE in:\n%s", out)
	}

	out, _, err = run(t, global, "job", "result", second, "--json")
	if err != nil {
		t.Fatalf("job result: %v", err)
	}
	if !strings.Contains(out, `"0x3": 2`) || !strings.Contains(out, `"version"`) {
		t.Errorf("unexpected JSON:\n%s", out)
	}

	out, _, err = run(t, global, "history", "show", second, "--binary")
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(out, "11") || !strings.Contains(out, "50.0%") {
		t.Errorf("unexpected history output:\n%s", out)
	}

	report := filepath.Join(t.TempDir(), "reports", "compare.md")
	_, stderr, err = run(t, global, "history", "compare", first, second, "--markdown", "-o", report)
	if err != nil {
		t.Fatalf("history compare: %v", err)
	}
	if !strings.Contains(stderr, "Report written to") {
		t.Errorf("expected report notice, got %q", stderr)
	}
	md, err := os.ReadFile(report) //nolint:gosec // test file
	if err != nil {
		t.Fatalf("read report: %v", err)
	}
	if !strings.Contains(string(md), "**0.0000**") {
		t.Errorf("expected identical distributions:\n%s", md)
	}

	if _, _, err := run(t, global, "history", "delete", first); err != nil {
		t.Fatalf("history delete: %v", err)
	}
	if _, _, err := run(t, global, "history", "show", first); err == nil {
		t.Error("expected deleted job to be gone")
	}
}

func TestRunValidation(t *testing.T) {
	_, global, circuit := setupCLI(t)

	tests := []struct {
		name string
		args []string
	}{
		{name: "missing file", args: []string{"run", "H1-1E", filepath.Join(t.TempDir(), "none.qasm")}},
		{name: "unknown backend", args: []string{"run", "H9", circuit}},
		{name: "too many shots", args: []string{"run", "H1-1E", circuit, "--shots", "20000"}},
		{name: "bad priority", args: []string{"run", "H1-1E", circuit, "--priority", "urgent"}},
		{name: "json and markdown", args: []string{"run", "H1-1E", circuit, "--json", "--markdown"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := run(t, global, tt.args...); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestJobByAPIID(t *testing.T) {
	api, global, _ := setupCLI(t)

	if _, _, err := run(t, global, "job", "status", "job-42"); err == nil {
		t.Error("expected error without --backend")
	}

	out, _, err := run(t, global, "job", "cancel", "job-42", "--backend", "H1-1E")
	if err != nil {
		t.Fatalf("job cancel: %v", err)
	}
	if !strings.Contains(out, "Cancel requested for job-42") {
		t.Errorf("unexpected output %q", out)
	}
	api.mu.Lock()
	canceled := api.canceled["job-42"]
	api.mu.Unlock()
	if !canceled {
		t.Error("expected cancel to reach the API")
	}

	out, _, err = run(t, global, "job", "status", "job-42", "--backend", "H1-1E")
	if err != nil {
		t.Fatalf("job status: %v", err)
	}
	if !strings.Contains(out, "CANCELLED") {
		t.Errorf("expected CANCELLED in:\n%s", out)
	}
}

func TestHistoryDisabled(t *testing.T) {
	_, global, _ := setupCLI(t)

	_, _, err := run(t, global, "--no-history", "history", "list")
	if err == nil || !strings.Contains(err.Error(), "disabled") {
		t.Errorf("err = %v, want history disabled", err)
	}
}
