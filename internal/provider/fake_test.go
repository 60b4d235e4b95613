package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/qprovider/internal/api"
	"github.com/nao1215/qprovider/internal/config"
)

const (
	testToken    = "eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ4In0.c2ln"
	testUser     = "alice@example.com"
	bellResults  = `{"c":["00","11","11","01"]}`
	bellProgram  = "OPENQASM 2.0;\ninclude \"qelib1.inc\";\nqreg q[2];\ncreg c[2];\nh q[0];\ncx q[0],q[1];\nmeasure q -> c;\n"
	fakeMachines = `[{"name":"H1-1E","n_qubits":20,"wasm":true},{"name":"H1-2","n_qubits":12}]`
)

// fakeAPI serves the machine, job and login endpoints from memory.
type fakeAPI struct {
	mu sync.Mutex

	// pollsUntilDone is the number of status calls that answer "running".
	pollsUntilDone int
	// submitErrorAt answers the n-th submission (1-based) with an error.
	submitErrorAt int
	// websocket offers websocket credentials while a job runs.
	websocket bool
	// wsFails makes the websocket upgrade fail.
	wsFails bool

	results    map[string]string
	failed     map[string]bool
	canceled   map[string]bool
	statusless map[string]bool
	missing    map[string]bool

	submitted     []api.JobRequest
	polls         map[string]int
	machineCalls  int
	wsConnections int
	logins        int
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		results:    make(map[string]string),
		failed:     make(map[string]bool),
		canceled:   make(map[string]bool),
		statusless: make(map[string]bool),
		missing:    make(map[string]bool),
		polls:      make(map[string]int),
	}
}

func writeJSON(w http.ResponseWriter, body string) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(body))
}

func (f *fakeAPI) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/login", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.logins++
		f.mu.Unlock()
		writeJSON(w, `{"id-token":"`+testToken+`","refresh-token":"refresh-1"}`)
	})

	mux.HandleFunc("GET /v1/machine", func(w http.ResponseWriter, _ *http.Request) {
		f.mu.Lock()
		f.machineCalls++
		f.mu.Unlock()
		writeJSON(w, fakeMachines)
	})

	mux.HandleFunc("GET /v1/machine/{name}", func(w http.ResponseWriter, r *http.Request) {
		if r.PathValue("name") != "H1-1E" {
			http.Error(w, `{"error":"no such machine"}`, http.StatusNotFound)
			return
		}
		writeJSON(w, `{"state":"online","version":"1.2.3","pending_jobs":3}`)
	})

	mux.HandleFunc("POST /v1/job", func(w http.ResponseWriter, r *http.Request) {
		var req api.JobRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode job request: %v", err)
			return
		}
		f.mu.Lock()
		f.submitted = append(f.submitted, req)
		n := len(f.submitted)
		errorAt := f.submitErrorAt
		f.mu.Unlock()

		if n == errorAt {
			writeJSON(w, `{"error":{"code":21,"text":"program too large"}}`)
			return
		}
		writeJSON(w, fmt.Sprintf(`{"job":"job-%d","status":"queued","submit-date":"2026-01-02T03:04:0%d"}`, n, n))
	})

	mux.HandleFunc("GET /v1/job/{id}", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		f.polls[id]++
		polls := f.polls[id]
		running := polls <= f.pollsUntilDone
		canceled, failed, statusless, missing := f.canceled[id], f.failed[id], f.statusless[id], f.missing[id]
		results, ok := f.results[id]
		ws := f.websocket && r.URL.Query().Get("websocket") == "true"
		f.mu.Unlock()
		if !ok {
			results = bellResults
		}

		switch {
		case missing:
			w.WriteHeader(http.StatusNotFound)
			writeJSON(w, `{"error":{"code":11,"text":"job not found"}}`)
		case statusless:
			writeJSON(w, `{"job":"`+id+`"}`)
		case canceled:
			writeJSON(w, `{"job":"`+id+`","status":"canceled"}`)
		case failed:
			writeJSON(w, `{"job":"`+id+`","status":"failed","error":"bad circuit"}`)
		case running:
			body := `{"job":"` + id + `","status":"running"`
			if ws {
				body += `,"websocket":{"task_token":"tok-` + id + `","executionArn":"arn:` + id + `"}`
			}
			writeJSON(w, body+"}")
		default:
			writeJSON(w, `{"job":"`+id+`","status":"completed","results":`+results+`}`)
		}
	})

	mux.HandleFunc("POST /v1/job/{id}/cancel", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		f.mu.Lock()
		f.canceled[id] = true
		f.mu.Unlock()
		writeJSON(w, `{"job":"`+id+`","status":"cancelling"}`)
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("GET /v1", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.wsConnections++
		fails := f.wsFails
		f.mu.Unlock()
		if fails {
			http.Error(w, "no websocket here", http.StatusBadGateway)
			return
		}
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		defer conn.Close()

		var open struct {
			Action       string `json:"action"`
			TaskToken    string `json:"task_token"`
			ExecutionArn string `json:"executionArn"`
		}
		if err := conn.ReadJSON(&open); err != nil {
			t.Errorf("read OpenConnection: %v", err)
			return
		}
		id := open.ExecutionArn[len("arn:"):]
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"job":"`+id+`","status":"completed","results":`+bellResults+`}`))
	})

	return mux
}

func (f *fakeAPI) submissions() []api.JobRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]api.JobRequest(nil), f.submitted...)
}

// newTestProvider returns a Provider using an API key against fake. Poll
// sleeps return immediately.
func newTestProvider(t *testing.T, fake *fakeAPI, opts ...Option) *Provider {
	t.Helper()

	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	cfg := config.NewConfig()
	cfg.APIKey = testToken
	cfg.Account.UserName = testUser
	cfg.AccountFilePath = filepath.Join(t.TempDir(), "accounts.yaml")
	cfg.BatchSize = 2
	cfg.ResultTimeout = 30 * time.Second

	return newProviderAt(t, srv, cfg, opts...)
}

func newProviderAt(t *testing.T, srv *httptest.Server, cfg *config.Config, opts ...Option) *Provider {
	t.Helper()

	base := []Option{
		WithLogger(slog.New(slog.DiscardHandler)),
		WithServiceURL(srv.URL + "/v1"),
		WithSessionOptions(
			api.WithHTTPClient(srv.Client()),
			api.WithRetry(0, 0),
			api.WithRateLimit(0),
			api.WithWebsocketURL("ws"+srv.URL[len("http"):]+"/v1"),
		),
	}
	p, err := New(cfg, append(base, opts...)...)
	require.NoError(t, err)
	p.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	t.Cleanup(func() { _ = p.Close() })
	return p
}
