package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/nao1215/qprovider/internal/credential"
)

// Client calls the machine API through a Session.
type Client struct {
	session *Session
}

var _ credential.Authenticator = (*Client)(nil)

// NewClient returns a Client using session.
func NewClient(session *Session) *Client {
	return &Client{session: session}
}

// Session returns the underlying session.
func (c *Client) Session() *Session {
	return c.session
}

func decode(resp *response, out any) error {
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type loginBody struct {
	Email        string `json:"email,omitempty"`
	Password     string `json:"password,omitempty"`
	RefreshToken string `json:"refresh-token,omitempty"`
}

type loginReply struct {
	IDToken      string `json:"id-token"`
	RefreshToken string `json:"refresh-token"`
}

// Login exchanges a password or refresh token for tokens. A 400 or 403
// reply maps to credential.ErrRefreshRejected for refresh logins and to
// credential.ErrLoginFailed for password logins.
func (c *Client) Login(ctx context.Context, req credential.LoginRequest) (credential.TokenPair, error) {
	body := loginBody{RefreshToken: req.RefreshToken}
	if req.RefreshToken == "" {
		body = loginBody{Email: req.Email, Password: req.Password}
	}

	resp, err := c.session.do(ctx, request{method: http.MethodPost, path: "login", body: body, anonymous: true})
	if err != nil {
		switch StatusCode(err) {
		case http.StatusBadRequest, http.StatusForbidden, http.StatusUnauthorized:
			if req.RefreshToken != "" {
				return credential.TokenPair{}, fmt.Errorf("%w: %w", credential.ErrRefreshRejected, err)
			}
			return credential.TokenPair{}, fmt.Errorf("%w: %w", credential.ErrLoginFailed, err)
		}
		return credential.TokenPair{}, err
	}

	var reply loginReply
	if err := decode(resp, &reply); err != nil {
		return credential.TokenPair{}, err
	}
	if reply.IDToken == "" {
		return credential.TokenPair{}, fmt.Errorf("%w: response has no id-token", credential.ErrLoginFailed)
	}
	return credential.TokenPair{IDToken: reply.IDToken, RefreshToken: reply.RefreshToken}, nil
}

// Machines lists the machines visible to the user, with configuration.
// Responses are cached and revalidated.
func (c *Client) Machines(ctx context.Context) ([]Machine, error) {
	resp, err := c.session.do(ctx, request{
		method:     http.MethodGet,
		path:       "machine",
		query:      url.Values{"config": {"true"}},
		cached:     true,
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	var machines []Machine
	if err := decode(resp, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

// MachineStatus returns the status of one machine. A missing version is
// reported as "0.0.0"; the machine is operational when it reports any
// state; pending jobs are never negative.
func (c *Client) MachineStatus(ctx context.Context, name string) (MachineStatus, error) {
	if name == "" {
		return MachineStatus{}, ErrEmptyID
	}
	resp, err := c.session.do(ctx, request{method: http.MethodGet, path: "machine/" + name, idempotent: true})
	if err != nil {
		return MachineStatus{}, err
	}

	var raw struct {
		Version     string `json:"version"`
		State       string `json:"state"`
		PendingJobs *int   `json:"pending_jobs"`
	}
	if err := decode(resp, &raw); err != nil {
		return MachineStatus{}, err
	}

	st := MachineStatus{
		BackendName:    name,
		BackendVersion: raw.Version,
		StatusMsg:      raw.State,
		Operational:    raw.State != "",
	}
	if st.BackendVersion == "" {
		st.BackendVersion = "0.0.0"
	}
	if raw.PendingJobs != nil && *raw.PendingJobs > 0 {
		st.PendingJobs = *raw.PendingJobs
	}
	return st, nil
}

// SubmitJob posts one program. The language is always OpenQASM 2.0.
// A reply with an "error" field is returned without error; callers
// inspect JobResponse.HasError.
func (c *Client) SubmitJob(ctx context.Context, req JobRequest) (*JobResponse, error) {
	req.Language = Language
	resp, err := c.session.do(ctx, request{method: http.MethodPost, path: "job", body: req})
	if err != nil {
		return nil, err
	}
	var jr JobResponse
	if err := decode(resp, &jr); err != nil {
		return nil, err
	}
	return &jr, nil
}

// JobStatus fetches a job. Websocket credentials are requested unless the
// session uses a proxy, which the websocket endpoint does not support.
func (c *Client) JobStatus(ctx context.Context, id string) (*JobResponse, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	resp, err := c.session.do(ctx, request{
		method:     http.MethodGet,
		path:       "job/" + id,
		query:      url.Values{"websocket": {strconv.FormatBool(!c.session.UsesProxy())}},
		idempotent: true,
	})
	if err != nil {
		return nil, err
	}
	var jr JobResponse
	if err := decode(resp, &jr); err != nil {
		return nil, err
	}
	if jr.Job == "" {
		jr.Job = id
	}
	return &jr, nil
}

// CancelJob asks the API to cancel a job and returns the updated job.
// A job that has already finished is reported by the API as a 4xx.
func (c *Client) CancelJob(ctx context.Context, id string) (*JobResponse, error) {
	if id == "" {
		return nil, ErrEmptyID
	}
	resp, err := c.session.do(ctx, request{method: http.MethodPost, path: "job/" + id + "/cancel", body: struct{}{}})
	if err != nil {
		return nil, err
	}
	var jr JobResponse
	if len(resp.Body) == 0 {
		return &JobResponse{Job: id, Status: StatusCanceling}, nil
	}
	if err := decode(resp, &jr); err != nil {
		return nil, err
	}
	if jr.Job == "" {
		jr.Job = id
	}
	return &jr, nil
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	return StatusCode(err) == http.StatusNotFound
}

// IsUnauthorized reports whether err is a 401 from the API.
func IsUnauthorized(err error) bool {
	var re *RequestError
	return errors.As(err, &re) && re.StatusCode == http.StatusUnauthorized
}
