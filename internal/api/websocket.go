package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/fasthttp/websocket"

	qlog "github.com/nao1215/qprovider/internal/log"
)

// wsHandshakeTimeout bounds the websocket upgrade.
const wsHandshakeTimeout = 30 * time.Second

type openConnection struct {
	Action       string `json:"action"`
	TaskToken    string `json:"task_token"`
	ExecutionArn string `json:"executionArn"`
}

// StreamStatus subscribes to updates for the job described by info and
// returns the first job document pushed by the server, which the API sends
// once the job reaches a final state. It waits at most timeout.
func (c *Client) StreamStatus(ctx context.Context, info *WebsocketInfo, timeout time.Duration) (*JobResponse, error) {
	if info == nil {
		return nil, ErrNoWebsocket
	}
	s := c.session

	target, err := url.Parse(s.wsURL)
	if err != nil {
		return nil, fmt.Errorf("parse websocket URL: %w", err)
	}

	header := http.Header{}
	header.Set(HeaderClientApplication, s.clientApp)
	header.Set("User-Agent", s.userAgent)
	var token string
	if ts := s.tokenSource(); ts != nil {
		token, err = ts.AccessToken(ctx)
		if err != nil {
			return nil, fmt.Errorf("access token: %w", err)
		}
		header.Set(HeaderAuthorization, token)
	}

	dialer := &websocket.Dialer{HandshakeTimeout: wsHandshakeTimeout}
	if s.customClient == nil {
		r := routing{proxies: s.proxies}
		dial, err := r.dialContextFor(target, s.timeout)
		if err != nil {
			return nil, err
		}
		dialer.NetDialContext = dial
		dialer.Proxy = r.httpProxy
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, target.String(), header)
	if err != nil {
		re := &RequestError{Method: http.MethodGet, URL: target.String(), Message: qlog.Redact(err.Error(), token), Err: err}
		if resp != nil {
			re.StatusCode = resp.StatusCode
		}
		return nil, re
	}
	defer conn.Close()

	if err := conn.WriteJSON(openConnection{
		Action:       "OpenConnection",
		TaskToken:    info.TaskToken,
		ExecutionArn: info.ExecutionArn,
	}); err != nil {
		return nil, fmt.Errorf("send OpenConnection: %w", err)
	}

	deadline, _ := ctx.Deadline()
	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	// Unblock the read if ctx is cancelled before the deadline.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.SetReadDeadline(time.Now())
		case <-done:
		}
	}()

	var jr JobResponse
	if err := conn.ReadJSON(&jr); err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("waiting for job update: %w", ctx.Err())
		}
		return nil, fmt.Errorf("read job update: %w", err)
	}
	s.logger.Debug("job update received", "job", jr.Job, "status", jr.Status)
	return &jr, nil
}
