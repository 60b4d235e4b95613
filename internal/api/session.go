package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"

	"github.com/nao1215/qprovider/internal/config"
	qlog "github.com/nao1215/qprovider/internal/log"
)

// maxBodyBytes limits how much of a response body is read.
const maxBodyBytes = 32 << 20

// TokenSource supplies the access token sent in the Authorization header.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to TokenSource.
type TokenSourceFunc func(ctx context.Context) (string, error)

// AccessToken implements TokenSource.
func (f TokenSourceFunc) AccessToken(ctx context.Context) (string, error) {
	return f(ctx)
}

// Session sends requests relative to a base URL such as
// https://qapi.quantinuum.com/v1.
type Session struct {
	baseURL *url.URL
	wsURL   string

	client *http.Client
	cached *http.Client

	tokensMu sync.RWMutex
	tokens   TokenSource

	proxies      config.Proxies
	limiter      *rate.Limiter
	retries      int
	backoff      time.Duration
	retryStatus  map[int]bool
	timeout      time.Duration
	userAgent    string
	clientApp    string
	customClient *http.Client
	logger       *slog.Logger
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithTokenSource sets the access token source.
func WithTokenSource(ts TokenSource) SessionOption {
	return func(s *Session) { s.tokens = ts }
}

// WithProxies routes requests through proxies.
func WithProxies(p config.Proxies) SessionOption {
	return func(s *Session) { s.proxies = p }
}

// WithRetry sets the number of retries and the first backoff delay.
func WithRetry(retries int, backoffFactor time.Duration) SessionOption {
	return func(s *Session) {
		s.retries = retries
		s.backoff = backoffFactor
	}
}

// WithRateLimit caps requests per second. Zero or less disables it.
func WithRateLimit(perSecond float64) SessionOption {
	return func(s *Session) {
		if perSecond <= 0 {
			s.limiter = nil
			return
		}
		burst := int(perSecond)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout sets the per-request timeout.
func WithTimeout(d time.Duration) SessionOption {
	return func(s *Session) { s.timeout = d }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) SessionOption {
	return func(s *Session) { s.userAgent = ua }
}

// WithHTTPClient replaces the transport stack with c. Proxies and HTTP
// caching are then the caller's responsibility. Intended for tests.
func WithHTTPClient(c *http.Client) SessionOption {
	return func(s *Session) { s.customClient = c }
}

// WithWebsocketURL overrides the URL derived for StreamStatus.
func WithWebsocketURL(u string) SessionOption {
	return func(s *Session) { s.wsURL = u }
}

// WithSessionLogger sets the logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) { s.logger = l }
}

// NewSession creates a Session for serviceURL (API URL plus version).
func NewSession(serviceURL string, opts ...SessionOption) (*Session, error) {
	u, err := url.Parse(strings.TrimRight(serviceURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse service URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidURL, serviceURL)
	}

	s := &Session{
		baseURL:     u,
		retries:     config.DefaultRetries,
		backoff:     config.DefaultBackoffFactor,
		retryStatus: make(map[int]bool, len(config.RetryStatusCodes)),
		timeout:     config.DefaultTimeout,
		userAgent:   config.DefaultUserAgent,
		clientApp:   config.ClientApplication,
		logger:      slog.Default(),
	}
	for _, code := range config.RetryStatusCodes {
		s.retryStatus[code] = true
	}
	WithRateLimit(config.DefaultRequestsPerSecond)(s)
	for _, opt := range opts {
		opt(s)
	}
	if err := s.proxies.Validate(); err != nil {
		return nil, err
	}

	headers := map[string]string{
		HeaderClientApplication: s.clientApp,
		"User-Agent":            s.userAgent,
	}

	if s.customClient != nil {
		s.client = s.customClient
		s.cached = s.customClient
	} else {
		base, err := newBaseTransport(u, s.proxies, s.timeout)
		if err != nil {
			return nil, err
		}
		injected := &headerInjectingTransport{base: base, headers: headers}
		s.client = &http.Client{Transport: injected, Timeout: s.timeout}
		s.cached = &http.Client{Transport: newCachingTransport(injected), Timeout: s.timeout}
	}

	if s.wsURL == "" {
		s.wsURL = websocketURL(u)
	}
	return s, nil
}

// websocketURL maps https://host/v1 to wss://ws.host/v1.
func websocketURL(base *url.URL) string {
	ws := *base
	switch ws.Scheme {
	case "https":
		ws.Scheme = "wss"
		ws.Host = "ws." + ws.Host
	default:
		ws.Scheme = "ws"
	}
	return ws.String()
}

// SetTokenSource replaces the token source. Credentials and the login
// client depend on each other, so the source is often set after
// construction.
func (s *Session) SetTokenSource(ts TokenSource) {
	s.tokensMu.Lock()
	defer s.tokensMu.Unlock()
	s.tokens = ts
}

func (s *Session) tokenSource() TokenSource {
	s.tokensMu.RLock()
	defer s.tokensMu.RUnlock()
	return s.tokens
}

// BaseURL returns the service URL.
func (s *Session) BaseURL() string {
	return s.baseURL.String()
}

// UsesProxy reports whether any proxy is configured.
func (s *Session) UsesProxy() bool {
	return !s.proxies.IsZero()
}

// request describes one API call.
type request struct {
	method string
	path   string
	query  url.Values
	body   any
	// anonymous requests carry no Authorization header (login).
	anonymous bool
	// cached requests go through the HTTP cache.
	cached bool
	// idempotent requests are retried on gateway and transport errors.
	idempotent bool
}

// response is a successful API reply.
type response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// do sends req. Idempotent requests are retried on gateway errors and
// transport failures with exponential backoff; others are sent once.
// Any non-2xx reply ends as *RequestError.
func (s *Session) do(ctx context.Context, req request) (*response, error) {
	var payload []byte
	if req.body != nil {
		b, err := json.Marshal(req.body)
		if err != nil {
			return nil, fmt.Errorf("encode request body: %w", err)
		}
		payload = b
	}

	target := s.baseURL.JoinPath(req.path)
	if len(req.query) > 0 {
		target.RawQuery = req.query.Encode()
	}
	client := s.client
	if req.cached {
		client = s.cached
	}

	var (
		out     *response
		token   string
		attempt int
	)

	operation := func() error {
		attempt++
		if s.limiter != nil {
			if err := s.limiter.Wait(ctx); err != nil {
				return backoff.Permanent(err)
			}
		}

		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		httpReq, err := http.NewRequestWithContext(ctx, req.method, target.String(), body)
		if err != nil {
			return backoff.Permanent(err)
		}
		httpReq.Header.Set("Accept", "application/json")
		if payload != nil {
			httpReq.Header.Set("Content-Type", "application/json")
		}
		if s.customClient != nil {
			httpReq.Header.Set(HeaderClientApplication, s.clientApp)
			httpReq.Header.Set("User-Agent", s.userAgent)
		}

		if ts := s.tokenSource(); ts != nil && !req.anonymous {
			token, err = ts.AccessToken(ctx)
			if err != nil {
				return backoff.Permanent(fmt.Errorf("access token: %w", err))
			}
			httpReq.Header.Set(HeaderAuthorization, token)
		}

		resp, err := client.Do(httpReq)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			s.logger.Debug("request failed", "method", req.method, "url", target.String(), "attempt", attempt, "error", err)
			return s.retryable(req, &RequestError{
				Method:  req.method,
				URL:     target.String(),
				Message: qlog.Redact(err.Error(), token),
				Err:     err,
			})
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return s.retryable(req, &RequestError{Method: req.method, URL: target.String(), StatusCode: resp.StatusCode, Message: qlog.Redact(err.Error(), token), Err: err})
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			out = &response{StatusCode: resp.StatusCode, Header: resp.Header, Body: data}
			return nil
		}

		reqErr := &RequestError{
			Method:     req.method,
			URL:        target.String(),
			StatusCode: resp.StatusCode,
			Message:    qlog.Redact(errorText(data), token),
			Body:       data,
		}
		if req.idempotent && s.retryStatus[resp.StatusCode] {
			s.logger.Debug("retrying request", "method", req.method, "url", target.String(), "status", resp.StatusCode, "attempt", attempt)
			return reqErr
		}
		return backoff.Permanent(reqErr)
	}

	err := backoff.Retry(operation, s.newBackOff(ctx))
	if err != nil {
		var re *RequestError
		if errors.As(err, &re) {
			return nil, re
		}
		return nil, err
	}
	return out, nil
}

// retryable returns err unchanged for idempotent requests and as a
// permanent error otherwise.
func (s *Session) retryable(req request, err error) error {
	if req.idempotent {
		return err
	}
	return backoff.Permanent(err)
}

func (s *Session) newBackOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = s.backoff
	exp.Multiplier = 2
	exp.RandomizationFactor = 0
	exp.MaxInterval = 2 * time.Minute
	exp.MaxElapsedTime = 0
	exp.Reset()

	retries := s.retries
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(exp, uint64(retries)), ctx) //nolint:gosec // non-negative
}

// errorText extracts a human-readable message from an API error body.
// The API uses {"error": {"code": n, "text": "..."}} or {"error": "..."}.
func errorText(body []byte) string {
	var envelope struct {
		Error   json.RawMessage `json:"error"`
		Message string          `json:"message"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		if msg := rawErrorMessage(envelope.Error); msg != "" {
			return msg
		}
		if envelope.Message != "" {
			return envelope.Message
		}
	}
	text := strings.TrimSpace(string(body))
	if len(text) > 512 {
		text = text[:512] + "..."
	}
	return text
}

// rawErrorMessage renders an "error" field that is either a string or an
// object with a "text" member.
func rawErrorMessage(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj struct {
		Code int    `json:"code"`
		Text string `json:"text"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil && obj.Text != "" {
		if obj.Code != 0 {
			return fmt.Sprintf("%s (code %d)", obj.Text, obj.Code)
		}
		return obj.Text
	}
	return string(raw)
}
