package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// maxPasswordAttempts bounds re-prompting after a rejected password.
const maxPasswordAttempts = 3

// LoginRequest is sent to the login endpoint. Either Email and Password,
// or RefreshToken, is set.
type LoginRequest struct {
	Email        string
	Password     string
	RefreshToken string
}

// Authenticator exchanges a LoginRequest for tokens. Implementations
// return ErrRefreshRejected when a refresh token is refused and
// ErrLoginFailed when a password is refused.
type Authenticator interface {
	Login(ctx context.Context, req LoginRequest) (TokenPair, error)
}

// Credentials yields access tokens for one user at one API URL.
type Credentials struct {
	userName string
	service  string
	apiKey   string

	store    Store
	auth     Authenticator
	prompter Prompter
	logger   *slog.Logger
	now      func() time.Time

	mu sync.Mutex
}

// Option configures Credentials.
type Option func(*Credentials)

// WithAPIKey makes AccessToken return key without touching the store.
func WithAPIKey(key string) Option {
	return func(c *Credentials) { c.apiKey = key }
}

// WithPrompter sets the password prompter. Without one a password login
// fails with ErrNoPassword.
func WithPrompter(p Prompter) Option {
	return func(c *Credentials) { c.prompter = p }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Credentials) { c.logger = l }
}

// WithClock replaces time.Now for expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Credentials) { c.now = now }
}

// New returns Credentials for user whose tokens live in store under
// ServiceName(apiURL, version, user).
func New(store Store, auth Authenticator, apiURL, version, user string, opts ...Option) *Credentials {
	c := &Credentials{
		userName: user,
		service:  ServiceName(apiURL, version, user),
		store:    store,
		auth:     auth,
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// UserName returns the user the credentials belong to.
func (c *Credentials) UserName() string { return c.userName }

// Service returns the store service name.
func (c *Credentials) Service() string { return c.service }

// HasToken reports whether an API key is set or an id or refresh token
// is stored.
func (c *Credentials) HasToken() bool {
	if c.apiKey != "" {
		return true
	}
	for _, name := range []string{IDTokenName, RefreshTokenName} {
		if _, err := LoadToken(c.store, c.service, name); err == nil {
			return true
		}
	}
	return false
}

// AccessToken returns a valid id token, logging in when the stored one
// is missing or expired.
func (c *Credentials) AccessToken(ctx context.Context) (string, error) {
	if c.apiKey != "" {
		return c.apiKey, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	id, err := LoadToken(c.store, c.service, IDTokenName)
	switch {
	case err == nil && !TokenExpired(id, c.now()):
		return id, nil
	case err == nil:
		c.logger.Info("id token expired, refreshing", "user", c.userName)
	case !errors.Is(err, ErrTokenNotFound):
		return "", fmt.Errorf("load id token: %w", err)
	}

	pair, err := c.authenticate(ctx)
	if err != nil {
		return "", err
	}
	return pair.IDToken, nil
}

// Authenticate logs in regardless of stored tokens and saves the result.
func (c *Credentials) Authenticate(ctx context.Context) error {
	if c.apiKey != "" {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.authenticate(ctx)
	return err
}

func (c *Credentials) authenticate(ctx context.Context) (TokenPair, error) {
	refresh, err := LoadToken(c.store, c.service, RefreshTokenName)
	if err == nil {
		pair, err := c.auth.Login(ctx, LoginRequest{RefreshToken: refresh})
		switch {
		case err == nil:
			if pair.RefreshToken == "" {
				pair.RefreshToken = refresh
			}
			return pair, c.save(pair)
		case errors.Is(err, ErrRefreshRejected):
			c.logger.Info("refresh token rejected, password required", "user", c.userName)
		default:
			return TokenPair{}, err
		}
	} else if !errors.Is(err, ErrTokenNotFound) {
		return TokenPair{}, fmt.Errorf("load refresh token: %w", err)
	}

	pair, err := c.passwordLogin(ctx)
	if err != nil {
		return TokenPair{}, err
	}
	return pair, c.save(pair)
}

func (c *Credentials) passwordLogin(ctx context.Context) (TokenPair, error) {
	if c.userName == "" {
		return TokenPair{}, ErrNoUserName
	}
	if c.prompter == nil {
		return TokenPair{}, ErrNoPassword
	}

	var lastErr error
	for attempt := 1; attempt <= maxPasswordAttempts; attempt++ {
		password, err := c.prompter.Password(ctx, c.userName)
		if err != nil {
			return TokenPair{}, err
		}
		if password == "" {
			return TokenPair{}, ErrNoPassword
		}

		pair, err := c.auth.Login(ctx, LoginRequest{Email: c.userName, Password: password})
		if err == nil {
			return pair, nil
		}
		if !errors.Is(err, ErrLoginFailed) {
			return TokenPair{}, err
		}
		c.logger.Warn("login rejected", "user", c.userName, "attempt", attempt)
		lastErr = err
	}
	return TokenPair{}, lastErr
}

func (c *Credentials) save(pair TokenPair) error {
	if err := SaveTokens(c.store, c.service, pair); err != nil {
		return err
	}
	c.logger.Debug("tokens saved", "service", c.service)
	return nil
}

// RemoveTokens deletes the stored tokens.
func (c *Credentials) RemoveTokens() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return DeleteTokens(c.store, c.service)
}
