package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nao1215/qprovider/internal/api"
	"github.com/nao1215/qprovider/internal/config"
	"github.com/nao1215/qprovider/internal/credential"
	"github.com/nao1215/qprovider/internal/history"
)

// Recorder persists jobs. *history.DB implements it.
type Recorder interface {
	SaveJob(ctx context.Context, job *history.Job) error
	UpdateJob(ctx context.Context, job *history.Job) error
}

var _ Recorder = (*history.DB)(nil)

// Provider gives access to the backends of one account.
type Provider struct {
	cfg         *config.Config
	logger      *slog.Logger
	store       credential.Store
	closeStore  func() error
	prompter    credential.Prompter
	recorder    Recorder
	serviceURL  string
	sessionOpts []api.SessionOption
	now         func() time.Time
	sleep       func(context.Context, time.Duration) error

	mu       sync.Mutex
	client   *api.Client
	creds    *credential.Credentials
	backends []*Backend
}

// Option configures a Provider.
type Option func(*Provider)

// WithStore sets the token store. Without it New opens the store named
// by the configuration.
func WithStore(s credential.Store) Option {
	return func(p *Provider) { p.store = s }
}

// WithPrompter sets the prompter used when a password login is needed.
func WithPrompter(pr credential.Prompter) Option {
	return func(p *Provider) { p.prompter = pr }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.logger = l }
}

// WithRecorder records submitted jobs and their results.
func WithRecorder(r Recorder) Option {
	return func(p *Provider) { p.recorder = r }
}

// WithServiceURL talks to serviceURL instead of the account's API URL.
// It is meant for staging endpoints and tests.
func WithServiceURL(serviceURL string) Option {
	return func(p *Provider) { p.serviceURL = serviceURL }
}

// WithSessionOptions appends options to every API session the provider
// creates.
func WithSessionOptions(opts ...api.SessionOption) Option {
	return func(p *Provider) { p.sessionOpts = append(p.sessionOpts, opts...) }
}

func newLocalID() string {
	return uuid.NewString()
}

// New creates a Provider for cfg.Account. It does not contact the API.
func New(cfg *config.Config, opts ...Option) (*Provider, error) {
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	p := &Provider{
		cfg:        cfg,
		logger:     slog.Default(),
		closeStore: func() error { return nil },
		now:        time.Now,
		sleep:      sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}

	if p.store == nil {
		if cfg.APIKey != "" {
			p.store = credential.NewMemoryStore()
		} else {
			path := cfg.TokenStorePath
			if path == "" {
				path = config.DefaultTokenStorePath()
			}
			store, closeFn, err := credential.OpenStore(cfg.TokenStore, path, p.logger)
			if err != nil {
				return nil, fmt.Errorf("open token store: %w", err)
			}
			p.store = store
			p.closeStore = closeFn
		}
	}

	if err := p.connect(cfg.Account); err != nil {
		_ = p.closeStore()
		return nil, err
	}
	return p, nil
}

// Close releases the token store.
func (p *Provider) Close() error {
	return p.closeStore()
}

// connect builds the API session and credentials for acct and drops the
// discovered backends.
func (p *Provider) connect(acct config.Account) error {
	apiURL, version, err := config.CanonicalizeURL(acct.APIURL)
	if err != nil {
		p.logger.Warn("API URL is not valid, using the default", "url", acct.APIURL, "error", err)
	}
	serviceURL := config.ServiceURL(apiURL, version)
	if p.serviceURL != "" {
		serviceURL = p.serviceURL
	}

	sessionOpts := []api.SessionOption{
		api.WithProxies(acct.Proxies),
		api.WithRetry(p.cfg.Retries, p.cfg.BackoffFactor),
		api.WithRateLimit(p.cfg.RequestsPerSecond),
		api.WithTimeout(p.cfg.Timeout),
		api.WithUserAgent(p.cfg.UserAgent),
		api.WithSessionLogger(p.logger),
	}
	session, err := api.NewSession(serviceURL, append(sessionOpts, p.sessionOpts...)...)
	if err != nil {
		return fmt.Errorf("create API session: %w", err)
	}
	client := api.NewClient(session)

	credOpts := []credential.Option{credential.WithLogger(p.logger)}
	if p.cfg.APIKey != "" {
		credOpts = append(credOpts, credential.WithAPIKey(p.cfg.APIKey))
	}
	if p.prompter != nil {
		credOpts = append(credOpts, credential.WithPrompter(p.prompter))
	}
	creds := credential.New(p.store, client, apiURL, version, acct.UserName, credOpts...)
	session.SetTokenSource(creds)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
	p.creds = creds
	p.backends = nil
	return nil
}

func (p *Provider) apiClient() *api.Client {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.client
}

// Credentials returns the credentials of the active account.
func (p *Provider) Credentials() *credential.Credentials {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.creds
}

// Config returns the configuration the provider was created with.
func (p *Provider) Config() *config.Config {
	return p.cfg
}

// LoadAccount checks that the active account has a user name and a usable
// token, refreshing an expired id token.
func (p *Provider) LoadAccount(ctx context.Context) error {
	creds := p.Credentials()
	if creds.UserName() == "" && p.cfg.APIKey == "" {
		return fmt.Errorf("%w: no user name configured", ErrCredentialsNotFound)
	}
	if !creds.HasToken() {
		return fmt.Errorf("%w: no token stored for %s", ErrCredentialsNotFound, creds.UserName())
	}
	if _, err := creds.AccessToken(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrCredentialsNotFound, err)
	}

	p.mu.Lock()
	p.backends = nil
	p.mu.Unlock()
	return nil
}

// SaveAccount logs acct in, stores its tokens and writes it to the
// account file under name. It becomes the active account.
func (p *Provider) SaveAccount(ctx context.Context, name string, acct config.Account, overwrite bool) error {
	if name == "" {
		name = config.DefaultAccountName
	}
	if acct.UserName == "" {
		return fmt.Errorf("%w: %w", ErrAccountError, credential.ErrNoUserName)
	}

	path := p.cfg.AccountFile()
	af, err := config.LoadOrEmpty(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	if _, err := af.Get(name); err == nil && !overwrite {
		return fmt.Errorf("%w: %w: %s", ErrAccountError, config.ErrAccountExists, name)
	}

	if err := p.connect(acct); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	if err := p.Credentials().Authenticate(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}

	if err := af.Put(name, acct, overwrite); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	if err := config.SaveAccountFile(path, af); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}

	p.cfg.Account = acct
	p.cfg.AccountName = name
	p.logger.Info("account saved", "account", name, "user", acct.UserName, "path", path)
	return nil
}

// DeleteCredentials removes the stored tokens of the active account.
func (p *Provider) DeleteCredentials(_ context.Context) error {
	if err := p.Credentials().RemoveTokens(); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	return nil
}

// DeleteAccount removes name from the account file together with its
// stored tokens.
func (p *Provider) DeleteAccount(_ context.Context, name string) error {
	path := p.cfg.AccountFile()
	af, err := config.LoadAccountFile(path)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	acct, err := af.Get(name)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}

	apiURL, version, _ := config.CanonicalizeURL(acct.APIURL)
	service := credential.ServiceName(apiURL, version, acct.UserName)
	if err := credential.DeleteTokens(p.store, service); err != nil && !errors.Is(err, credential.ErrTokenNotFound) {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}

	if err := af.Delete(name); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	if err := config.SaveAccountFile(path, af); err != nil {
		return fmt.Errorf("%w: %w", ErrAccountError, err)
	}
	return nil
}

// Backends returns the backends of the account, optionally only the one
// called name. The machine list is fetched once and cached until the
// account changes.
func (p *Provider) Backends(ctx context.Context, name string) ([]*Backend, error) {
	p.mu.Lock()
	backends := p.backends
	p.mu.Unlock()

	if backends == nil {
		if !p.Credentials().HasToken() {
			if err := p.LoadAccount(ctx); err != nil {
				return nil, err
			}
		}
		discovered, err := p.discover(ctx)
		if err != nil {
			return nil, err
		}
		p.mu.Lock()
		p.backends = discovered
		p.mu.Unlock()
		backends = discovered
	}

	if name == "" {
		return append([]*Backend(nil), backends...), nil
	}
	var out []*Backend
	for _, b := range backends {
		if b.Name() == name {
			out = append(out, b)
		}
	}
	return out, nil
}

// GetBackend returns the backend called name.
func (p *Provider) GetBackend(ctx context.Context, name string) (*Backend, error) {
	backends, err := p.Backends(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(backends) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrBackendNotFound, name)
	}
	return backends[0], nil
}

func (p *Provider) discover(ctx context.Context) ([]*Backend, error) {
	machines, err := p.apiClient().Machines(ctx)
	if err != nil {
		return nil, fmt.Errorf("list machines: %w", err)
	}
	backends := make([]*Backend, 0, len(machines))
	for _, m := range machines {
		if m.Name == "" {
			continue
		}
		backends = append(backends, &Backend{provider: p, config: newConfiguration(m)})
	}
	p.logger.Debug("backends discovered", "count", len(backends))
	return backends, nil
}
