package config

import (
	"net/http"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
)

// Default configuration values.
const (
	// DefaultAPIURL is the production machine API host.
	DefaultAPIURL = "https://qapi.quantinuum.com"

	// DefaultAPIVersion is the REST version segment appended to the API URL.
	DefaultAPIVersion = "v1"

	// DefaultTimeout is the per-request HTTP timeout. Job waits use
	// DefaultResultTimeout instead.
	DefaultTimeout = 60 * time.Second

	// DefaultRetries is the number of retries for a request that failed with
	// a retryable status code.
	DefaultRetries = 5

	// DefaultBackoffFactor is the first retry delay. Each following retry
	// doubles it.
	DefaultBackoffFactor = 500 * time.Millisecond

	// DefaultRequestsPerSecond throttles calls made by a single session.
	// Job polling across many ids would otherwise hammer the API.
	DefaultRequestsPerSecond = 10

	// DefaultShots is used when a run does not request a shot count.
	DefaultShots = 1024

	// DefaultPriority is the queue priority sent with submitted jobs.
	DefaultPriority = "normal"

	// DefaultResultTimeout bounds how long Result waits for a job.
	DefaultResultTimeout = 300 * time.Second

	// DefaultMaxPollInterval caps the growing delay between status polls.
	DefaultMaxPollInterval = 10 * time.Second

	// DefaultBatchSize is the number of API jobs waited on concurrently.
	DefaultBatchSize = 4

	// DefaultTokenStore selects the keyring and falls back to the file store.
	DefaultTokenStore = TokenStoreAuto

	// ClientApplication is sent in the X-Qx-Client-Application header.
	ClientApplication = "qprovider"

	// AppName is the application name used for XDG directory paths.
	AppName = "qprovider"

	// DefaultUserAgent identifies qprovider in HTTP requests.
	DefaultUserAgent = "qprovider/1.0 (+https://github.com/nao1215/qprovider)"
)

// Token store kinds accepted by Config.TokenStore.
const (
	TokenStoreAuto    = "auto"
	TokenStoreKeyring = "keyring"
	TokenStoreFile    = "file"
)

// RetryStatusCodes are the HTTP statuses that are retried with backoff.
var RetryStatusCodes = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Config holds all runtime options for qprovider.
// It is populated from defaults, the account file, environment variables
// and CLI flags, in that order of increasing precedence.
type Config struct {
	// Account is the active account (user name, API URL and proxies).
	Account Account

	// AccountName is the key of Account in the account file.
	AccountName string

	// APIKey, when set, is used as the id token and bypasses the token store.
	APIKey string

	// AccountFilePath is the path of the saved-account file.
	// Empty means the XDG default.
	AccountFilePath string

	// TokenStore selects where id/refresh tokens are kept:
	// "keyring", "file" or "auto".
	TokenStore string

	// TokenStorePath is the bbolt file used by the file token store.
	TokenStorePath string

	// Timeout is the per-request HTTP timeout.
	Timeout time.Duration

	// Retries is the number of retries on 5xx gateway errors.
	Retries int

	// BackoffFactor is the initial retry delay.
	BackoffFactor time.Duration

	// RequestsPerSecond throttles a session. Zero disables throttling.
	RequestsPerSecond float64

	// Shots and Priority are the run defaults.
	Shots    int
	Priority string

	// ResultTimeout bounds Job.Result.
	ResultTimeout time.Duration

	// MaxPollInterval caps the polling delay.
	MaxPollInterval time.Duration

	// BatchSize is the number of API jobs waited on concurrently.
	BatchSize int

	// HistoryDir is the directory of the SQLite job history.
	// Empty disables history.
	HistoryDir string

	// Verbose enables debug logging.
	Verbose bool

	// UserAgent is sent with every request.
	UserAgent string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		Account: Account{
			APIURL: DefaultAPIURL,
		},
		TokenStore:        DefaultTokenStore,
		Timeout:           DefaultTimeout,
		Retries:           DefaultRetries,
		BackoffFactor:     DefaultBackoffFactor,
		RequestsPerSecond: DefaultRequestsPerSecond,
		Shots:             DefaultShots,
		Priority:          DefaultPriority,
		ResultTimeout:     DefaultResultTimeout,
		MaxPollInterval:   DefaultMaxPollInterval,
		BatchSize:         DefaultBatchSize,
		UserAgent:         DefaultUserAgent,
	}
}

// XDGDataDir returns the XDG data directory for qprovider.
// On Linux: ~/.local/share/qprovider
func XDGDataDir() string {
	return filepath.Join(xdg.DataHome, AppName)
}

// XDGConfigDir returns the XDG config directory for qprovider.
// On Linux: ~/.config/qprovider
func XDGConfigDir() string {
	return filepath.Join(xdg.ConfigHome, AppName)
}

// DefaultAccountFilePath is where accounts are saved unless overridden.
func DefaultAccountFilePath() string {
	return filepath.Join(XDGConfigDir(), DefaultAccountFileName)
}

// DefaultTokenStorePath is the bbolt file of the file token store.
func DefaultTokenStorePath() string {
	return filepath.Join(XDGDataDir(), "tokens.db")
}

// DefaultHistoryDir is the directory of the job history database.
func DefaultHistoryDir() string {
	return XDGDataDir()
}

// AccountFile returns the configured account file path or the default.
func (c *Config) AccountFile() string {
	if c.AccountFilePath != "" {
		return c.AccountFilePath
	}
	return DefaultAccountFilePath()
}

// Validate checks if the configuration is valid.
// It returns the first problem found.
func (c *Config) Validate() error {
	if c.Timeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.Retries < 0 {
		return ErrInvalidRetries
	}

	if c.BackoffFactor < 0 {
		return ErrInvalidBackoff
	}

	if c.Shots <= 0 {
		return ErrInvalidShots
	}

	if c.ResultTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if c.BatchSize <= 0 {
		return ErrInvalidBatchSize
	}

	switch c.TokenStore {
	case TokenStoreAuto, TokenStoreKeyring, TokenStoreFile:
	default:
		return ErrInvalidTokenStore
	}

	return c.Account.Proxies.Validate()
}
