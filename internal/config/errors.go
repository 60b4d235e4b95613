package config

import "errors"

// Configuration validation errors.
// These errors are returned by Config.Validate() so callers can use
// errors.Is() while still getting a readable message.
var (
	// ErrInvalidTimeout is returned when a request or result timeout is not positive.
	ErrInvalidTimeout = errors.New("invalid timeout: must be positive")

	// ErrInvalidRetries is returned when the retry count is negative.
	ErrInvalidRetries = errors.New("invalid retries: must be non-negative")

	// ErrInvalidBackoff is returned when the backoff factor is negative.
	ErrInvalidBackoff = errors.New("invalid backoff factor: must be non-negative")

	// ErrInvalidShots is returned when the default shot count is not positive.
	ErrInvalidShots = errors.New("invalid shots: must be positive")

	// ErrInvalidBatchSize is returned when the batch size is not positive.
	ErrInvalidBatchSize = errors.New("invalid batch size: must be positive")

	// ErrInvalidTokenStore is returned for an unknown token store kind.
	ErrInvalidTokenStore = errors.New("invalid token store: must be auto, keyring or file")

	// ErrInvalidProxy is returned when a proxy URL cannot be parsed or uses
	// an unsupported scheme.
	ErrInvalidProxy = errors.New("invalid proxy: expected http, https or socks5 URL")

	// ErrInvalidURL is returned by CanonicalizeURL when the API URL does not
	// have the expected shape. The default URL is returned alongside it.
	ErrInvalidURL = errors.New("API URL did not conform to expected form")
)

// Account file errors.
var (
	// ErrConfigNotFound is returned when the account file does not exist.
	ErrConfigNotFound = errors.New("account file not found")

	// ErrAccountExists is returned when saving over an existing account
	// without overwrite.
	ErrAccountExists = errors.New("account already exists (use overwrite to replace it)")

	// ErrAccountNotFound is returned when a named account is not in the file.
	ErrAccountNotFound = errors.New("account not found")

	// ErrUnsupportedFormat is returned for account files that are neither
	// YAML nor TOML.
	ErrUnsupportedFormat = errors.New("unsupported account file format: use .yaml, .yml or .toml")
)
