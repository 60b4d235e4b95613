package credential

import "errors"

var (
	// ErrTokenNotFound is returned by a Store when no value exists for a key.
	ErrTokenNotFound = errors.New("token not found")

	// ErrLoginFailed is returned when the API rejects a password login.
	ErrLoginFailed = errors.New("login failed")

	// ErrRefreshRejected is returned by an Authenticator when the API
	// rejects a refresh token (HTTP 400 or 403).
	ErrRefreshRejected = errors.New("refresh token rejected")

	// ErrNoPassword is returned when a password login is needed and no
	// Prompter is available or the prompt returned nothing.
	ErrNoPassword = errors.New("password required")

	// ErrNoUserName is returned when a login is needed without a user name.
	ErrNoUserName = errors.New("user name required")

	// ErrUnknownStore is returned by OpenStore for an unsupported kind.
	ErrUnknownStore = errors.New("unknown token store")
)
