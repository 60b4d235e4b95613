// Package log builds the slog loggers used by qprovider.
//
// Every logger returned here is wrapped in a SecureHandler, which masks
// attributes that look like credentials before they reach the output.
// The machine API hands out JWT id tokens and long-lived refresh tokens,
// and both routinely pass through request code that logs at debug level:
//
//	logger := log.NewSecureLogger(os.Stderr, verbose)
//	logger.Debug("login succeeded", "id-token", pair.IDToken) // id-token=***REDACTED***
//
// Redact is the companion for free text such as error messages, where an
// attribute key is not available to decide what is secret.
package log
