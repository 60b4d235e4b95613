package api

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrEmptyID is returned when a job id or machine name is empty.
	ErrEmptyID = errors.New("empty id")

	// ErrNoWebsocket is returned by StreamStatus for a response without
	// websocket credentials.
	ErrNoWebsocket = errors.New("job status has no websocket information")
)

// RequestError describes a failed HTTP exchange. Message never contains
// the access token that was sent with the request.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Message    string
	Body       []byte
	Err        error
}

// Error implements error.
func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %s", e.Method, e.URL, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.StatusCode, http.StatusText(e.StatusCode), e.Message)
}

// Unwrap returns the transport error, if any.
func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode returns the HTTP status of err when it is a *RequestError,
// and 0 otherwise.
func StatusCode(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}
