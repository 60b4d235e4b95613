package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialsNotFound is returned when no user name or token is available.
	ErrCredentialsNotFound = errors.New("credentials not found")

	// ErrAccountError is returned when an account cannot be saved or deleted.
	ErrAccountError = errors.New("account error")

	// ErrBackendNotFound is returned when no backend has the requested name.
	ErrBackendNotFound = errors.New("backend not found")

	// ErrJobNotFound is returned when the API does not know a job id.
	ErrJobNotFound = errors.New("job not found")

	// ErrInvalidOption is returned for an option value a backend cannot use.
	ErrInvalidOption = errors.New("invalid backend option")

	// ErrPulseNotSupported is returned when a pulse schedule is passed to Run.
	ErrPulseNotSupported = errors.New("pulse jobs are not accepted")

	// ErrNoCircuits is returned by Run without circuits.
	ErrNoCircuits = errors.New("no circuits to run")

	// ErrAlreadySubmitted is returned when Submit is called twice.
	ErrAlreadySubmitted = errors.New("job already submitted")

	// ErrTimeout is returned when a job does not finish in time.
	ErrTimeout = errors.New("timed out waiting for job")
)

// JobError reports a job-level failure.
type JobError struct {
	// JobID is the API job id, or the local id when none exists yet.
	JobID   string
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.JobID == "" {
		return "job error: " + e.Message
	}
	return fmt.Sprintf("job %s: %s", e.JobID, e.Message)
}

func (e *JobError) Unwrap() error {
	return e.Err
}
