package provider

import (
	"fmt"
	"strings"

	"github.com/nao1215/qprovider/internal/api"
)

// JobStatus is the state of a Job.
type JobStatus int

// Job states. DONE, CANCELLED and ERROR are final.
const (
	JobStatusInitializing JobStatus = iota
	JobStatusQueued
	JobStatusValidating
	JobStatusRunning
	JobStatusCancelled
	JobStatusDone
	JobStatusError
)

var jobStatusNames = map[JobStatus]string{
	JobStatusInitializing: "INITIALIZING",
	JobStatusQueued:       "QUEUED",
	JobStatusValidating:   "VALIDATING",
	JobStatusRunning:      "RUNNING",
	JobStatusCancelled:    "CANCELLED",
	JobStatusDone:         "DONE",
	JobStatusError:        "ERROR",
}

func (s JobStatus) String() string {
	if name, ok := jobStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("JobStatus(%d)", int(s))
}

// IsFinal reports whether s can no longer change.
func (s JobStatus) IsFinal() bool {
	return s == JobStatusDone || s == JobStatusCancelled || s == JobStatusError
}

// ParseJobStatus parses the String form of a status, case-insensitively.
func ParseJobStatus(name string) (JobStatus, error) {
	for s, n := range jobStatusNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return JobStatusInitializing, fmt.Errorf("unknown job status %q", name)
}

// fromAPIStatus maps an API job status onto a JobStatus. A job being
// cancelled is still running until the API reports it canceled.
func fromAPIStatus(status string) JobStatus {
	switch status {
	case api.StatusQueued:
		return JobStatusQueued
	case api.StatusRunning, api.StatusCanceling:
		return JobStatusRunning
	case api.StatusCompleted:
		return JobStatusDone
	case api.StatusCanceled:
		return JobStatusCancelled
	case api.StatusFailed:
		return JobStatusError
	default:
		return JobStatusInitializing
	}
}

// aggregateStatus folds the statuses of all API jobs of a Job into one.
// Any failure wins, then any unfinished job, then cancellation. A missing
// status is a failure.
func aggregateStatus(statuses []string) JobStatus {
	if len(statuses) == 0 {
		return JobStatusInitializing
	}

	var cancelled, running, queued bool
	for _, st := range statuses {
		if st == "" {
			return JobStatusError
		}
		switch fromAPIStatus(st) {
		case JobStatusError:
			return JobStatusError
		case JobStatusCancelled:
			cancelled = true
		case JobStatusRunning:
			running = true
		case JobStatusQueued, JobStatusInitializing:
			queued = true
		}
	}

	switch {
	case running:
		return JobStatusRunning
	case queued:
		return JobStatusQueued
	case cancelled:
		return JobStatusCancelled
	default:
		return JobStatusDone
	}
}
