package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/qprovider/internal/api"
	"github.com/nao1215/qprovider/internal/history"
)

// unknownErrorMessage is reported for a failed job without an API message.
const unknownErrorMessage = "An unknown error occurred."

// Job groups the API jobs created for the circuits of one Run.
type Job struct {
	backend  *Backend
	localID  string
	circuits []Circuit
	opts     Options

	// persist is set for jobs created by Run or ResumeJob; only those are
	// written to the history.
	persist bool
	saved   bool

	mu        sync.Mutex
	status    JobStatus
	errMsg    string
	jobIDs    []string
	responses []*api.JobResponse
	created   time.Time
	completed time.Time
	result    *Result

	recordMu sync.Mutex
}

func (b *Backend) newJob() *Job {
	return &Job{
		backend: b,
		localID: newLocalID(),
		status:  JobStatusInitializing,
		created: b.provider.now().UTC(),
	}
}

// ID returns the id of the last API job, or the local id before submission.
func (j *Job) ID() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if n := len(j.jobIDs); n > 0 {
		return j.jobIDs[n-1]
	}
	return j.localID
}

// LocalID returns the id under which the job is kept in the history.
func (j *Job) LocalID() string {
	return j.localID
}

// Backend returns the backend the job runs on.
func (j *Job) Backend() *Backend {
	return j.backend
}

// Options returns the resolved run options.
func (j *Job) Options() Options {
	return j.opts
}

// JobIDs returns the API job ids in submission order.
func (j *Job) JobIDs() []string {
	j.mu.Lock()
	defer j.mu.Unlock()
	return slices.Clone(j.jobIDs)
}

// CreationDate returns the submit date reported by the API for the last
// circuit, or the time the Job was created.
func (j *Job) CreationDate() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.created
}

// ErrorMessage returns "" unless the job is in ERROR.
func (j *Job) ErrorMessage() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status != JobStatusError {
		return ""
	}
	if j.errMsg == "" {
		return unknownErrorMessage
	}
	return j.errMsg
}

// Submit sends one API job per circuit. If the API answers a submission
// with an error the job moves to ERROR and the remaining circuits are not
// sent. Otherwise the last answer supplies the status, id and creation date.
func (j *Job) Submit(ctx context.Context) error {
	j.mu.Lock()
	if len(j.jobIDs) > 0 || j.status != JobStatusInitializing {
		j.mu.Unlock()
		return ErrAlreadySubmitted
	}
	j.persist = true
	j.mu.Unlock()

	client := j.backend.provider.apiClient()
	logger := j.backend.provider.logger

	var (
		ids       []string
		responses []*api.JobResponse
		last      *api.JobResponse
	)
	for i, c := range j.circuits {
		name := c.Name
		if name == "" {
			name = j.opts.Name
		}
		resp, err := client.SubmitJob(ctx, api.JobRequest{
			Machine:  j.backend.Name(),
			Count:    j.opts.Shots,
			Program:  c.QASM,
			Priority: j.opts.Priority,
			Name:     name,
		})
		if err != nil {
			j.fail(ids, responses, err.Error())
			j.record(ctx)
			return &JobError{JobID: j.localID, Message: fmt.Sprintf("submit circuit %d", i), Err: err}
		}
		if resp.HasError() {
			msg := resp.ErrorMessage()
			j.fail(ids, responses, msg)
			j.record(ctx)
			return &JobError{JobID: j.localID, Message: msg}
		}
		logger.Debug("circuit submitted", "backend", j.backend.Name(), "job", resp.Job, "status", resp.Status)
		ids = append(ids, resp.Job)
		responses = append(responses, resp)
		last = resp
	}

	j.mu.Lock()
	j.jobIDs = ids
	j.responses = responses
	if last != nil {
		j.status = fromAPIStatus(last.Status)
		if t, ok := parseAPITime(last.SubmitDate); ok {
			j.created = t
		}
	}
	j.mu.Unlock()

	j.record(ctx)
	return nil
}

func (j *Job) fail(ids []string, responses []*api.JobResponse, msg string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.jobIDs = ids
	j.responses = responses
	j.status = JobStatusError
	j.errMsg = msg
	j.completed = j.backend.provider.now().UTC()
}

// snapshot returns the ids and last seen responses, aligned by index.
func (j *Job) snapshot() ([]string, []*api.JobResponse) {
	j.mu.Lock()
	defer j.mu.Unlock()
	ids := slices.Clone(j.jobIDs)
	responses := make([]*api.JobResponse, len(ids))
	copy(responses, j.responses)
	return ids, responses
}

// Status queries every unfinished API job once and returns the combined
// status. It does not wait. ERROR is sticky.
func (j *Job) Status(ctx context.Context) (JobStatus, error) {
	j.mu.Lock()
	if j.status == JobStatusError || len(j.jobIDs) == 0 {
		st := j.status
		j.mu.Unlock()
		return st, nil
	}
	j.mu.Unlock()

	ids, responses := j.snapshot()
	client := j.backend.provider.apiClient()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(j.backend.provider.cfg.BatchSize)
	for i, id := range ids {
		if responses[i] != nil && api.IsFinalStatus(responses[i].Status) {
			continue
		}
		g.Go(func() error {
			resp, err := jobStatus(gctx, client, id)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return JobStatusInitializing, &JobError{JobID: j.ID(), Message: "status query failed", Err: err}
	}

	st := j.update(responses)
	j.record(ctx)
	return st, nil
}

// update stores responses and derives the status from them.
func (j *Job) update(responses []*api.JobResponse) JobStatus {
	statuses := make([]string, 0, len(responses))
	for _, r := range responses {
		if r != nil {
			statuses = append(statuses, r.Status)
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	j.responses = responses
	if j.status == JobStatusError {
		return j.status
	}
	j.status = aggregateStatus(statuses)
	if j.status == JobStatusError {
		j.errMsg = firstErrorMessage(responses)
	}
	if j.status.IsFinal() && j.completed.IsZero() {
		j.completed = j.backend.provider.now().UTC()
	}
	return j.status
}

func firstErrorMessage(responses []*api.JobResponse) string {
	for _, r := range responses {
		if r != nil && r.Status == api.StatusFailed && r.HasError() {
			return r.ErrorMessage()
		}
	}
	return ""
}

// Result waits up to timeout for every API job and returns the combined
// result. A zero timeout uses the configured result timeout. It fails
// with a *JobError unless the job ends DONE or CANCELLED.
func (j *Job) Result(ctx context.Context, timeout time.Duration) (*Result, error) {
	j.mu.Lock()
	if j.result != nil {
		r := j.result
		j.mu.Unlock()
		return r, nil
	}
	if j.status == JobStatusError {
		msg := j.errMsg
		j.mu.Unlock()
		if msg == "" {
			msg = unknownErrorMessage
		}
		return nil, &JobError{JobID: j.ID(), Message: msg}
	}
	j.mu.Unlock()

	ids, responses := j.snapshot()
	if len(ids) == 0 {
		return nil, &JobError{JobID: j.localID, Message: "job has not been submitted"}
	}

	p := j.backend.provider
	if timeout <= 0 {
		timeout = p.cfg.ResultTimeout
	}
	wctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client := p.apiClient()
	g, gctx := errgroup.WithContext(wctx)
	g.SetLimit(p.cfg.BatchSize)
	for i, id := range ids {
		if responses[i] != nil && api.IsFinalStatus(responses[i].Status) {
			continue
		}
		g.Go(func() error {
			resp, err := p.waitFor(gctx, client, id)
			if err != nil {
				return err
			}
			responses[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil && !errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		return nil, &JobError{JobID: j.ID(), Message: "waiting for result", Err: err}
	}

	result, err := j.processResults(ctx, ids, responses)
	if err != nil {
		return nil, err
	}

	st := j.update(responses)
	result.Success = st == JobStatusDone
	result.Status = st.String()
	if st == JobStatusDone || st == JobStatusCancelled {
		j.mu.Lock()
		j.result = result
		j.mu.Unlock()
	}
	j.record(ctx)

	if st != JobStatusDone && st != JobStatusCancelled {
		msg := fmt.Sprintf("invalid job state: the job should be DONE or CANCELLED but it is %s", st)
		if em := j.ErrorMessage(); em != "" {
			msg += ": " + em
		}
		return nil, &JobError{JobID: j.ID(), Message: msg}
	}
	if len(result.Results) == 0 {
		return nil, &JobError{JobID: j.ID(), Message: "server did not return result"}
	}
	return result, nil
}

// processResults converts final API responses into a Result. A response
// without a status counts as failed.
func (j *Job) processResults(ctx context.Context, ids []string, responses []*api.JobResponse) (*Result, error) {
	result := &Result{
		BackendName: j.backend.Name(),
		JobID:       ids[len(ids)-1],
		Results:     make([]ExperimentResult, 0, len(responses)),
	}

	for i, resp := range responses {
		status := resp.Status
		if status == "" {
			status = api.StatusFailed
		}
		counts, measured, err := countsFromRegisters(resp.Results)
		if err != nil {
			return nil, &JobError{JobID: ids[i], Message: "decode results", Err: err}
		}
		shots := j.opts.Shots
		if shots == 0 {
			shots = measured
		}
		header := map[string]any{}
		if i < len(j.circuits) && j.circuits[i].Metadata != nil {
			header = maps.Clone(j.circuits[i].Metadata)
		}
		result.Results = append(result.Results, ExperimentResult{
			JobID:     ids[i],
			Status:    status,
			Success:   status == api.StatusCompleted,
			Shots:     shots,
			Counts:    counts,
			Header:    header,
			Registers: resp.Results,
		})
	}

	st, err := j.backend.Status(ctx)
	if err != nil {
		j.backend.provider.logger.Warn("backend version unavailable", "backend", j.backend.Name(), "error", err)
		result.BackendVersion = "0.0.0"
	} else {
		result.BackendVersion = st.BackendVersion
	}
	return result, nil
}

// Cancel asks the API to cancel every API job that has not finished.
func (j *Job) Cancel(ctx context.Context) error {
	ids, responses := j.snapshot()
	if len(ids) == 0 {
		return &JobError{JobID: j.localID, Message: "job has not been submitted"}
	}

	client := j.backend.provider.apiClient()
	var errs []error
	for i, id := range ids {
		if responses[i] != nil && api.IsFinalStatus(responses[i].Status) {
			continue
		}
		resp, err := client.CancelJob(ctx, id)
		if err != nil {
			errs = append(errs, &JobError{JobID: id, Message: "cancel failed", Err: err})
			continue
		}
		responses[i] = resp
	}

	j.update(responses)
	j.record(ctx)
	return errors.Join(errs...)
}

// record writes the job to the history, when one is configured. Failures
// are logged; they never fail the job.
func (j *Job) record(ctx context.Context) {
	p := j.backend.provider
	if p.recorder == nil {
		return
	}

	j.mu.Lock()
	persist := j.persist
	j.mu.Unlock()
	if !persist {
		return
	}

	j.recordMu.Lock()
	defer j.recordMu.Unlock()

	hj := j.historyJob()

	var err error
	if j.saved {
		err = p.recorder.UpdateJob(ctx, hj)
	} else {
		err = p.recorder.SaveJob(ctx, hj)
		if err == nil {
			j.saved = true
		}
	}
	if err != nil {
		p.logger.Warn("failed to record job history", "job", j.localID, "error", err)
	}
}

func (j *Job) historyJob() *history.Job {
	j.mu.Lock()
	defer j.mu.Unlock()

	hj := &history.Job{
		LocalID:     j.localID,
		Name:        j.opts.Name,
		Backend:     j.backend.Name(),
		Status:      j.status.String(),
		Shots:       j.opts.Shots,
		Priority:    j.opts.Priority,
		SubmittedAt: j.created,
		CompletedAt: j.completed,
	}
	if j.status == JobStatusError {
		hj.Error = j.errMsg
		if hj.Error == "" {
			hj.Error = unknownErrorMessage
		}
	}

	for i, id := range j.jobIDs {
		a := history.APIJob{Position: i, ID: id}
		if i < len(j.responses) && j.responses[i] != nil {
			resp := j.responses[i]
			a.Status = resp.Status
			if len(resp.Results) > 0 {
				if counts, _, err := countsFromRegisters(resp.Results); err == nil {
					a.Counts = counts
				}
				if raw, err := json.Marshal(resp.Results); err == nil {
					a.Registers = raw
				}
			}
		}
		hj.APIJobs = append(hj.APIJobs, a)
	}
	return hj
}

// apiTimeFormats are the submit-date layouts seen from the API.
var apiTimeFormats = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05.999999",
}

func parseAPITime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range apiTimeFormats {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
