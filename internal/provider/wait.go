package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/nao1215/qprovider/internal/api"
	"github.com/nao1215/qprovider/internal/config"
)

// initialPollDelay is the first delay between status polls.
const initialPollDelay = time.Second

// pollGrowth is the factor applied to the delay after every poll.
const pollGrowth = 1.5

// settled reports whether status ends a wait. A reply without a status
// is a failure.
func settled(status string) bool {
	return status == "" || api.IsFinalStatus(status)
}

// jobStatus fetches the status of API job id. A 404 is reported as
// ErrJobNotFound.
func jobStatus(ctx context.Context, client *api.Client, id string) (*api.JobResponse, error) {
	resp, err := client.JobStatus(ctx, id)
	if api.IsNotFound(err) {
		return nil, fmt.Errorf("%w: %s: %w", ErrJobNotFound, id, err)
	}
	return resp, err
}

// waitFor blocks until the API job id is final. It subscribes over the
// websocket when the status reply offers credentials for it and polls
// otherwise, or when the websocket fails.
func (p *Provider) waitFor(ctx context.Context, client *api.Client, id string) (*api.JobResponse, error) {
	resp, err := jobStatus(ctx, client, id)
	if err != nil {
		return nil, err
	}
	if settled(resp.Status) {
		return resp, nil
	}

	if resp.Websocket != nil {
		pushed, err := client.StreamStatus(ctx, resp.Websocket, p.remaining(ctx))
		switch {
		case err == nil && settled(pushed.Status):
			if pushed.Status == api.StatusCompleted && len(pushed.Results) == 0 {
				// The push carried no results; fetch the full document.
				return jobStatus(ctx, client, id)
			}
			return pushed, nil
		case err == nil:
			p.logger.Debug("websocket update is not final, polling", "job", id, "status", pushed.Status)
			resp = pushed
		case ctx.Err() != nil:
			return nil, err
		default:
			p.logger.Warn("websocket unavailable, falling back to polling", "job", id, "error", err)
		}
	} else {
		p.logger.Debug("websocket not offered, polling job status", "job", id)
	}

	return p.poll(ctx, id, resp, func(ctx context.Context) (*api.JobResponse, error) {
		return jobStatus(ctx, client, id)
	})
}

// poll re-fetches the job until it is final. The delay starts at one
// second, grows by half each time and never exceeds the poll cap or the
// time left.
func (p *Provider) poll(ctx context.Context, id string, resp *api.JobResponse, fetch func(context.Context) (*api.JobResponse, error)) (*api.JobResponse, error) {
	maxDelay := p.cfg.MaxPollInterval
	if maxDelay <= 0 {
		maxDelay = config.DefaultMaxPollInterval
	}
	residual := p.remaining(ctx)
	delay := min(initialPollDelay, residual)

	for !settled(resp.Status) {
		if residual <= 0 {
			return nil, fmt.Errorf("%w: job %s is still %s", ErrTimeout, id, resp.Status)
		}
		if err := p.sleep(ctx, delay); err != nil {
			return nil, err
		}

		next, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		resp = next

		residual -= delay
		delay = min(time.Duration(float64(delay)*pollGrowth), maxDelay, residual)
	}
	return resp, nil
}

// remaining returns the time left before ctx's deadline, or the result
// timeout when ctx has none.
func (p *Provider) remaining(ctx context.Context) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return p.cfg.ResultTimeout
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
