package media

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/containerd/errdefs"
)

// JobState tracks an asynchronous generation job.
type JobState string

const (
	// JobSubmitted means the job is queued but not yet running.
	JobSubmitted JobState = "submitted"
	// JobInProgress means the backend is still generating.
	JobInProgress JobState = "in_progress"
	// JobCompleted means output is available at JobStatus.URL.
	JobCompleted JobState = "completed"
	// JobFailed means the backend reported a permanent failure.
	JobFailed JobState = "failed"
	// JobTimedOut means the wait budget elapsed before completion.
	JobTimedOut JobState = "timed_out"
)

// JobStatus is one observation of a generation job.
type JobStatus struct {
	State JobState `json:"state"`
	URL   string   `json:"url,omitempty"`
	Error string   `json:"error,omitempty"`
}

// JobClient fetches the current status of a generation job.
type JobClient interface {
	Status(ctx context.Context, jobID string) (JobStatus, error)
}

// Poller waits for asynchronous generation jobs. The poll loop is an
// explicit state machine with a bounded overall wait budget, exposed to
// callers as a single blocking call with a deadline. There is no cancel
// operation: an abandoned job keeps running server-side.
type Poller struct {
	client   JobClient
	interval time.Duration
	maxWait  time.Duration
}

// NewPoller creates a job poller. interval is the delay between status
// checks and maxWait the overall budget before a job is treated as
// timed out.
func NewPoller(client JobClient, interval, maxWait time.Duration) *Poller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	return &Poller{client: client, interval: interval, maxWait: maxWait}
}

// Wait blocks until the job completes, fails, or the wait budget
// elapses, returning the durable output URL on completion. Poll
// intervals back off geometrically up to four times the base interval.
func (p *Poller) Wait(ctx context.Context, jobID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, p.maxWait)
	defer cancel()

	state := JobSubmitted
	delay := p.interval
	maxDelay := 4 * p.interval

	for {
		status, err := p.client.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				return "", &JobError{JobID: jobID, State: JobTimedOut, Err: fmt.Errorf("wait budget exceeded in state %s", state)}
			}
			return "", &JobError{JobID: jobID, State: state, Err: err}
		}

		switch status.State {
		case JobCompleted:
			if status.URL == "" {
				return "", &JobError{JobID: jobID, State: JobFailed, Err: fmt.Errorf("completed without output URL")}
			}
			return status.URL, nil
		case JobFailed:
			return "", &JobError{JobID: jobID, State: JobFailed, Err: fmt.Errorf("backend failure: %s", status.Error)}
		case JobSubmitted, JobInProgress:
			state = status.State
		default:
			return "", &JobError{JobID: jobID, State: state, Err: fmt.Errorf("unknown job state %q", status.State)}
		}

		select {
		case <-ctx.Done():
			return "", &JobError{JobID: jobID, State: JobTimedOut, Err: fmt.Errorf("wait budget exceeded in state %s", state)}
		case <-time.After(delay):
		}

		if delay *= 2; delay > maxDelay {
			delay = maxDelay
		}
	}
}

// JobError reports a generation job that did not complete.
type JobError struct {
	JobID string
	State JobState
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s): %v", e.JobID, e.State, e.Err)
}

func (e *JobError) Unwrap() error {
	return errdefs.ErrUnavailable
}

// HTTPJobClient fetches job status from the media service.
type HTTPJobClient struct {
	baseURL string
	client  *http.Client
}

// NewHTTPJobClient creates a job status client against the media service.
func NewHTTPJobClient(baseURL string) *HTTPJobClient {
	return &HTTPJobClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Status fetches the current state of one job.
func (c *HTTPJobClient) Status(ctx context.Context, jobID string) (JobStatus, error) {
	endpoint := fmt.Sprintf("%s/jobs/%s", c.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return JobStatus{}, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return JobStatus{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return JobStatus{}, fmt.Errorf("media service returned %d", resp.StatusCode)
	}

	var status JobStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return JobStatus{}, fmt.Errorf("decode job status: %w", err)
	}
	return status, nil
}
