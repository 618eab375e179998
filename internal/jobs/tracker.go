// Package jobs drives an asynchronous analysis job to its terminal outcome.
//
// A tracker first follows the job's server-sent progress stream. Any
// transport failure on the stream retires it for good and the tracker falls
// back to polling the job status endpoint at a fixed interval, up to a hard
// attempt limit. Progress messages are advisory; the first terminal message
// decides the outcome.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/gpsanalyzer/telemetry.report/internal/backend"
	"github.com/gpsanalyzer/telemetry.report/internal/monitoring"
	"github.com/gpsanalyzer/telemetry.report/internal/report"
	"github.com/gpsanalyzer/telemetry.report/internal/timeutil"
)

const (
	DefaultPollInterval = time.Second
	DefaultMaxAttempts  = 120

	// UnknownFailure is reported for a failed job without a message.
	UnknownFailure = "Unknown error"
)

var (
	// ErrJobTimeout means polling gave up before the job finished. It is
	// distinct from a failure reported by the backend.
	ErrJobTimeout = errors.New("jobs: processing timeout")

	// ErrNoResult means the job completed without inline data or an
	// analysis id to fetch.
	ErrNoResult = errors.New("jobs: completed job carries no result")

	errStreamEnded = errors.New("progress stream ended before the job finished")
)

var logf = monitoring.Component("jobs")

// FailedError is a processing failure reported by the backend.
type FailedError struct {
	JobID  string
	Reason string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// Transport is the channel a run is currently reading job status from.
type Transport string

const (
	TransportStream  Transport = "stream"
	TransportPolling Transport = "polling"
	TransportDone    Transport = "done"
)

// Progress is one advisory update.
type Progress struct {
	JobID     string
	Percent   float64
	Status    string
	Transport Transport
}

// Outcome is a successfully completed job.
type Outcome struct {
	JobID      string
	AnalysisID string
	Result     *report.AnalysisResult
	// Transport that delivered the terminal message.
	Transport Transport
}

// Options configures a Tracker. Zero values take the defaults.
type Options struct {
	PollInterval time.Duration
	MaxAttempts  int
	Clock        timeutil.Clock
	OnProgress   func(Progress)
}

// Tracker follows jobs on one backend. A Tracker may run several jobs
// concurrently; each Track call owns its own transport.
type Tracker struct {
	client      *backend.Client
	clock       timeutil.Clock
	interval    time.Duration
	maxAttempts int
	onProgress  func(Progress)
}

// NewTracker returns a tracker using client.
func NewTracker(client *backend.Client, opts Options) *Tracker {
	t := &Tracker{
		client:      client,
		clock:       opts.Clock,
		interval:    opts.PollInterval,
		maxAttempts: opts.MaxAttempts,
		onProgress:  opts.OnProgress,
	}
	if t.clock == nil {
		t.clock = timeutil.RealClock{}
	}
	if t.interval <= 0 {
		t.interval = DefaultPollInterval
	}
	if t.maxAttempts <= 0 {
		t.maxAttempts = DefaultMaxAttempts
	}
	return t
}

type run struct {
	*Tracker
	jobID     string
	id        string
	transport Transport
}

// Track blocks until the job reaches a terminal state, ctx ends, or polling
// times out. Failures reported by the backend are returned as *FailedError;
// a polling timeout as ErrJobTimeout.
func (t *Tracker) Track(ctx context.Context, jobID string) (*Outcome, error) {
	r := &run{Tracker: t, jobID: jobID, id: uuid.NewString(), transport: TransportStream}
	logf("tracking job %s (run %s)", jobID, r.id)

	final, err := r.stream(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logf("job %s: progress stream failed, falling back to polling: %v", jobID, err)
		r.transport = TransportPolling
		final, err = r.poll(ctx)
		if err != nil {
			r.transport = TransportDone
			return nil, err
		}
	}
	delivered := r.transport
	r.transport = TransportDone
	return r.finish(ctx, final, delivered)
}

// stream reads the progress stream until a terminal message. Any returned
// error is a transport failure.
func (r *run) stream(ctx context.Context) (*backend.JobStatus, error) {
	s, err := r.client.StreamProgress(ctx, r.jobID)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	for {
		st, err := s.Next()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errStreamEnded
			}
			return nil, err
		}
		r.report(st)
		if terminal(st) {
			return st, nil
		}
	}
}

// poll queries the status endpoint until a terminal message or the attempt
// limit. Transport errors consume an attempt.
func (r *run) poll(ctx context.Context) (*backend.JobStatus, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		st, err := r.client.JobStatus(ctx, r.jobID)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if err != nil {
			var apiErr *backend.APIError
			if errors.As(err, &apiErr) && apiErr.Message != "" {
				return &backend.JobStatus{Status: backend.StatusFailed, Error: apiErr.Message}, nil
			}
			logf("job %s: poll %d/%d failed: %v", r.jobID, attempt, r.maxAttempts, err)
		} else {
			r.report(st)
			if terminal(st) {
				return st, nil
			}
		}
		if attempt == r.maxAttempts {
			break
		}
		if err := r.clock.Sleep(ctx, r.interval); err != nil {
			return nil, err
		}
	}
	logf("job %s: no terminal status after %d polls", r.jobID, r.maxAttempts)
	return nil, ErrJobTimeout
}

func (r *run) report(st *backend.JobStatus) {
	if r.onProgress == nil {
		return
	}
	r.onProgress(Progress{
		JobID:     r.jobID,
		Percent:   st.Progress,
		Status:    st.Status,
		Transport: r.transport,
	})
}

func terminal(st *backend.JobStatus) bool {
	return st.Error != "" || st.Status == backend.StatusCompleted || st.Status == backend.StatusFailed
}

func (r *run) finish(ctx context.Context, st *backend.JobStatus, via Transport) (*Outcome, error) {
	if st.Error != "" || st.Status == backend.StatusFailed {
		reason := st.Error
		if reason == "" {
			reason = UnknownFailure
		}
		logf("job %s failed: %s", r.jobID, reason)
		return nil, &FailedError{JobID: r.jobID, Reason: reason}
	}

	out := &Outcome{JobID: r.jobID, AnalysisID: st.AnalysisID, Transport: via}
	switch {
	case st.Data != nil:
		out.Result = st.Data
	case st.AnalysisID != "":
		res, err := r.client.Result(ctx, st.AnalysisID)
		if err != nil {
			return nil, fmt.Errorf("fetch result %s: %w", st.AnalysisID, err)
		}
		out.Result = res
	default:
		return nil, ErrNoResult
	}
	logf("job %s completed via %s (analysis %q)", r.jobID, via, out.AnalysisID)
	return out, nil
}
