package queue

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrWaitTimeout is returned when a job fails to reach a terminal state
// within the caller's bound.
var ErrWaitTimeout = errors.New("timed out waiting for job completion")

// JobFailedError carries the worker-reported reason for a terminal
// failure observed while waiting.
type JobFailedError struct {
	JobID  string
	Reason string
}

func (e *JobFailedError) Error() string {
	return fmt.Sprintf("job %s failed: %s", e.JobID, e.Reason)
}

// AwaitCompletion blocks until jobID on h completes, fails, or timeout
// elapses. The event subscription is per-call and torn down on every
// exit path, so concurrent awaits for different jobs on the same queue
// do not interfere. Cancelling the wait does not cancel the enqueued
// work.
func AwaitCompletion(ctx context.Context, h Handle, jobID string, timeout time.Duration) error {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	events, unsubscribe, err := h.Subscribe(waitCtx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	// The job may already be terminal; checking after subscribing closes
	// the window where the event fires between the check and the
	// subscription.
	job, err := h.Job(waitCtx, jobID)
	if err != nil {
		return err
	}
	if job != nil {
		switch job.State {
		case StateCompleted:
			return nil
		case StateFailed:
			return &JobFailedError{JobID: jobID, Reason: job.FailedReason}
		}
	}

	for {
		select {
		case <-waitCtx.Done():
			if errors.Is(waitCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: job %s after %s", ErrWaitTimeout, jobID, timeout)
			}
			return waitCtx.Err()
		case ev, ok := <-events:
			if !ok {
				return fmt.Errorf("event stream closed while waiting for job %s", jobID)
			}
			if ev.JobID != jobID {
				continue
			}
			switch ev.Kind {
			case EventCompleted:
				return nil
			case EventFailed:
				return &JobFailedError{JobID: jobID, Reason: ev.Reason}
			}
		}
	}
}
