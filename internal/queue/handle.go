package queue

import "context"

// EnqueueOption tweaks a single enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	jobID string
}

// WithJobID pins the broker job ID. Enqueueing twice with the same ID is
// a no-op returning the existing ID, which is how cross-request
// idempotency (e.g. one conversion job per record UUID) is enforced.
func WithJobID(id string) EnqueueOption {
	return func(o *enqueueOptions) { o.jobID = id }
}

// Handle is a named connection to one logical work queue on the broker.
// The broker itself (durable storage, lease/heartbeat, priority FIFO) is
// an external collaborator; the Handle only issues commands against it.
type Handle interface {
	Name() string

	Enqueue(ctx context.Context, title string, payload any, opts ...EnqueueOption) (string, error)
	Job(ctx context.Context, id string) (*Job, error)
	Jobs(ctx context.Context, states ...JobState) ([]*Job, error)

	JobLogs(ctx context.Context, id string) ([]string, error)
	AppendLog(ctx context.Context, id, line string) error

	WaitingCount(ctx context.Context) (int, error)
	ActiveCount(ctx context.Context) (int, error)

	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Paused(ctx context.Context) (bool, error)
	Drain(ctx context.Context) error

	// Claim moves the oldest waiting job to active, or returns nil when
	// the queue is empty or paused.
	Claim(ctx context.Context) (*Job, error)
	Complete(ctx context.Context, id string) error
	Fail(ctx context.Context, id, reason string) error

	// Subscribe opens a per-call terminal-event stream. The returned
	// cancel func must be called on every exit path; it tears down the
	// underlying subscription and closes the channel.
	Subscribe(ctx context.Context) (<-chan Event, func(), error)

	Close() error
}
