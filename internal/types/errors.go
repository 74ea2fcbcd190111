package types

import "errors"

var (
	// ErrInvalidVariant rejects submissions outside the closed variant set.
	ErrInvalidVariant = errors.New("invalid job variant")

	// ErrInvalidParams rejects submissions whose params do not satisfy
	// the chosen variant, such as a multi job naming fewer than two
	// source jobs.
	ErrInvalidParams = errors.New("invalid job params")

	// ErrPrerequisiteFailed and ErrPrerequisiteTimeout abort a dispatch
	// whose conversion stage failed or exceeded its bound. No terminal job
	// is enqueued in either case.
	ErrPrerequisiteFailed  = errors.New("prerequisite job failed")
	ErrPrerequisiteTimeout = errors.New("prerequisite job timed out")

	// ErrRecordNotFound is returned by the repo when no job matches. The
	// reclaimer treats it as success so redelivered deletions stay
	// idempotent.
	ErrRecordNotFound = errors.New("job record not found")

	// ErrBrokerUnavailable wraps enqueue/list/subscribe failures from the
	// queue backend.
	ErrBrokerUnavailable = errors.New("queue broker unavailable")
)
