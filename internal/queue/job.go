package queue

import (
	"encoding/json"
	"time"
)

// JobState mirrors the broker's view of a queued job.
type JobState string

const (
	StateWaiting   JobState = "waiting"
	StateActive    JobState = "active"
	StateCompleted JobState = "completed"
	StateFailed    JobState = "failed"
	StateDelayed   JobState = "delayed"
)

// Job is one work item on a queue. It is owned by its Handle; everything
// else treats it as read-only. Log lines are append-only and chronological.
type Job struct {
	ID           string          `json:"id"`
	Queue        string          `json:"queue"`
	Title        string          `json:"title"`
	Payload      json.RawMessage `json:"payload"`
	Attempts     int             `json:"attempts"`
	State        JobState        `json:"state"`
	FailedReason string          `json:"failed_reason,omitempty"`
	Timestamp    time.Time       `json:"timestamp"`
}

// PayloadUUID extracts the correlation UUID from the payload, or "" when
// the payload has none.
func (j *Job) PayloadUUID() string {
	if j == nil || len(j.Payload) == 0 {
		return ""
	}
	var probe struct {
		UUID string `json:"uuid"`
	}
	if err := json.Unmarshal(j.Payload, &probe); err != nil {
		return ""
	}
	return probe.UUID
}

// EventKind is a terminal queue event type.
type EventKind string

const (
	EventCompleted EventKind = "completed"
	EventFailed    EventKind = "failed"
)

// Event is published when a job reaches a terminal state.
type Event struct {
	Kind   EventKind `json:"kind"`
	JobID  string    `json:"job_id"`
	Reason string    `json:"reason,omitempty"`
}
