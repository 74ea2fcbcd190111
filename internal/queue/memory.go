package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"
)

// memoryHandle is a broker-free Handle with the same semantics as the
// redis implementation. It backs unit tests and single-process local
// runs where no broker is available.
type memoryHandle struct {
	mu          sync.Mutex
	name        string
	maxAttempts int
	seq         int64
	jobs        map[string]*Job
	logs        map[string][]string
	wait        []string
	active      []string
	completed   []string
	failed      []string
	paused      bool
	subs        map[int]chan Event
	nextSub     int
}

func NewMemoryHandle(name string, maxAttempts int) Handle {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &memoryHandle{
		name:        name,
		maxAttempts: maxAttempts,
		jobs:        map[string]*Job{},
		logs:        map[string][]string{},
		subs:        map[int]chan Event{},
	}
}

func (h *memoryHandle) Name() string { return h.name }

func (h *memoryHandle) Enqueue(ctx context.Context, title string, payload any, opts ...EnqueueOption) (string, error) {
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	id := o.jobID
	if id != "" {
		if _, exists := h.jobs[id]; exists {
			return id, nil
		}
	} else {
		h.seq++
		id = strconv.FormatInt(h.seq, 10)
	}

	h.jobs[id] = &Job{
		ID:        id,
		Queue:     h.name,
		Title:     title,
		Payload:   raw,
		State:     StateWaiting,
		Timestamp: time.Now().UTC(),
	}
	h.wait = append(h.wait, id)
	return id, nil
}

func (h *memoryHandle) Job(ctx context.Context, id string) (*Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	job, ok := h.jobs[id]
	if !ok {
		return nil, nil
	}
	cp := *job
	return &cp, nil
}

func (h *memoryHandle) Jobs(ctx context.Context, states ...JobState) ([]*Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []*Job
	for _, state := range states {
		var ids []string
		switch state {
		case StateWaiting:
			ids = h.wait
		case StateActive:
			ids = h.active
		case StateCompleted:
			ids = h.completed
		case StateFailed:
			ids = h.failed
		}
		for _, id := range ids {
			if job, ok := h.jobs[id]; ok {
				cp := *job
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (h *memoryHandle) JobLogs(ctx context.Context, id string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	lines := h.logs[id]
	out := make([]string, len(lines))
	copy(out, lines)
	return out, nil
}

func (h *memoryHandle) AppendLog(ctx context.Context, id, line string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.logs[id] = append(h.logs[id], line)
	return nil
}

func (h *memoryHandle) WaitingCount(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.wait), nil
}

func (h *memoryHandle) ActiveCount(ctx context.Context) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active), nil
}

func (h *memoryHandle) Pause(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = true
	return nil
}

func (h *memoryHandle) Resume(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.paused = false
	return nil
}

func (h *memoryHandle) Paused(ctx context.Context) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.paused, nil
}

func (h *memoryHandle) Drain(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, id := range h.wait {
		delete(h.jobs, id)
		delete(h.logs, id)
	}
	h.wait = nil
	return nil
}

func (h *memoryHandle) Claim(ctx context.Context) (*Job, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.paused || len(h.wait) == 0 {
		return nil, nil
	}
	id := h.wait[0]
	h.wait = h.wait[1:]
	h.active = append(h.active, id)
	job := h.jobs[id]
	job.State = StateActive
	job.Attempts++
	cp := *job
	return &cp, nil
}

func (h *memoryHandle) Complete(ctx context.Context, id string) error {
	h.mu.Lock()
	job, ok := h.jobs[id]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.active = removeID(h.active, id)
	h.completed = append(h.completed, id)
	job.State = StateCompleted
	h.broadcastLocked(Event{Kind: EventCompleted, JobID: id})
	h.mu.Unlock()
	return nil
}

func (h *memoryHandle) Fail(ctx context.Context, id, reason string) error {
	h.mu.Lock()
	job, ok := h.jobs[id]
	if !ok {
		h.mu.Unlock()
		return nil
	}
	h.active = removeID(h.active, id)
	if job.Attempts < h.maxAttempts {
		h.wait = append(h.wait, id)
		job.State = StateWaiting
		h.mu.Unlock()
		return nil
	}
	h.failed = append(h.failed, id)
	job.State = StateFailed
	job.FailedReason = reason
	h.broadcastLocked(Event{Kind: EventFailed, JobID: id, Reason: reason})
	h.mu.Unlock()
	return nil
}

// broadcastLocked fans an event out to subscribers without blocking; a
// slow subscriber misses the event but can still read the terminal state
// via Job(). Caller holds h.mu, which also serializes against cancel.
func (h *memoryHandle) broadcastLocked(ev Event) {
	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

func (h *memoryHandle) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	h.mu.Lock()
	id := h.nextSub
	h.nextSub++
	ch := make(chan Event, 16)
	h.subs[id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel, nil
}

// SubscriberCount reports live subscriptions; tests use it to prove the
// gate tears its listener down on every exit path.
func (h *memoryHandle) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *memoryHandle) Close() error { return nil }

func removeID(ids []string, id string) []string {
	out := ids[:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
