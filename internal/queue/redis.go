package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

// NewRedisClient dials the broker's Redis and verifies connectivity
// before anything starts depending on it.
func NewRedisClient(addr string) (*goredis.Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

type redisHandle struct {
	log         *logger.Logger
	rdb         *goredis.Client
	prefix      string
	name        string
	maxAttempts int
}

// NewRedisHandle wraps one logical queue stored under
// <prefix>:<name>:*. Handles are constructed once at process start and
// passed into the dispatcher, gate and reclaimer explicitly; there is no
// package-level connection state.
func NewRedisHandle(log *logger.Logger, rdb *goredis.Client, prefix, name string, maxAttempts int) Handle {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &redisHandle{
		log:         log.With("queue", name),
		rdb:         rdb,
		prefix:      prefix,
		name:        name,
		maxAttempts: maxAttempts,
	}
}

func (h *redisHandle) Name() string { return h.name }

func (h *redisHandle) key(parts ...string) string {
	k := h.prefix + ":" + h.name
	for _, p := range parts {
		k += ":" + p
	}
	return k
}

func (h *redisHandle) jobKey(id string) string  { return h.key("job", id) }
func (h *redisHandle) logsKey(id string) string { return h.key("job", id, "logs") }

func (h *redisHandle) Enqueue(ctx context.Context, title string, payload any, opts ...EnqueueOption) (string, error) {
	var o enqueueOptions
	for _, opt := range opts {
		opt(&o)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}

	var id string
	if o.jobID != "" {
		id = o.jobID
		created, err := h.rdb.HSetNX(ctx, h.jobKey(id), "created", "1").Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
		if !created {
			// Idempotency key already claimed; the job is already on the
			// queue (or done). Never double-enqueue.
			h.log.Info("Job with this ID already enqueued, skipping", "job_id", id)
			return id, nil
		}
	} else {
		seq, err := h.rdb.Incr(ctx, h.key("id")).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
		id = strconv.FormatInt(seq, 10)
	}

	now := time.Now().UTC()
	pipe := h.rdb.TxPipeline()
	pipe.HSet(ctx, h.jobKey(id), map[string]interface{}{
		"title":     title,
		"payload":   string(raw),
		"state":     string(StateWaiting),
		"attempts":  0,
		"timestamp": now.UnixMilli(),
	})
	pipe.RPush(ctx, h.key("wait"), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}

	h.log.Info("Job added to queue", "job_id", id, "title", title)
	return id, nil
}

func (h *redisHandle) Job(ctx context.Context, id string) (*Job, error) {
	fields, err := h.rdb.HGetAll(ctx, h.jobKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return h.jobFromHash(id, fields), nil
}

func (h *redisHandle) jobFromHash(id string, fields map[string]string) *Job {
	attempts, _ := strconv.Atoi(fields["attempts"])
	millis, _ := strconv.ParseInt(fields["timestamp"], 10, 64)
	return &Job{
		ID:           id,
		Queue:        h.name,
		Title:        fields["title"],
		Payload:      json.RawMessage(fields["payload"]),
		Attempts:     attempts,
		State:        JobState(fields["state"]),
		FailedReason: fields["failed_reason"],
		Timestamp:    time.UnixMilli(millis).UTC(),
	}
}

func (h *redisHandle) stateList(state JobState) (string, bool) {
	switch state {
	case StateWaiting:
		return h.key("wait"), true
	case StateActive:
		return h.key("active"), true
	case StateCompleted:
		return h.key("completed"), true
	case StateFailed:
		return h.key("failed"), true
	default:
		return "", false
	}
}

// Jobs returns jobs in the given states, preserving each list's native
// order (oldest first for waiting). The listing is an eventually
// consistent snapshot; jobs moving between lists mid-scan are tolerated.
func (h *redisHandle) Jobs(ctx context.Context, states ...JobState) ([]*Job, error) {
	var out []*Job
	for _, state := range states {
		listKey, ok := h.stateList(state)
		if !ok {
			continue
		}
		ids, err := h.rdb.LRange(ctx, listKey, 0, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
		for _, id := range ids {
			job, err := h.Job(ctx, id)
			if err != nil {
				return nil, err
			}
			if job != nil {
				out = append(out, job)
			}
		}
	}
	return out, nil
}

func (h *redisHandle) JobLogs(ctx context.Context, id string) ([]string, error) {
	lines, err := h.rdb.LRange(ctx, h.logsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return lines, nil
}

func (h *redisHandle) AppendLog(ctx context.Context, id, line string) error {
	if err := h.rdb.RPush(ctx, h.logsKey(id), line).Err(); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return nil
}

func (h *redisHandle) WaitingCount(ctx context.Context) (int, error) {
	n, err := h.rdb.LLen(ctx, h.key("wait")).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return int(n), nil
}

func (h *redisHandle) ActiveCount(ctx context.Context) (int, error) {
	n, err := h.rdb.LLen(ctx, h.key("active")).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return int(n), nil
}

func (h *redisHandle) Pause(ctx context.Context) error {
	return h.rdb.Set(ctx, h.key("paused"), "1", 0).Err()
}

func (h *redisHandle) Resume(ctx context.Context) error {
	return h.rdb.Del(ctx, h.key("paused")).Err()
}

func (h *redisHandle) Paused(ctx context.Context) (bool, error) {
	n, err := h.rdb.Exists(ctx, h.key("paused")).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return n > 0, nil
}

func (h *redisHandle) Drain(ctx context.Context) error {
	for {
		id, err := h.rdb.LPop(ctx, h.key("wait")).Result()
		if err == goredis.Nil {
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
		pipe := h.rdb.TxPipeline()
		pipe.Del(ctx, h.jobKey(id))
		pipe.Del(ctx, h.logsKey(id))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
	}
}

func (h *redisHandle) Claim(ctx context.Context) (*Job, error) {
	paused, err := h.Paused(ctx)
	if err != nil || paused {
		return nil, err
	}
	id, err := h.rdb.LMove(ctx, h.key("wait"), h.key("active"), "LEFT", "RIGHT").Result()
	if err == goredis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	pipe := h.rdb.TxPipeline()
	pipe.HSet(ctx, h.jobKey(id), "state", string(StateActive))
	pipe.HIncrBy(ctx, h.jobKey(id), "attempts", 1)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return h.Job(ctx, id)
}

func (h *redisHandle) Complete(ctx context.Context, id string) error {
	pipe := h.rdb.TxPipeline()
	pipe.LRem(ctx, h.key("active"), 0, id)
	pipe.RPush(ctx, h.key("completed"), id)
	pipe.HSet(ctx, h.jobKey(id), "state", string(StateCompleted))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	return h.publish(ctx, Event{Kind: EventCompleted, JobID: id})
}

// Fail either requeues the job (attempt budget remaining) or parks it in
// the failed list and publishes the terminal failure event.
func (h *redisHandle) Fail(ctx context.Context, id, reason string) error {
	job, err := h.Job(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	pipe := h.rdb.TxPipeline()
	pipe.LRem(ctx, h.key("active"), 0, id)
	if job.Attempts < h.maxAttempts {
		pipe.RPush(ctx, h.key("wait"), id)
		pipe.HSet(ctx, h.jobKey(id), "state", string(StateWaiting))
		if _, err := pipe.Exec(ctx); err != nil {
			return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
		}
		h.log.Warn("Job failed, requeued", "job_id", id, "attempts", job.Attempts, "reason", reason)
		return nil
	}
	pipe.RPush(ctx, h.key("failed"), id)
	pipe.HSet(ctx, h.jobKey(id), "state", string(StateFailed), "failed_reason", reason)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}
	h.log.Error("Job failed permanently", "job_id", id, "attempts", job.Attempts, "reason", reason)
	return h.publish(ctx, Event{Kind: EventFailed, JobID: id, Reason: reason})
}

func (h *redisHandle) publish(ctx context.Context, ev Event) error {
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return h.rdb.Publish(ctx, h.key("events"), raw).Err()
}

func (h *redisHandle) Subscribe(ctx context.Context) (<-chan Event, func(), error) {
	sub := h.rdb.Subscribe(ctx, h.key("events"))

	// ensures the subscription actually started before the caller relies
	// on it
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("%w: %v", types.ErrBrokerUnavailable, err)
	}

	out := make(chan Event)
	done := make(chan struct{})
	go func() {
		defer close(out)
		ch := sub.Channel()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					return
				}
				var ev Event
				if err := json.Unmarshal([]byte(m.Payload), &ev); err != nil {
					h.log.Warn("bad queue event payload", "error", err)
					continue
				}
				select {
				case out <- ev:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			close(done)
			_ = sub.Close()
		})
	}
	return out, cancel, nil
}

func (h *redisHandle) Close() error { return nil }
