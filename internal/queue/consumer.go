package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/saxslab/sasjobs-backend/internal/logger"
)

// HandlerFunc processes one claimed job. A non-nil error fails the job
// against the queue's retry budget.
type HandlerFunc func(ctx context.Context, job *Job) error

// Consumer polls a queue and runs a handler for each claimed job. Only
// the deletion queue is consumed in-process; the simulation queues are
// consumed by out-of-process workers.
type Consumer struct {
	log     *logger.Logger
	handle  Handle
	handler HandlerFunc
	poll    time.Duration
}

func NewConsumer(baseLog *logger.Logger, handle Handle, handler HandlerFunc) *Consumer {
	return &Consumer{
		log:     baseLog.With("component", "QueueConsumer", "queue", handle.Name()),
		handle:  handle,
		handler: handler,
		poll:    time.Second,
	}
}

func (c *Consumer) Start(ctx context.Context) {
	go c.runLoop(ctx)
}

func (c *Consumer) runLoop(ctx context.Context) {
	ticker := time.NewTicker(c.poll)
	defer ticker.Stop()

	c.log.Info("Consumer loop started")
	for {
		select {
		case <-ctx.Done():
			c.log.Info("Consumer loop stopped")
			return
		case <-ticker.C:
			for {
				job, err := c.handle.Claim(ctx)
				if err != nil {
					c.log.Warn("Claim failed", "error", err)
					break
				}
				if job == nil {
					break
				}
				c.process(ctx, job)
			}
		}
	}
}

func (c *Consumer) process(ctx context.Context, job *Job) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("Handler panic", "job_id", job.ID, "panic", r)
			_ = c.handle.Fail(ctx, job.ID, fmt.Sprintf("panic: %v", r))
		}
	}()

	if err := c.handler(ctx, job); err != nil {
		_ = c.handle.Fail(ctx, job.ID, err.Error())
		return
	}
	if err := c.handle.Complete(ctx, job.ID); err != nil {
		c.log.Warn("Complete failed", "job_id", job.ID, "error", err)
	}
}
