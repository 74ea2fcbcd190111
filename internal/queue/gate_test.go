package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAwaitCompletionSeesCompletion(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1)
	ctx := context.Background()

	id, _ := h.Enqueue(ctx, "conv", map[string]string{"uuid": "u1"})
	go func() {
		job, _ := h.Claim(ctx)
		_ = h.Complete(ctx, job.ID)
	}()

	if err := AwaitCompletion(ctx, h, id, 5*time.Second); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
}

func TestAwaitCompletionAlreadyTerminal(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1)
	ctx := context.Background()

	id, _ := h.Enqueue(ctx, "conv", map[string]string{"uuid": "u1"})
	job, _ := h.Claim(ctx)
	_ = h.Complete(ctx, job.ID)

	// Terminal before the wait even starts; the post-subscribe state
	// check must catch it without needing an event.
	if err := AwaitCompletion(ctx, h, id, time.Second); err != nil {
		t.Fatalf("AwaitCompletion on completed job: %v", err)
	}
}

func TestAwaitCompletionFailure(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1)
	ctx := context.Background()

	id, _ := h.Enqueue(ctx, "conv", map[string]string{"uuid": "u1"})
	go func() {
		job, _ := h.Claim(ctx)
		_ = h.Fail(ctx, job.ID, "segfault in CHARMM")
	}()

	err := AwaitCompletion(ctx, h, id, 5*time.Second)
	var failed *JobFailedError
	if !errors.As(err, &failed) {
		t.Fatalf("err = %v, want JobFailedError", err)
	}
	if failed.JobID != id || failed.Reason != "segfault in CHARMM" {
		t.Fatalf("unexpected failure detail: %+v", failed)
	}
}

func TestAwaitCompletionTimeout(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1)
	ctx := context.Background()

	id, _ := h.Enqueue(ctx, "conv", map[string]string{"uuid": "u1"})

	err := AwaitCompletion(ctx, h, id, 50*time.Millisecond)
	if !errors.Is(err, ErrWaitTimeout) {
		t.Fatalf("err = %v, want ErrWaitTimeout", err)
	}
}

func TestAwaitCompletionIgnoresOtherJobs(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1)
	ctx := context.Background()

	other, _ := h.Enqueue(ctx, "other", map[string]string{"uuid": "other"})
	id, _ := h.Enqueue(ctx, "mine", map[string]string{"uuid": "mine"})

	go func() {
		// Fail the other job first, then complete ours; the gate must
		// not react to the other job's terminal event.
		job, _ := h.Claim(ctx)
		_ = h.Fail(ctx, job.ID, "other job broke")
		_ = other

		job, _ = h.Claim(ctx)
		_ = h.Complete(ctx, job.ID)
	}()

	if err := AwaitCompletion(ctx, h, id, 5*time.Second); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
}

// Every exit path must release the event subscription, or repeated
// gate calls leak channels on long-lived handles.
func TestAwaitCompletionReleasesSubscription(t *testing.T) {
	h := NewMemoryHandle("pdb2crd", 1).(*memoryHandle)
	ctx := context.Background()

	// Timeout path.
	id, _ := h.Enqueue(ctx, "conv", map[string]string{"uuid": "u1"})
	_ = AwaitCompletion(ctx, h, id, 10*time.Millisecond)
	if n := h.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers after timeout = %d, want 0", n)
	}

	// Completion path.
	go func() {
		job, _ := h.Claim(ctx)
		_ = h.Complete(ctx, job.ID)
	}()
	if err := AwaitCompletion(ctx, h, id, 5*time.Second); err != nil {
		t.Fatalf("AwaitCompletion: %v", err)
	}
	if n := h.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers after completion = %d, want 0", n)
	}

	// Caller-cancelled path.
	id2, _ := h.Enqueue(ctx, "conv2", map[string]string{"uuid": "u2"})
	cctx, cancel := context.WithCancel(ctx)
	cancel()
	_ = AwaitCompletion(cctx, h, id2, time.Second)
	if n := h.SubscriberCount(); n != 0 {
		t.Fatalf("subscribers after cancel = %d, want 0", n)
	}
}
