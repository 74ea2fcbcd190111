package queue

import (
	"context"
	"fmt"
	"testing"
)

func TestPositionRanksWaitingJobs(t *testing.T) {
	h := NewMemoryHandle("bilbomd", 1)
	ctx := context.Background()

	uuids := []string{"u1", "u2", "u3", "u4"}
	for _, u := range uuids {
		if _, err := h.Enqueue(ctx, "job "+u, map[string]string{"uuid": u}); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}

	for i, u := range uuids {
		rank, total, err := Position(ctx, h, u)
		if err != nil {
			t.Fatalf("Position(%s): %v", u, err)
		}
		if rank != i+1 || total != len(uuids) {
			t.Fatalf("Position(%s) = (%d, %d), want (%d, %d)", u, rank, total, i+1, len(uuids))
		}
	}
}

func TestPositionAbsentJob(t *testing.T) {
	h := NewMemoryHandle("bilbomd", 1)
	ctx := context.Background()

	_, _ = h.Enqueue(ctx, "job", map[string]string{"uuid": "present"})
	rank, total, err := Position(ctx, h, "missing")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if rank != 0 || total != 1 {
		t.Fatalf("Position = (%d, %d), want (0, 1)", rank, total)
	}
}

func TestPositionExcludesActiveJobs(t *testing.T) {
	h := NewMemoryHandle("bilbomd", 1)
	ctx := context.Background()

	_, _ = h.Enqueue(ctx, "first", map[string]string{"uuid": "active-one"})
	_, _ = h.Enqueue(ctx, "second", map[string]string{"uuid": "waiting-one"})
	if _, err := h.Claim(ctx); err != nil {
		t.Fatalf("Claim: %v", err)
	}

	rank, total, err := Position(ctx, h, "active-one")
	if err != nil {
		t.Fatalf("Position: %v", err)
	}
	if rank != 0 || total != 1 {
		t.Fatalf("active job ranked (%d, %d), want (0, 1)", rank, total)
	}

	rank, total, _ = Position(ctx, h, "waiting-one")
	if rank != 1 || total != 1 {
		t.Fatalf("waiting job ranked (%d, %d), want (1, 1)", rank, total)
	}
}

// Claims from the head never improve a job's absolute submission order,
// only its rank as earlier jobs leave the queue.
func TestPositionShrinksAsQueueDrains(t *testing.T) {
	h := NewMemoryHandle("bilbomd", 1)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, _ = h.Enqueue(ctx, "job", map[string]string{"uuid": fmt.Sprintf("u%d", i)})
	}

	last := "u4"
	for drained := 0; drained < 4; drained++ {
		rank, total, err := Position(ctx, h, last)
		if err != nil {
			t.Fatalf("Position: %v", err)
		}
		wantRank := 5 - drained
		if rank != wantRank || total != wantRank {
			t.Fatalf("after %d claims: (%d, %d), want (%d, %d)", drained, rank, total, wantRank, wantRank)
		}
		job, _ := h.Claim(ctx)
		_ = h.Complete(ctx, job.ID)
	}

	rank, total, _ := Position(ctx, h, last)
	if rank != 1 || total != 1 {
		t.Fatalf("final rank = (%d, %d), want (1, 1)", rank, total)
	}
}

func TestPositionText(t *testing.T) {
	if got := PositionText(3, 7); got != "3 out of 7" {
		t.Fatalf("PositionText = %q", got)
	}
	if got := PositionText(0, 7); got != "" {
		t.Fatalf("PositionText for absent job = %q, want empty", got)
	}
}
