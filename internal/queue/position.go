package queue

import (
	"context"
	"fmt"
)

// Position returns the 1-based rank of the job whose payload UUID
// matches, among the queue's waiting jobs in their native order, plus
// the total waiting count. (0, total) means the job is not waiting, for
// example because it is already active, finished, or not yet visible.
// The scan is a best-effort snapshot; concurrent enqueue/dequeue is
// tolerated.
func Position(ctx context.Context, h Handle, jobUUID string) (int, int, error) {
	waiting, err := h.Jobs(ctx, StateWaiting)
	if err != nil {
		return 0, 0, err
	}
	for i, job := range waiting {
		if job.PayloadUUID() == jobUUID {
			return i + 1, len(waiting), nil
		}
	}
	return 0, len(waiting), nil
}

// PositionText renders the rank for display, e.g. "3 out of 7"; empty
// when the job is not waiting.
func PositionText(rank, total int) string {
	if rank == 0 {
		return ""
	}
	return fmt.Sprintf("%d out of %d", rank, total)
}
