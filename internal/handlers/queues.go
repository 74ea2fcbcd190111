package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/services"
)

var errUnknownQueue = errors.New("unknown queue")

// QueuesHandler exposes the admin view onto the broker: per-queue
// counts, pause/resume and drain.
type QueuesHandler struct {
	log    *logger.Logger
	queues services.QueueSet
}

func NewQueuesHandler(baseLog *logger.Logger, queues services.QueueSet) *QueuesHandler {
	return &QueuesHandler{
		log:    baseLog.With("handler", "QueuesHandler"),
		queues: queues,
	}
}

type queueStatus struct {
	Name    string `json:"name"`
	Waiting int    `json:"waiting"`
	Active  int    `json:"active"`
	Paused  bool   `json:"paused"`
}

func (h *QueuesHandler) statusOf(c *gin.Context, handle queue.Handle) (queueStatus, error) {
	ctx := c.Request.Context()
	st := queueStatus{Name: handle.Name()}

	var err error
	if st.Waiting, err = handle.WaitingCount(ctx); err != nil {
		return st, err
	}
	if st.Active, err = handle.ActiveCount(ctx); err != nil {
		return st, err
	}
	if st.Paused, err = handle.Paused(ctx); err != nil {
		return st, err
	}
	return st, nil
}

// GET /api/admin/queues
func (h *QueuesHandler) ListQueues(c *gin.Context) {
	var out []queueStatus
	for _, handle := range h.queues.All() {
		st, err := h.statusOf(c, handle)
		if err != nil {
			RespondError(c, http.StatusBadGateway, "broker_error", err)
			return
		}
		out = append(out, st)
	}
	RespondOK(c, gin.H{"queues": out})
}

// GET /api/admin/queues/:name
func (h *QueuesHandler) GetQueue(c *gin.Context) {
	handle, ok := h.queues.ByName(c.Param("name"))
	if !ok {
		RespondError(c, http.StatusNotFound, "unknown_queue", errUnknownQueue)
		return
	}
	st, err := h.statusOf(c, handle)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "broker_error", err)
		return
	}
	RespondOK(c, gin.H{"queue": st})
}

// GET /api/admin/queues/:name/jobs?state=waiting
func (h *QueuesHandler) GetQueueJobs(c *gin.Context) {
	handle, ok := h.queues.ByName(c.Param("name"))
	if !ok {
		RespondError(c, http.StatusNotFound, "unknown_queue", errUnknownQueue)
		return
	}

	states := []queue.JobState{queue.StateWaiting, queue.StateActive, queue.StateCompleted, queue.StateFailed}
	if s := c.Query("state"); s != "" {
		states = []queue.JobState{queue.JobState(s)}
	}
	jobs, err := handle.Jobs(c.Request.Context(), states...)
	if err != nil {
		RespondError(c, http.StatusBadGateway, "broker_error", err)
		return
	}
	RespondOK(c, gin.H{"jobs": jobs})
}

// POST /api/admin/queues/:name/pause
func (h *QueuesHandler) PauseQueue(c *gin.Context) {
	h.toggle(c, "paused", func(ctx *gin.Context, handle queue.Handle) error {
		return handle.Pause(ctx.Request.Context())
	})
}

// POST /api/admin/queues/:name/resume
func (h *QueuesHandler) ResumeQueue(c *gin.Context) {
	h.toggle(c, "resumed", func(ctx *gin.Context, handle queue.Handle) error {
		return handle.Resume(ctx.Request.Context())
	})
}

// POST /api/admin/queues/:name/drain
func (h *QueuesHandler) DrainQueue(c *gin.Context) {
	h.toggle(c, "drained", func(ctx *gin.Context, handle queue.Handle) error {
		return handle.Drain(ctx.Request.Context())
	})
}

func (h *QueuesHandler) toggle(c *gin.Context, verb string, op func(*gin.Context, queue.Handle) error) {
	name := c.Param("name")
	handle, ok := h.queues.ByName(name)
	if !ok {
		RespondError(c, http.StatusNotFound, "unknown_queue", errUnknownQueue)
		return
	}
	if err := op(c, handle); err != nil {
		RespondError(c, http.StatusBadGateway, "broker_error", err)
		return
	}
	h.log.Info("Queue "+verb, "queue", name)
	RespondOK(c, gin.H{"message": "queue " + name + " " + verb})
}
