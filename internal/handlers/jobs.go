package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/services"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

func init() {
	if v, ok := binding.Validator.Engine().(*validator.Validate); ok {
		_ = v.RegisterValidation("jobvariant", func(fl validator.FieldLevel) bool {
			_, err := types.ParseVariant(fl.Field().String())
			return err == nil
		})
	}
}

type JobsHandler struct {
	log      *logger.Logger
	dispatch *services.DispatchService
	status   *services.StatusService
	reclaim  *services.ReclaimService
	repo     repos.JobRepo
}

func NewJobsHandler(baseLog *logger.Logger, dispatch *services.DispatchService, status *services.StatusService, reclaim *services.ReclaimService, repo repos.JobRepo) *JobsHandler {
	return &JobsHandler{
		log:      baseLog.With("handler", "JobsHandler"),
		dispatch: dispatch,
		status:   status,
		reclaim:  reclaim,
		repo:     repo,
	}
}

type submitJobRequest struct {
	Variant       string          `json:"variant" binding:"required,jobvariant"`
	Title         string          `json:"title" binding:"required"`
	Resubmit      bool            `json:"resubmit"`
	OriginalJobID string          `json:"original_job_id"`
	Params        types.JobParams `json:"params"`
}

// POST /api/jobs
func (h *JobsHandler) SubmitJob(c *gin.Context) {
	var req submitJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}

	record, err := h.dispatch.Submit(c.Request.Context(), services.SubmitRequest{
		Variant:       req.Variant,
		Title:         req.Title,
		Params:        req.Params,
		Resubmit:      req.Resubmit,
		OriginalJobID: req.OriginalJobID,
	})
	if err != nil {
		switch {
		case errors.Is(err, types.ErrInvalidVariant):
			RespondError(c, http.StatusBadRequest, "invalid_variant", err)
		case errors.Is(err, types.ErrInvalidParams):
			RespondError(c, http.StatusBadRequest, "invalid_params", err)
		case errors.Is(err, types.ErrRecordNotFound):
			RespondError(c, http.StatusNotFound, "original_job_not_found", err)
		case errors.Is(err, types.ErrPrerequisiteTimeout):
			RespondError(c, http.StatusGatewayTimeout, "conversion_timeout", err)
		case errors.Is(err, types.ErrPrerequisiteFailed):
			RespondError(c, http.StatusInternalServerError, "conversion_failed", err)
		default:
			h.log.Error("Job submission failed", "error", err)
			RespondError(c, http.StatusInternalServerError, "submission_failed", err)
		}
		return
	}

	RespondOK(c, gin.H{
		"message": "New " + record.Variant + " job successfully created",
		"jobid":   record.ID,
		"uuid":    record.UUID,
	})
}

// GET /api/jobs
func (h *JobsHandler) ListJobs(c *gin.Context) {
	items, err := h.status.List(c.Request.Context())
	if err != nil {
		RespondError(c, http.StatusInternalServerError, "list_failed", err)
		return
	}
	RespondOK(c, gin.H{"jobs": items})
}

// GET /api/jobs/:id
func (h *JobsHandler) GetJobByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	record, err := h.repo.GetByID(c.Request.Context(), nil, id)
	if err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "lookup_failed", err)
		return
	}
	RespondOK(c, gin.H{"job": record})
}

// GET /api/jobs/:id/status
func (h *JobsHandler) GetJobStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	view, err := h.status.Status(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "status_failed", err)
		return
	}
	RespondOK(c, gin.H{"status": view})
}

// DELETE /api/jobs/:id
//
// Deletion is asynchronous; this only queues the reclaim and reports
// that it was accepted.
func (h *JobsHandler) DeleteJob(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		RespondError(c, http.StatusBadRequest, "invalid_job_id", err)
		return
	}
	if err := h.reclaim.RequestDeletion(c.Request.Context(), id); err != nil {
		if errors.Is(err, types.ErrRecordNotFound) {
			RespondError(c, http.StatusNotFound, "job_not_found", err)
			return
		}
		RespondError(c, http.StatusInternalServerError, "deletion_failed", err)
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "Deletion queued", "jobid": id})
}
