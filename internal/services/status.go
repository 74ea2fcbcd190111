package services

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/steps"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

// JobStatusView is the read-model a status request returns. Step state
// and ensemble counts are derived fresh on every call from the queue log
// and the job directory; nothing here is a second source of truth.
type JobStatusView struct {
	ID               string              `json:"id"`
	UUID             string              `json:"uuid"`
	Variant          string              `json:"variant"`
	Title            string              `json:"title"`
	Status           string              `json:"status"`
	Progress         int                 `json:"progress"`
	QueueState       string              `json:"queue_state,omitempty"`
	Position         string              `json:"position,omitempty"`
	Steps            steps.Snapshot      `json:"steps"`
	NumEnsembles     int                 `json:"num_ensembles"`
	EnsemblesMessage string              `json:"ensembles_message,omitempty"`
	LastLog          string              `json:"last_log,omitempty"`
	Scoper           *steps.ScoperStatus `json:"scoper,omitempty"`
}

// StatusService assembles status views by joining the persisted record
// with the live broker state.
type StatusService struct {
	log    *logger.Logger
	cfg    *config.Config
	repo   repos.JobRepo
	queues QueueSet
}

func NewStatusService(baseLog *logger.Logger, cfg *config.Config, repo repos.JobRepo, queues QueueSet) *StatusService {
	return &StatusService{
		log:    baseLog.With("service", "StatusService"),
		cfg:    cfg,
		repo:   repo,
		queues: queues,
	}
}

// JobListItem pairs a persisted record with its live broker state for
// the listing endpoint.
type JobListItem struct {
	*types.Job
	QueueState string `json:"queue_state,omitempty"`
}

// List returns all records newest first, each annotated with its broker
// state when the broker still knows the job. A broker outage degrades
// the rows to record-only data rather than failing the request.
func (s *StatusService) List(ctx context.Context) ([]JobListItem, error) {
	records, err := s.repo.List(ctx, nil)
	if err != nil {
		return nil, err
	}

	states := make(map[string]queue.JobState)
	for _, h := range []queue.Handle{s.queues.Primary, s.queues.Scoper, s.queues.Multi} {
		jobs, err := h.Jobs(ctx, queue.StateActive, queue.StateWaiting, queue.StateCompleted, queue.StateFailed)
		if err != nil {
			s.log.Warn("Broker scan failed", "queue", h.Name(), "error", err)
			continue
		}
		for _, job := range jobs {
			if u := job.PayloadUUID(); u != "" {
				states[u] = job.State
			}
		}
	}

	out := make([]JobListItem, 0, len(records))
	for _, record := range records {
		item := JobListItem{Job: record}
		if state, ok := states[record.UUID]; ok {
			item.QueueState = string(state)
		}
		out = append(out, item)
	}
	return out, nil
}

// Status builds the view for one record. Broker lookups are best-effort;
// a broker outage degrades the view to record-only data rather than
// failing the request.
func (s *StatusService) Status(ctx context.Context, id uuid.UUID) (*JobStatusView, error) {
	record, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return nil, err
	}

	variant, err := types.ParseVariant(record.Variant)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", record.ID, err)
	}

	view := &JobStatusView{
		ID:       record.ID.String(),
		UUID:     record.UUID,
		Variant:  record.Variant,
		Title:    record.Title,
		Status:   record.Status,
		Progress: record.Progress,
	}

	var prev steps.Snapshot
	if len(record.Steps) > 0 {
		if err := json.Unmarshal(record.Steps, &prev); err != nil {
			s.log.Warn("Corrupt steps snapshot on record", "uuid", record.UUID, "error", err)
			prev = nil
		}
	}

	target := s.queues.ForVariant(variant)
	brokerJob, logLines := s.lookupBrokerJob(ctx, target, record.UUID)
	if brokerJob != nil {
		view.QueueState = string(brokerJob.State)
		view.LastLog = steps.LastLine(logLines)
		if brokerJob.State == queue.StateWaiting {
			rank, total, err := queue.Position(ctx, target, record.UUID)
			if err != nil {
				s.log.Warn("Queue position lookup failed", "uuid", record.UUID, "error", err)
			} else {
				view.Position = queue.PositionText(rank, total)
			}
		}
	}

	if variant == types.VariantScoper {
		view.Steps = steps.ProjectScoper(logLines, prev)
		s.attachScoperStatus(record, view)
	} else {
		view.Steps = steps.ProjectPipeline(logLines, prev)
	}

	jobDir := filepath.Join(s.cfg.DataRoot, record.UUID)
	view.NumEnsembles, view.EnsemblesMessage = steps.CountEnsembles(jobDir)
	return view, nil
}

// lookupBrokerJob scans the queue's state lists for the job whose
// payload carries the record UUID. Nil when the broker has no trace of
// it or is unreachable.
func (s *StatusService) lookupBrokerJob(ctx context.Context, h queue.Handle, jobUUID string) (*queue.Job, []string) {
	jobs, err := h.Jobs(ctx, queue.StateActive, queue.StateWaiting, queue.StateCompleted, queue.StateFailed)
	if err != nil {
		s.log.Warn("Broker job lookup failed", "queue", h.Name(), "uuid", jobUUID, "error", err)
		return nil, nil
	}
	for _, job := range jobs {
		if job.PayloadUUID() != jobUUID {
			continue
		}
		lines, err := h.JobLogs(ctx, job.ID)
		if err != nil {
			s.log.Warn("Broker log fetch failed", "queue", h.Name(), "job_id", job.ID, "error", err)
		}
		return job, lines
	}
	return nil, nil
}

func (s *StatusService) attachScoperStatus(record *types.Job, view *JobStatusView) {
	var params types.JobParams
	if len(record.Params) > 0 {
		if err := json.Unmarshal(record.Params, &params); err != nil {
			s.log.Warn("Corrupt params on record", "uuid", record.UUID, "error", err)
			return
		}
	}
	jobDir := filepath.Join(s.cfg.DataRoot, record.UUID)
	scoper, err := steps.ScoperStatusFor(jobDir, params.PDBFile)
	if err != nil {
		s.log.Warn("Scoper status read failed", "uuid", record.UUID, "error", err)
		return
	}
	view.Scoper = &scoper
}
