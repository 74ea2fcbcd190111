package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/retry"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

const (
	dirRemoveAttempts = 10
	dirRemoveBackoff  = time.Second
)

// ReclaimService deletes job records and their on-disk working
// directories. Deletion is requested through the deletion queue and
// delivered at least once, so every step here tolerates rerun.
type ReclaimService struct {
	log    *logger.Logger
	cfg    *config.Config
	repo   repos.JobRepo
	queues QueueSet
}

func NewReclaimService(baseLog *logger.Logger, cfg *config.Config, repo repos.JobRepo, queues QueueSet) *ReclaimService {
	return &ReclaimService{
		log:    baseLog.With("service", "ReclaimService"),
		cfg:    cfg,
		repo:   repo,
		queues: queues,
	}
}

// RequestDeletion verifies the record exists and enqueues a deletion
// message. The broker ID is pinned so repeated requests for the same
// record collapse into one queued deletion.
func (s *ReclaimService) RequestDeletion(ctx context.Context, id uuid.UUID) error {
	record, err := s.repo.GetByID(ctx, nil, id)
	if err != nil {
		return err
	}

	req := types.DeletionRequest{RecordID: record.ID.String()}
	brokerID, err := s.queues.Deletion.Enqueue(ctx, "delete job "+record.UUID, req,
		queue.WithJobID("delete-"+record.ID.String()))
	if err != nil {
		return fmt.Errorf("enqueue deletion: %w", err)
	}
	s.log.Info("Deletion queued", "id", record.ID, "uuid", record.UUID, "broker_id", brokerID)
	return nil
}

// HandleDeletion processes one deletion message. A missing record means
// a previous delivery already handled it and the message is acknowledged
// as done. The record goes first; a directory the removal then fails on
// is left orphaned for manual inspection, never the other way around.
func (s *ReclaimService) HandleDeletion(ctx context.Context, job *queue.Job) error {
	var req types.DeletionRequest
	if err := json.Unmarshal(job.Payload, &req); err != nil {
		return fmt.Errorf("decode deletion request: %w", err)
	}
	id, err := uuid.Parse(req.RecordID)
	if err != nil {
		return fmt.Errorf("parse record id %q: %w", req.RecordID, err)
	}

	record, err := s.repo.GetByID(ctx, nil, id)
	if errors.Is(err, types.ErrRecordNotFound) {
		s.log.Info("Record already deleted", "id", id)
		return nil
	}
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, nil, record.ID); err != nil && !errors.Is(err, types.ErrRecordNotFound) {
		return fmt.Errorf("delete record %s: %w", record.ID, err)
	}

	if err := s.removeJobDir(ctx, record.UUID); err != nil {
		return err
	}
	s.log.Info("Job reclaimed", "id", record.ID, "uuid", record.UUID)
	return nil
}

// removeJobDir deletes the working directory, retrying the transient
// errors NFS produces when workers still hold files open. A directory
// that is already gone counts as success.
func (s *ReclaimService) removeJobDir(ctx context.Context, jobUUID string) error {
	if jobUUID == "" {
		return errors.New("empty job uuid")
	}
	jobDir := filepath.Join(s.cfg.DataRoot, jobUUID)

	err := retry.Do(ctx, dirRemoveAttempts, retry.Exponential(dirRemoveBackoff), isTransientFSError, func() error {
		return os.RemoveAll(jobDir)
	})
	if err != nil {
		return fmt.Errorf("remove %s: %w", jobDir, err)
	}
	s.log.Info("Removed job directory", "dir", jobDir)
	return nil
}

func isTransientFSError(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY) || errors.Is(err, syscall.EBUSY)
}
