package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/steps"
	"github.com/saxslab/sasjobs-backend/internal/types"
	"github.com/saxslab/sasjobs-backend/internal/utils"
)

// Filenames the conversion worker writes into the job directory. The
// terminal simulation job reads them from there.
const (
	convertedPSFFile = "bilbomd_pdb2crd.psf"
	convertedCRDFile = "bilbomd_pdb2crd.crd"
)

// SubmitRequest is one validated job submission.
type SubmitRequest struct {
	Variant       string
	Title         string
	Params        types.JobParams
	Resubmit      bool
	OriginalJobID string
}

// DispatchService owns the submission path: record creation, the
// conversion gate for PDB-input variants, and the terminal enqueue.
type DispatchService struct {
	log    *logger.Logger
	cfg    *config.Config
	db     *gorm.DB
	repo   repos.JobRepo
	queues QueueSet
}

func NewDispatchService(baseLog *logger.Logger, cfg *config.Config, db *gorm.DB, repo repos.JobRepo, queues QueueSet) *DispatchService {
	return &DispatchService{
		log:    baseLog.With("service", "DispatchService"),
		cfg:    cfg,
		db:     db,
		repo:   repo,
		queues: queues,
	}
}

// Submit validates the variant, persists a record, prepares the job
// directory and dispatches. Variants with PDB input block on the
// conversion gate before their terminal job is enqueued; a gate timeout
// or failure leaves the record in Error with nothing on the terminal
// queue.
func (s *DispatchService) Submit(ctx context.Context, req SubmitRequest) (*types.Job, error) {
	variant, err := types.ParseVariant(req.Variant)
	if err != nil {
		return nil, err
	}
	if variant == types.VariantMulti {
		if err := s.validateMultiParams(ctx, req.Params); err != nil {
			return nil, err
		}
	}

	jobUUID := uuid.NewString()
	jobDir := filepath.Join(s.cfg.DataRoot, jobUUID)
	if err := os.MkdirAll(jobDir, 0o755); err != nil {
		return nil, fmt.Errorf("create job directory: %w", err)
	}
	s.log.Info("Created job directory", "dir", jobDir)

	var resubmittedFrom *uuid.UUID
	if req.Resubmit {
		original, err := s.resolveOriginal(ctx, req.OriginalJobID)
		if err != nil {
			return nil, err
		}
		if err := s.copyOriginalInputs(original, &req.Params, jobDir); err != nil {
			return nil, err
		}
		id := original.ID
		resubmittedFrom = &id
	}

	record, err := s.createRecord(ctx, variant, req, jobUUID, resubmittedFrom)
	if err != nil {
		return nil, err
	}

	if req.Params.ConstInpFile != "" {
		if err := utils.SanitizeConstInpFile(filepath.Join(jobDir, req.Params.ConstInpFile)); err != nil {
			s.log.Warn("Const file sanitize failed", "uuid", jobUUID, "error", err)
		}
	}
	s.writeJobParams(record, jobDir)

	if _, err := s.dispatch(ctx, variant, record); err != nil {
		if serr := s.repo.SetStatus(ctx, nil, record.ID, types.StatusError); serr != nil {
			s.log.Error("Failed to mark record after dispatch error", "uuid", jobUUID, "error", serr)
		}
		return nil, err
	}
	return record, nil
}

// validateMultiParams checks that an aggregation job names at least two
// existing source jobs before anything is persisted or enqueued.
func (s *DispatchService) validateMultiParams(ctx context.Context, params types.JobParams) error {
	if len(params.JobUUIDs) < 2 {
		return fmt.Errorf("%w: a multi job needs at least two source job uuids", types.ErrInvalidParams)
	}
	for _, jobUUID := range params.JobUUIDs {
		if _, err := s.repo.GetByUUID(ctx, nil, jobUUID); err != nil {
			if errors.Is(err, types.ErrRecordNotFound) {
				return fmt.Errorf("source job %s: %w", jobUUID, types.ErrRecordNotFound)
			}
			return fmt.Errorf("look up source job %s: %w", jobUUID, err)
		}
	}
	return nil
}

func (s *DispatchService) resolveOriginal(ctx context.Context, originalID string) (*types.Job, error) {
	if originalID == "" {
		return nil, errors.New("resubmission without original job id")
	}
	id, err := uuid.Parse(originalID)
	if err != nil {
		return nil, fmt.Errorf("parse original job id: %w", err)
	}
	return s.repo.GetByID(ctx, nil, id)
}

// copyOriginalInputs clones the original submission's input files into
// the new job directory so a resubmission needs no re-upload.
func (s *DispatchService) copyOriginalInputs(original *types.Job, params *types.JobParams, jobDir string) error {
	var origParams types.JobParams
	if len(original.Params) > 0 {
		if err := json.Unmarshal(original.Params, &origParams); err != nil {
			return fmt.Errorf("decode original params: %w", err)
		}
	}
	origDir := filepath.Join(s.cfg.DataRoot, original.UUID)

	for _, name := range []string{
		origParams.PDBFile, origParams.PAEFile, origParams.DataFile,
		origParams.CRDFile, origParams.PSFFile, origParams.ConstInpFile,
		origParams.FastaFile,
	} {
		if name == "" {
			continue
		}
		if err := copyFile(filepath.Join(origDir, name), filepath.Join(jobDir, name)); err != nil {
			return fmt.Errorf("copy %s from original job: %w", name, err)
		}
	}

	// Carry the original inputs forward; the caller's params only name
	// what changed.
	if params.PDBFile == "" {
		params.PDBFile = origParams.PDBFile
	}
	if params.PAEFile == "" {
		params.PAEFile = origParams.PAEFile
	}
	if params.DataFile == "" {
		params.DataFile = origParams.DataFile
	}
	if params.ConstInpFile == "" {
		params.ConstInpFile = origParams.ConstInpFile
	}
	s.log.Info("Copied inputs from original job", "original_uuid", original.UUID)
	return nil
}

func (s *DispatchService) createRecord(ctx context.Context, variant types.JobVariant, req SubmitRequest, jobUUID string, resubmittedFrom *uuid.UUID) (*types.Job, error) {
	paramsJSON, err := json.Marshal(req.Params)
	if err != nil {
		return nil, fmt.Errorf("encode params: %w", err)
	}

	var stages []string
	if variant == types.VariantScoper {
		stages = []string{"scoper", "results", "email"}
	} else {
		stages = steps.PipelineStages()
	}
	stepsJSON, err := json.Marshal(steps.NewSnapshot(stages))
	if err != nil {
		return nil, fmt.Errorf("encode steps: %w", err)
	}

	record := &types.Job{
		ID:              uuid.New(),
		UUID:            jobUUID,
		Variant:         string(variant),
		Title:           req.Title,
		Status:          types.StatusSubmitted,
		Params:          datatypes.JSON(paramsJSON),
		Steps:           datatypes.JSON(stepsJSON),
		ResubmittedFrom: resubmittedFrom,
		TimeSubmitted:   time.Now().UTC(),
	}
	if _, err := s.repo.Create(ctx, nil, record); err != nil {
		return nil, fmt.Errorf("persist job record: %w", err)
	}
	s.log.Info("Job record saved", "id", record.ID, "uuid", jobUUID, "variant", variant)
	return record, nil
}

// writeJobParams drops a params.json snapshot of the record into the job
// directory for the out-of-process workers. Failure is logged, not
// fatal; the workers can run without it.
func (s *DispatchService) writeJobParams(record *types.Job, jobDir string) {
	raw, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		s.log.Error("Unable to encode params.json", "uuid", record.UUID, "error", err)
		return
	}
	paramsPath := filepath.Join(jobDir, "params.json")
	if err := os.WriteFile(paramsPath, raw, 0o644); err != nil {
		s.log.Error("Unable to save params.json", "uuid", record.UUID, "error", err)
		return
	}
	s.log.Info("Saved params.json", "path", paramsPath)
}

func (s *DispatchService) dispatch(ctx context.Context, variant types.JobVariant, record *types.Job) (string, error) {
	if variant.NeedsConversion() {
		if err := s.runConversionGate(ctx, record); err != nil {
			return "", err
		}
	}

	target := s.queues.ForVariant(variant)
	payload := types.QueuePayload{
		Type:  string(variant),
		Title: record.Title,
		UUID:  record.UUID,
		JobID: record.ID.String(),
	}
	brokerID, err := target.Enqueue(ctx, record.Title, payload)
	if err != nil {
		return "", fmt.Errorf("enqueue on %s: %w", target.Name(), err)
	}
	s.log.Info("Job queued", "queue", target.Name(), "uuid", record.UUID, "broker_id", brokerID)
	return brokerID, nil
}

// runConversionGate enqueues the PDB-to-CRD/PSF conversion and blocks
// until it finishes. The broker job ID is pinned to the record UUID so a
// retried submission cannot double-enqueue the conversion.
func (s *DispatchService) runConversionGate(ctx context.Context, record *types.Job) error {
	var params types.JobParams
	if len(record.Params) > 0 {
		if err := json.Unmarshal(record.Params, &params); err != nil {
			return fmt.Errorf("decode params: %w", err)
		}
	}

	payload := types.ConversionPayload{
		Type:        "Pdb2Crd",
		Title:       "convert PDB to CRD",
		UUID:        record.UUID,
		PDBFile:     params.PDBFile,
		PAEPower:    "2.0",
		PlddtCutoff: "50",
	}
	convID, err := s.queues.Conversion.Enqueue(ctx, payload.Title, payload, queue.WithJobID(record.UUID))
	if err != nil {
		return fmt.Errorf("enqueue conversion: %w", err)
	}
	s.log.Info("Conversion job queued", "uuid", record.UUID, "broker_id", convID)

	if err := queue.AwaitCompletion(ctx, s.queues.Conversion, convID, s.cfg.GateTimeout); err != nil {
		var failed *queue.JobFailedError
		switch {
		case errors.Is(err, queue.ErrWaitTimeout):
			return fmt.Errorf("%w: %v", types.ErrPrerequisiteTimeout, err)
		case errors.As(err, &failed):
			return fmt.Errorf("%w: %v", types.ErrPrerequisiteFailed, err)
		}
		return err
	}
	s.log.Info("Conversion completed", "uuid", record.UUID)

	// The worker wrote its outputs into the job directory; record the
	// generated filenames so the terminal job and the UI can find them.
	params.PSFFile = convertedPSFFile
	params.CRDFile = convertedCRDFile
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	record.Params = datatypes.JSON(raw)
	if err := s.repo.UpdateFields(ctx, nil, record.ID, map[string]interface{}{"params": record.Params}); err != nil {
		return fmt.Errorf("record conversion outputs: %w", err)
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
