package services

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/saxslab/sasjobs-backend/internal/config"
	"github.com/saxslab/sasjobs-backend/internal/db"
	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/queue"
	"github.com/saxslab/sasjobs-backend/internal/repos"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

type testEnv struct {
	cfg      *config.Config
	gdb      *gorm.DB
	repo     repos.JobRepo
	queues   QueueSet
	dispatch *DispatchService
	status   *StatusService
	reclaim  *ReclaimService
}

func newTestEnv(t *testing.T, gateTimeout time.Duration, conversionAttempts int) *testEnv {
	t.Helper()
	log, err := logger.New("development")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	svc, err := db.NewSQLiteService(log, filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("sqlite: %v", err)
	}

	cfg := &config.Config{
		DataRoot:        t.TempDir(),
		GateTimeout:     gateTimeout,
		DefaultAttempts: 3,
		QueueAttempts:   map[string]int{queue.QueueConversion: conversionAttempts},
	}
	queues := QueueSet{
		Primary:    queue.NewMemoryHandle(queue.QueuePrimary, 3),
		Conversion: queue.NewMemoryHandle(queue.QueueConversion, conversionAttempts),
		Scoper:     queue.NewMemoryHandle(queue.QueueScoper, 3),
		Multi:      queue.NewMemoryHandle(queue.QueueMulti, 3),
		Deletion:   queue.NewMemoryHandle(queue.QueueDeletion, 3),
		Webhooks:   queue.NewMemoryHandle(queue.QueueWebhooks, 3),
	}
	repo := repos.NewJobRepo(svc.DB(), log)
	return &testEnv{
		cfg:      cfg,
		gdb:      svc.DB(),
		repo:     repo,
		queues:   queues,
		dispatch: NewDispatchService(log, cfg, svc.DB(), repo, queues),
		status:   NewStatusService(log, cfg, repo, queues),
		reclaim:  NewReclaimService(log, cfg, repo, queues),
	}
}

// runConversionWorker mimics the out-of-process conversion worker:
// claim the next conversion job and finish it one way or the other.
func runConversionWorker(env *testEnv, fail bool) {
	ctx := context.Background()
	for {
		job, err := env.queues.Conversion.Claim(ctx)
		if err != nil {
			return
		}
		if job == nil {
			time.Sleep(5 * time.Millisecond)
			continue
		}
		if fail {
			_ = env.queues.Conversion.Fail(ctx, job.ID, "conversion blew up")
			if job.Attempts >= 1 {
				return
			}
			continue
		}
		_ = env.queues.Conversion.Complete(ctx, job.ID)
		return
	}
}

func TestSubmitInvalidVariant(t *testing.T) {
	env := newTestEnv(t, time.Second, 1)
	_, err := env.dispatch.Submit(context.Background(), SubmitRequest{Variant: "bogus", Title: "x"})
	if !errors.Is(err, types.ErrInvalidVariant) {
		t.Fatalf("err = %v, want ErrInvalidVariant", err)
	}
}

func TestSubmitCRDVariantSkipsConversion(t *testing.T) {
	env := newTestEnv(t, time.Second, 1)
	ctx := context.Background()

	record, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "crd_psf",
		Title:   "classic run",
		Params:  types.JobParams{CRDFile: "model.crd", PSFFile: "model.psf"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if n, _ := env.queues.Conversion.WaitingCount(ctx); n != 0 {
		t.Fatalf("conversion queue has %d jobs, want 0", n)
	}
	jobs, _ := env.queues.Primary.Jobs(ctx, queue.StateWaiting)
	if len(jobs) != 1 {
		t.Fatalf("primary queue has %d jobs, want 1", len(jobs))
	}

	var payload types.QueuePayload
	if err := json.Unmarshal(jobs[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.Type != "crd_psf" || payload.UUID != record.UUID || payload.JobID != record.ID.String() {
		t.Fatalf("unexpected payload: %+v", payload)
	}

	if _, err := os.Stat(filepath.Join(env.cfg.DataRoot, record.UUID, "params.json")); err != nil {
		t.Fatalf("params.json not written: %v", err)
	}
}

func TestSubmitRoutesScoperAndMulti(t *testing.T) {
	env := newTestEnv(t, time.Second, 1)
	ctx := context.Background()

	first, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "crd_psf", Title: "source one",
		Params: types.JobParams{CRDFile: "a.crd", PSFFile: "a.psf"},
	})
	if err != nil {
		t.Fatalf("Submit source one: %v", err)
	}
	second, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "crd_psf", Title: "source two",
		Params: types.JobParams{CRDFile: "b.crd", PSFFile: "b.psf"},
	})
	if err != nil {
		t.Fatalf("Submit source two: %v", err)
	}

	if _, err := env.dispatch.Submit(ctx, SubmitRequest{Variant: "scoper", Title: "rna"}); err != nil {
		t.Fatalf("Submit scoper: %v", err)
	}
	if _, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "multi", Title: "combined",
		Params: types.JobParams{JobUUIDs: []string{first.UUID, second.UUID}},
	}); err != nil {
		t.Fatalf("Submit multi: %v", err)
	}

	if n, _ := env.queues.Scoper.WaitingCount(ctx); n != 1 {
		t.Fatalf("scoper queue = %d, want 1", n)
	}
	if n, _ := env.queues.Multi.WaitingCount(ctx); n != 1 {
		t.Fatalf("multi queue = %d, want 1", n)
	}
	if n, _ := env.queues.Primary.WaitingCount(ctx); n != 2 {
		t.Fatalf("primary queue = %d, want 2", n)
	}
}

func TestSubmitMultiRejectsBadSources(t *testing.T) {
	env := newTestEnv(t, time.Second, 1)
	ctx := context.Background()

	source, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "crd_psf", Title: "only source",
		Params: types.JobParams{CRDFile: "a.crd", PSFFile: "a.psf"},
	})
	if err != nil {
		t.Fatalf("Submit source: %v", err)
	}

	_, err = env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "multi", Title: "one source",
		Params: types.JobParams{JobUUIDs: []string{source.UUID}},
	})
	if !errors.Is(err, types.ErrInvalidParams) {
		t.Fatalf("single source err = %v, want ErrInvalidParams", err)
	}

	_, err = env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "multi", Title: "phantom source",
		Params: types.JobParams{JobUUIDs: []string{source.UUID, "no-such-uuid"}},
	})
	if !errors.Is(err, types.ErrRecordNotFound) {
		t.Fatalf("phantom source err = %v, want ErrRecordNotFound", err)
	}

	if n, _ := env.queues.Multi.WaitingCount(ctx); n != 0 {
		t.Fatalf("multi queue = %d, want 0", n)
	}
}

func TestSubmitPDBWaitsForConversion(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1)
	ctx := context.Background()

	go runConversionWorker(env, false)

	record, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "pdb",
		Title:   "needs conversion",
		Params:  types.JobParams{PDBFile: "input.pdb"},
	})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The conversion broker ID is pinned to the record UUID.
	convJob, err := env.queues.Conversion.Job(ctx, record.UUID)
	if err != nil || convJob == nil {
		t.Fatalf("conversion job by record uuid: %v, %v", convJob, err)
	}
	if convJob.State != queue.StateCompleted {
		t.Fatalf("conversion state = %s, want completed", convJob.State)
	}

	// Terminal job only lands after the gate opened.
	jobs, _ := env.queues.Primary.Jobs(ctx, queue.StateWaiting)
	if len(jobs) != 1 {
		t.Fatalf("primary queue has %d jobs, want 1", len(jobs))
	}

	// Conversion outputs were recorded on the params.
	stored, err := env.repo.GetByID(ctx, nil, record.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	var params types.JobParams
	if err := json.Unmarshal(stored.Params, &params); err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.PSFFile != "bilbomd_pdb2crd.psf" || params.CRDFile != "bilbomd_pdb2crd.crd" {
		t.Fatalf("conversion outputs not recorded: %+v", params)
	}
}

func TestSubmitGateTimeout(t *testing.T) {
	env := newTestEnv(t, 50*time.Millisecond, 1)
	ctx := context.Background()

	_, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "auto",
		Title:   "no worker around",
		Params:  types.JobParams{PDBFile: "input.pdb"},
	})
	if !errors.Is(err, types.ErrPrerequisiteTimeout) {
		t.Fatalf("err = %v, want ErrPrerequisiteTimeout", err)
	}

	if n, _ := env.queues.Primary.WaitingCount(ctx); n != 0 {
		t.Fatalf("terminal job enqueued despite gate timeout: %d", n)
	}

	records, _ := env.repo.List(ctx, nil)
	if len(records) != 1 || records[0].Status != types.StatusError {
		t.Fatalf("record not marked Error: %+v", records)
	}
}

func TestSubmitGateFailure(t *testing.T) {
	env := newTestEnv(t, 5*time.Second, 1)
	ctx := context.Background()

	go runConversionWorker(env, true)

	_, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "pdb",
		Title:   "conversion fails",
		Params:  types.JobParams{PDBFile: "input.pdb"},
	})
	if !errors.Is(err, types.ErrPrerequisiteFailed) {
		t.Fatalf("err = %v, want ErrPrerequisiteFailed", err)
	}
	if n, _ := env.queues.Primary.WaitingCount(ctx); n != 0 {
		t.Fatalf("terminal job enqueued despite gate failure: %d", n)
	}
}

func TestSubmitResubmissionCopiesInputs(t *testing.T) {
	env := newTestEnv(t, time.Second, 1)
	ctx := context.Background()

	original, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant: "scoper",
		Title:   "original",
		Params:  types.JobParams{PDBFile: "input.pdb"},
	})
	if err != nil {
		t.Fatalf("Submit original: %v", err)
	}
	origFile := filepath.Join(env.cfg.DataRoot, original.UUID, "input.pdb")
	if err := os.WriteFile(origFile, []byte("ATOM"), 0o644); err != nil {
		t.Fatalf("write original input: %v", err)
	}

	resub, err := env.dispatch.Submit(ctx, SubmitRequest{
		Variant:       "scoper",
		Title:         "again",
		Resubmit:      true,
		OriginalJobID: original.ID.String(),
	})
	if err != nil {
		t.Fatalf("Submit resubmission: %v", err)
	}

	if resub.ResubmittedFrom == nil || *resub.ResubmittedFrom != original.ID {
		t.Fatalf("lineage not recorded: %+v", resub.ResubmittedFrom)
	}
	copied := filepath.Join(env.cfg.DataRoot, resub.UUID, "input.pdb")
	raw, err := os.ReadFile(copied)
	if err != nil || string(raw) != "ATOM" {
		t.Fatalf("input not copied: %v", err)
	}

	var params types.JobParams
	if err := json.Unmarshal(resub.Params, &params); err != nil {
		t.Fatalf("params: %v", err)
	}
	if params.PDBFile != "input.pdb" {
		t.Fatalf("params did not inherit pdb_file: %+v", params)
	}
}
