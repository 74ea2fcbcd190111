package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/saxslab/sasjobs-backend/internal/logger"
	"github.com/saxslab/sasjobs-backend/internal/types"
)

type JobRepo interface {
	Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error)
	GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error)
	GetByUUID(ctx context.Context, tx *gorm.DB, jobUUID string) (*types.Job, error)
	List(ctx context.Context, tx *gorm.DB) ([]*types.Job, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error
	SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error
	Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type jobRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewJobRepo(db *gorm.DB, baseLog *logger.Logger) JobRepo {
	return &jobRepo{
		db:  db,
		log: baseLog.With("repo", "JobRepo"),
	}
}

func (r *jobRepo) conn(tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return r.db
}

func (r *jobRepo) Create(ctx context.Context, tx *gorm.DB, job *types.Job) (*types.Job, error) {
	if job == nil {
		return nil, errors.New("nil job")
	}
	if err := r.conn(tx).WithContext(ctx).Create(job).Error; err != nil {
		return nil, err
	}
	return job, nil
}

func (r *jobRepo) GetByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*types.Job, error) {
	var job types.Job
	err := r.conn(tx).WithContext(ctx).Where("id = ?", id).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) GetByUUID(ctx context.Context, tx *gorm.DB, jobUUID string) (*types.Job, error) {
	var job types.Job
	err := r.conn(tx).WithContext(ctx).Where("uuid = ?", jobUUID).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, types.ErrRecordNotFound
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

func (r *jobRepo) List(ctx context.Context, tx *gorm.DB) ([]*types.Job, error) {
	var out []*types.Job
	if err := r.conn(tx).WithContext(ctx).Order("time_submitted DESC").Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *jobRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	if len(updates) == 0 {
		return nil
	}
	updates["updated_at"] = time.Now().UTC()
	return r.conn(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// SetStatus moves a record forward through its lifecycle. Terminal
// statuses are immutable, so Completed/Error rows are left untouched.
func (r *jobRepo) SetStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, status string) error {
	updates := map[string]interface{}{
		"status":     status,
		"updated_at": time.Now().UTC(),
	}
	switch status {
	case types.StatusRunning:
		updates["time_started"] = time.Now().UTC()
	case types.StatusCompleted, types.StatusError:
		updates["time_completed"] = time.Now().UTC()
	}
	return r.conn(tx).WithContext(ctx).
		Model(&types.Job{}).
		Where("id = ? AND status NOT IN ?", id, []string{types.StatusCompleted, types.StatusError}).
		Updates(updates).Error
}

func (r *jobRepo) Delete(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	res := r.conn(tx).WithContext(ctx).Unscoped().Where("id = ?", id).Delete(&types.Job{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return types.ErrRecordNotFound
	}
	return nil
}
