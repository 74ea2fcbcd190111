package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/saxslab/sasjobs-backend/internal/logger"
)

// jobTableDDL creates the job table with constant defaults only, since
// sqlite rejects the expression defaults the postgres migration uses.
// Record IDs are always assigned in code, so no database default is
// needed.
const jobTableDDL = `
CREATE TABLE IF NOT EXISTS job (
	id               text PRIMARY KEY,
	uuid             text NOT NULL UNIQUE,
	variant          text NOT NULL,
	title            text NOT NULL,
	status           text NOT NULL DEFAULT 'Submitted',
	progress         integer NOT NULL DEFAULT 0,
	steps            text,
	params           text,
	resubmitted_from text,
	time_submitted   datetime NOT NULL,
	time_started     datetime,
	time_completed   datetime,
	created_at       datetime NOT NULL DEFAULT CURRENT_TIMESTAMP,
	updated_at       datetime NOT NULL DEFAULT CURRENT_TIMESTAMP,
	deleted_at       datetime
);
CREATE INDEX IF NOT EXISTS idx_job_variant ON job(variant);
CREATE INDEX IF NOT EXISTS idx_job_status ON job(status);
CREATE INDEX IF NOT EXISTS idx_job_deleted_at ON job(deleted_at);
`

// SQLiteService is the file-or-memory backed alternative to Postgres,
// used for local single-node runs and tests.
type SQLiteService struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSQLiteService(log *logger.Logger, path string) (*SQLiteService, error) {
	serviceLog := log.With("service", "SQLiteService")

	serviceLog.Info("Opening SQLite database...", "path", path)
	gdb, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	if err := gdb.Exec(jobTableDDL).Error; err != nil {
		return nil, fmt.Errorf("failed to create job table: %w", err)
	}
	return &SQLiteService{db: gdb, log: serviceLog}, nil
}

func (s *SQLiteService) DB() *gorm.DB {
	return s.db
}
