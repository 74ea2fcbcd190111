package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job lifecycle statuses. A terminal status (Completed/Error) is never
// overwritten.
const (
	StatusSubmitted = "Submitted"
	StatusPending   = "Pending"
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusError     = "Error"
)

// Job is the persisted record for one submitted unit of work. The UUID
// doubles as the on-disk working directory name under the data root; the
// dispatcher, the reclaimer and the out-of-process workers all rely on
// that convention.
type Job struct {
	ID              uuid.UUID      `gorm:"type:uuid;default:uuid_generate_v4();primaryKey" json:"id"`
	UUID            string         `gorm:"column:uuid;not null;uniqueIndex" json:"uuid"`
	Variant         string         `gorm:"column:variant;not null;index" json:"variant"`
	Title           string         `gorm:"column:title;not null" json:"title"`
	Status          string         `gorm:"column:status;not null;index;default:Submitted" json:"status"`
	Progress        int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Steps           datatypes.JSON `gorm:"column:steps;type:jsonb" json:"steps"`
	Params          datatypes.JSON `gorm:"column:params;type:jsonb" json:"params"`
	ResubmittedFrom *uuid.UUID     `gorm:"type:uuid;column:resubmitted_from" json:"resubmitted_from,omitempty"`
	TimeSubmitted   time.Time      `gorm:"column:time_submitted;not null" json:"time_submitted"`
	TimeStarted     *time.Time     `gorm:"column:time_started" json:"time_started,omitempty"`
	TimeCompleted   *time.Time     `gorm:"column:time_completed" json:"time_completed,omitempty"`
	CreatedAt       time.Time      `gorm:"not null;default:now()" json:"created_at"`
	UpdatedAt       time.Time      `gorm:"not null;default:now()" json:"updated_at"`
	DeletedAt       gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "job" }

// JobParams holds the variant-specific submission inputs. All fields are
// optional at the type level; the submission handler validates the set
// required by each variant.
type JobParams struct {
	PDBFile                string   `json:"pdb_file,omitempty"`
	CRDFile                string   `json:"crd_file,omitempty"`
	PSFFile                string   `json:"psf_file,omitempty"`
	PAEFile                string   `json:"pae_file,omitempty"`
	DataFile               string   `json:"data_file,omitempty"`
	ConstInpFile           string   `json:"const_inp_file,omitempty"`
	FastaFile              string   `json:"fasta_file,omitempty"`
	Rg                     float64  `json:"rg,omitempty"`
	RgMin                  float64  `json:"rg_min,omitempty"`
	RgMax                  float64  `json:"rg_max,omitempty"`
	ConformationalSampling int      `json:"conformational_sampling,omitempty"`
	D2OFraction            float64  `json:"d2o_fraction,omitempty"`
	JobUUIDs               []string `json:"job_uuids,omitempty"`
}
