package imports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	ImportRunStatusRunning   = "running"
	ImportRunStatusSucceeded = "succeeded"
	ImportRunStatusPartial   = "partial"
	ImportRunStatusFailed    = "failed"
)

// ImportRun is the ledger row written for every export of a document graph.
type ImportRun struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	DocumentID string `gorm:"type:text;not null;default:'';index" json:"document_id"`
	Status     string `gorm:"type:text;not null;default:'running';index" json:"status"`

	ClearExisting   bool `gorm:"not null;default:false" json:"clear_existing"`
	MergeDuplicates bool `gorm:"not null" json:"merge_duplicates"`
	Embed           bool `gorm:"not null;default:false" json:"embed"`

	EntitiesCreated  int `gorm:"not null;default:0" json:"entities_created"`
	EntitiesUpdated  int `gorm:"not null;default:0" json:"entities_updated"`
	RelationsCreated int `gorm:"not null;default:0" json:"relations_created"`
	RelationsUpdated int `gorm:"not null;default:0" json:"relations_updated"`
	ErrorCount       int `gorm:"not null;default:0" json:"error_count"`

	Errors   datatypes.JSON `gorm:"not null" json:"errors"`
	Warnings datatypes.JSON `gorm:"not null" json:"warnings"`

	StartedAt  time.Time  `gorm:"not null;index" json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	CreatedAt  time.Time  `gorm:"not null" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null" json:"updated_at"`
}

func (ImportRun) TableName() string { return "import_run" }
