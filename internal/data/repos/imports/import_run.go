package imports

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/graphstore/internal/domain"
	"github.com/yungbote/graphstore/internal/pkg/dbctx"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
)

type ImportRunRepo interface {
	Create(dbc dbctx.Context, run *domain.ImportRun) (*domain.ImportRun, error)
	GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ImportRun, error)
	ListRecent(dbc dbctx.Context, documentID string, limit int) ([]*domain.ImportRun, error)
	UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error
}

type importRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewImportRunRepo(db *gorm.DB, baseLog *logger.Logger) ImportRunRepo {
	if baseLog == nil {
		baseLog = logger.Nop()
	}
	return &importRunRepo{
		db:  db,
		log: baseLog.With("repo", "ImportRunRepo"),
	}
}

func (r *importRunRepo) tx(dbc dbctx.Context) *gorm.DB {
	if dbc.Tx != nil {
		return dbc.Tx.WithContext(dbc.Ctx)
	}
	return r.db.WithContext(dbc.Ctx)
}

func (r *importRunRepo) Create(dbc dbctx.Context, run *domain.ImportRun) (*domain.ImportRun, error) {
	if run == nil {
		return nil, nil
	}
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	now := time.Now().UTC()
	if run.StartedAt.IsZero() {
		run.StartedAt = now
	}
	if run.Status == "" {
		run.Status = domain.ImportRunStatusRunning
	}
	if len(run.Errors) == 0 {
		run.Errors = []byte("[]")
	}
	if len(run.Warnings) == 0 {
		run.Warnings = []byte("[]")
	}
	if err := r.tx(dbc).Create(run).Error; err != nil {
		return nil, err
	}
	return run, nil
}

// GetByID returns nil, nil when the run does not exist.
func (r *importRunRepo) GetByID(dbc dbctx.Context, id uuid.UUID) (*domain.ImportRun, error) {
	if id == uuid.Nil {
		return nil, nil
	}
	var run domain.ImportRun
	if err := r.tx(dbc).Where("id = ?", id).Limit(1).Find(&run).Error; err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

// ListRecent returns runs newest first, optionally filtered by document.
func (r *importRunRepo) ListRecent(dbc dbctx.Context, documentID string, limit int) ([]*domain.ImportRun, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	out := []*domain.ImportRun{}
	q := r.tx(dbc).Order("started_at DESC").Limit(limit)
	if documentID != "" {
		q = q.Where("document_id = ?", documentID)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

func (r *importRunRepo) UpdateFields(dbc dbctx.Context, id uuid.UUID, updates map[string]interface{}) error {
	if id == uuid.Nil || len(updates) == 0 {
		return nil
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	return r.tx(dbc).Model(&domain.ImportRun{}).Where("id = ?", id).Updates(updates).Error
}
