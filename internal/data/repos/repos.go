package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/graphstore/internal/data/repos/imports"
	"github.com/yungbote/graphstore/internal/platform/logger"
)

type ImportRunRepo = imports.ImportRunRepo

func NewImportRunRepo(db *gorm.DB, baseLog *logger.Logger) ImportRunRepo {
	return imports.NewImportRunRepo(db, baseLog)
}
