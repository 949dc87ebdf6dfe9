package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/graphstore/internal/domain"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.ImportRun{},
	)
}
