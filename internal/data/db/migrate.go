package db

import (
	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/domain/coverage"
)

func AutoMigrateAll(db *gorm.DB) error {
	return db.AutoMigrate(
		&coverage.ReportRecord{},
	)
}
