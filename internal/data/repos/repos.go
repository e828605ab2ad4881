package repos

import (
	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/data/repos/coverage"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type ReportRepo = coverage.ReportRepo

func NewReportRepo(db *gorm.DB, baseLog *logger.Logger) ReportRepo {
	return coverage.NewReportRepo(db, baseLog)
}
