package app

import (
	"strings"

	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/coverage/store"
	"github.com/yungbote/coverage-backend/internal/data/db"
	"github.com/yungbote/coverage-backend/internal/data/repos"
	reposcov "github.com/yungbote/coverage-backend/internal/data/repos/coverage"
	"github.com/yungbote/coverage-backend/internal/domain/coverage"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

type Repos struct {
	Report repos.ReportRepo
}

// openDatabase returns nil for the memory store.
func openDatabase(log *logger.Logger, cfg StoreConfig) (*db.Service, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" || driver == StoreMemory {
		return nil, nil
	}
	return db.Open(log, db.Config{Driver: driver, DSN: cfg.DSN})
}

func wireRepos(theDB *gorm.DB, log *logger.Logger) Repos {
	if theDB == nil {
		return Repos{}
	}
	log.Info("Wiring repos...")
	return Repos{
		Report: repos.NewReportRepo(theDB, log),
	}
}

// wireBackend returns nil when reports live only in process memory.
func wireBackend(theDB *gorm.DB, reposet Repos, paths *coverage.PathTable, log *logger.Logger) store.Backend {
	if theDB == nil || reposet.Report == nil {
		return nil
	}
	return reposcov.NewReportBackend(theDB, reposet.Report, paths, log)
}
