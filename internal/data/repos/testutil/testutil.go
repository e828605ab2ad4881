package testutil

import (
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/coverage-backend/internal/data/db"
	"github.com/yungbote/coverage-backend/internal/platform/logger"
)

var (
	logOnce sync.Once
	logg    *logger.Logger
	logErr  error
)

func Logger(tb testing.TB) *logger.Logger {
	tb.Helper()
	logOnce.Do(func() {
		logg, logErr = logger.New("test")
	})
	if logErr != nil {
		tb.Fatalf("failed to init logger: %v", logErr)
	}
	return logg
}

// DB opens a migrated database private to the test: Postgres when
// TEST_POSTGRES_DSN is set, otherwise a fresh in-memory SQLite database.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	cfg := db.Config{
		Driver: db.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	}
	if dsn := os.Getenv("TEST_POSTGRES_DSN"); dsn != "" {
		cfg = db.Config{Driver: db.DriverPostgres, DSN: dsn}
	}
	svc, err := db.Open(Logger(tb), cfg)
	if err != nil {
		tb.Fatalf("failed to init test db: %v", err)
	}
	tb.Cleanup(func() {
		if cfg.Driver == db.DriverPostgres {
			_ = svc.DB().Exec("DELETE FROM coverage_report").Error
		}
		_ = svc.Close()
	})
	return svc.DB()
}

// Postgres is DB restricted to Postgres; it skips without TEST_POSTGRES_DSN.
func Postgres(tb testing.TB) *gorm.DB {
	tb.Helper()
	if os.Getenv("TEST_POSTGRES_DSN") == "" {
		tb.Skip("set TEST_POSTGRES_DSN to run repo integration tests")
	}
	return DB(tb)
}

func Tx(tb testing.TB, db *gorm.DB) *gorm.DB {
	tb.Helper()
	tx := db.Begin()
	if tx.Error != nil {
		tb.Fatalf("begin tx: %v", tx.Error)
	}
	tb.Cleanup(func() {
		_ = tx.Rollback().Error
	})
	return tx
}
