// Package testutil opens the throwaway database the repo integration tests
// run against. Tests that call OpenTestDB skip when TEST_POSTGRES_DSN is not
// set, so the pure-logic suite stays runnable without infrastructure.
package testutil

import (
	"os"
	"testing"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/ovationlabs/venuepulse-backend/internal/logger"
	"github.com/ovationlabs/venuepulse-backend/internal/types"
)

func TestLogger(tb testing.TB) *logger.Logger {
	tb.Helper()
	log, err := logger.New("test")
	if err != nil {
		tb.Fatalf("failed to init logger: %v", err)
	}
	return log
}

// OpenTestDB connects to the database named by TEST_POSTGRES_DSN, migrates
// the schema, and wipes the tables so every test starts empty.
func OpenTestDB(tb testing.TB) *gorm.DB {
	tb.Helper()

	dsn := os.Getenv("TEST_POSTGRES_DSN")
	if dsn == "" {
		tb.Skip("TEST_POSTGRES_DSN not set, skipping repo integration test")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open test database: %v", err)
	}

	if err := db.AutoMigrate(
		&types.CountEvent{},
		&types.MinuteStat{},
		&types.AdminResetLog{},
	); err != nil {
		tb.Fatalf("failed to migrate test schema: %v", err)
	}

	for _, table := range []string{"count_events", "minute_stats", "admin_reset_logs"} {
		if err := db.Exec("TRUNCATE TABLE " + table + " RESTART IDENTITY CASCADE").Error; err != nil {
			tb.Fatalf("failed to truncate %s: %v", table, err)
		}
	}
	return db
}
