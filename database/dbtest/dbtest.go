// Package dbtest provides an in-memory SQLite database with the service
// schema for tests.
package dbtest

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/krishkalaria12/snap-forge/database"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func New(tb testing.TB) *gorm.DB {
	tb.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		tb.Fatalf("failed to open test DB: %v", err)
	}

	// One connection keeps the in-memory database alive and shared, and
	// serializes transactions the way row locks do on Postgres.
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("failed to get DB object: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		tb.Fatalf("failed to enable foreign keys: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		tb.Fatalf("failed to migrate: %v", err)
	}
	return db
}
