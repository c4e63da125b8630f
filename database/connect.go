package database

import (
	"fmt"
	"time"

	"github.com/krishkalaria12/snap-forge/logger"
	"github.com/krishkalaria12/snap-forge/models"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Connect opens the Postgres pool and verifies it with a ping.
func Connect(dsn string, logMode string, log *logger.Logger) (*gorm.DB, error) {
	level := gormlogger.Info
	if logMode == "prod" || logMode == "production" {
		level = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(level),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get DB object: %w", err)
	}

	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}

	log.Info("connected to postgres")
	return db, nil
}

// Migrate creates or updates every table the service owns. Assets must exist
// before the lineage table so its foreign keys resolve.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&models.User{}, &models.Asset{}, &models.LineageLink{})
}

func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// IsPostgres reports whether row-level locking clauses are supported.
func IsPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
