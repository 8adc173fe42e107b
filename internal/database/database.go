package database

import (
	"context"
	"fmt"
	"log"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mrlokans/storynest/internal/entities"
)

// models are migrated on every start.
var models = []any{
	&entities.User{},
	&entities.Book{},
	&entities.AuditEvent{},
}

// sqliteParams make writers wait up to five seconds for a lock.
const sqliteParams = "?_busy_timeout=5000&_journal=WAL"

type Database struct {
	DB *gorm.DB
}

// NewDatabase opens the SQLite file at dbPath and migrates every table.
func NewDatabase(dbPath string) (*Database, error) {
	db, err := gorm.Open(sqlite.Open(dbPath+sqliteParams), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", dbPath, err)
	}

	if err := db.AutoMigrate(models...); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	log.Printf("Database ready at %s", dbPath)
	return &Database{DB: db}, nil
}

// Ping checks that the underlying connection still answers.
func (d *Database) Ping(ctx context.Context) error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (d *Database) Close() error {
	sqlDB, err := d.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
