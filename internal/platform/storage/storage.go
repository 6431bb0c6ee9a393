package storage

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"clinivoice-server-go/internal/platform/errors"
)

// Database wraps the gorm handle so callers never import gorm directly.
type Database struct {
	db *gorm.DB
}

// Open opens (and creates if needed) the sqlite database at dsn.
func Open(dsn string) (*Database, error) {
	if dir := filepath.Dir(dsn); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.Open", "create data dir", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.Open", "open sqlite database", err)
	}

	return &Database{db: db}, nil
}

// AutoMigrate migrates the given models.
func (d *Database) AutoMigrate(models ...interface{}) error {
	if err := d.db.AutoMigrate(models...); err != nil {
		return errors.Wrap(errors.KindStorage, "storage.AutoMigrate", "migrate models", err)
	}
	return nil
}

// DB exposes the underlying gorm handle to repositories in this module.
func (d *Database) DB() *gorm.DB {
	return d.db
}

// Close closes the underlying sqlite connection.
func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.Close", "obtain sql.DB", err)
	}
	return sqlDB.Close()
}
