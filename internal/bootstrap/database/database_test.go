package database

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"govsync/internal/bootstrap/config"
)

func TestOpenSQLiteCreatesDirectory(t *testing.T) {
	dsn := filepath.Join(t.TempDir(), "nested", "state", "gov.sqlite")

	db, err := Open(context.Background(), config.DatabaseConfig{Driver: "sqlite", DSN: dsn})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	if got := sqlDB.Stats().MaxOpenConnections; got != 1 {
		t.Fatalf("MaxOpenConnections = %d, want 1", got)
	}
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), config.DatabaseConfig{Driver: "mysql", DSN: "x"}); err == nil {
		t.Fatalf("Open() expected error for unknown driver")
	}
}

type lookupRow struct {
	ID  uint `gorm:"primaryKey"`
	Key string
}

func TestGormLoggerIgnoresRecordNotFound(t *testing.T) {
	var buf bytes.Buffer
	dsn := filepath.Join(t.TempDir(), "logger.sqlite")
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: newGormLogger(&buf)})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("DB() error = %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(&lookupRow{}); err != nil {
		t.Fatalf("AutoMigrate() error = %v", err)
	}

	var row lookupRow
	if err := db.Where("key = ?", "missing").Take(&row).Error; !errors.Is(err, gorm.ErrRecordNotFound) {
		t.Fatalf("Take() error = %v, want ErrRecordNotFound", err)
	}
	if strings.Contains(buf.String(), "record not found") {
		t.Fatalf("logger output = %q, want no record-not-found line", buf.String())
	}

	if err := db.Exec("SELECT * FROM no_such_table").Error; err == nil {
		t.Fatalf("Exec() expected error for missing table")
	}
	if !strings.Contains(buf.String(), "no_such_table") {
		t.Fatalf("logger output = %q, want the failing query logged", buf.String())
	}
}
