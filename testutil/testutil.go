package testutil

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmdatafocus/fleet_backend/models"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// Car, Customer and Invoice stand in for the live target tables owned by the rest of the
// application.
type Car struct {
	ID           int    `gorm:"primary_key"`
	CarMark      string `gorm:"size:10"`
	CarNumber    string `gorm:"size:50;index"`
	SerialNumber string `gorm:"size:100"`
	CreatedAt    time.Time
}

type Customer struct {
	ID           int    `gorm:"primary_key"`
	CustomerCode string `gorm:"size:50;index"`
	CustomerName string `gorm:"size:255"`
	TaxId        string `gorm:"size:50"`
	Phone        string `gorm:"size:50"`
	Email        string `gorm:"size:255"`
	CreatedAt    time.Time
}

type Invoice struct {
	ID            int    `gorm:"primary_key"`
	InvoiceNumber string `gorm:"size:50;index"`
	CustomerCode  string `gorm:"size:50"`
	InvoiceDate   string `gorm:"size:20"`
	TotalAmount   string `gorm:"size:30"`
	CreatedAt     time.Time
}

// DB opens a fresh SQLite database in the test's temp dir with every table migrated.
// One connection keeps SQLite writers from tripping over each other.
func DB(tb testing.TB) *gorm.DB {
	tb.Helper()
	path := filepath.Join(tb.TempDir(), "recon.db")
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000"), &gorm.Config{
		Logger: gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		tb.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		tb.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	tb.Cleanup(func() { _ = sqlDB.Close() })

	if err := models.MigrateTable(db); err != nil {
		tb.Fatalf("migrate: %v", err)
	}
	if err := db.AutoMigrate(
		&models.MigrationRun{}, &models.MigrationRowError{},
		&Car{}, &Customer{}, &Invoice{},
	); err != nil {
		tb.Fatalf("migrate collaborator tables: %v", err)
	}
	return db
}

// Logger discards output unless the test runs with -v.
func Logger(tb testing.TB) *logrus.Logger {
	tb.Helper()
	l := logrus.New()
	l.SetFormatter(&logrus.JSONFormatter{})
	if !testing.Verbose() {
		l.SetOutput(io.Discard)
	}
	return l
}
