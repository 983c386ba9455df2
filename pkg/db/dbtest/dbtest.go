// Package dbtest opens isolated in-memory SQLite databases with the full model
// schema for repository and service tests.
package dbtest

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/fulfillment-backend/pkg/db"
	"github.com/angelmondragon/fulfillment-backend/pkg/db/models"
)

// Open returns a migrated GORM handle. A single connection is kept so the
// shared-cache database survives for the lifetime of the test.
func Open(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := "file:fulfillment_" + uuid.NewString() + "?mode=memory&cache=shared&_foreign_keys=0"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: statementLogger(t.Logf),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return conn
}

// statementLogger routes statement warnings to logf. Missing rows are
// expected lookups and are not reported.
func statementLogger(logf func(format string, args ...any)) gormlogger.Interface {
	return gormlogger.New(logfWriter(logf), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

type logfWriter func(format string, args ...any)

func (w logfWriter) Printf(format string, args ...any) {
	w(format, args...)
}

// Client wraps Open in a db.Client so services can run real transactions.
func Client(t *testing.T) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.Wrap(conn), conn
}
