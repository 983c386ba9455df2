package dbtest

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"gorm.io/gorm"
)

func TestStatementLoggerSkipsMissingRows(t *testing.T) {
	var lines []string
	logg := statementLogger(func(format string, args ...any) {
		lines = append(lines, fmt.Sprintf(format, args...))
	})
	fc := func() (string, int64) { return "SELECT * FROM orders", 0 }
	ctx := context.Background()

	logg.Trace(ctx, time.Now(), fc, gorm.ErrRecordNotFound)
	if len(lines) != 0 {
		t.Fatalf("expected record not found to stay silent, got %q", lines)
	}

	logg.Trace(ctx, time.Now(), fc, errors.New("no such table: orders"))
	if len(lines) != 1 {
		t.Fatalf("expected one logged statement error, got %d", len(lines))
	}
}
