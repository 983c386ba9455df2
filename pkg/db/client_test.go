package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type testModel struct {
	ID   int
	Name string
}

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&testModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}

	ctx := context.Background()
	if err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&testModel{Name: "committed"}).Error
	}); err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}

	var count int64
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record, got %d", count)
	}

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&testModel{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to return an error")
	}
	if err := db.Model(&testModel{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed after rollback: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", count)
	}
}

func TestWithTxRetriesSerializationFailures(t *testing.T) {
	client := &Client{conn: newTestDB(t)}

	attempts := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		if attempts < 2 {
			return &pgconn.PgError{Code: "40001", Message: "could not serialize access"}
		}
		return tx.Create(&testModel{Name: "retried"}).Error
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}

	attempts = 0
	err = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return &pgconn.PgError{Code: "40P01", Message: "deadlock detected"}
	})
	if err == nil || attempts != txAttempts {
		t.Fatalf("expected %d attempts and an error, got %d and %v", txAttempts, attempts, err)
	}

	attempts = 0
	_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
		attempts++
		return errors.New("constraint")
	})
	if attempts != 1 {
		t.Fatalf("plain errors must not retry, got %d attempts", attempts)
	}
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := newTestDB(t)
	client := &Client{conn: conn}
	var before int64
	conn.Model(&testModel{}).Count(&before)

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("expected panic to propagate")
			}
		}()
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			if err := tx.Create(&testModel{Name: "doomed"}).Error; err != nil {
				return err
			}
			panic("split failed")
		})
	}()

	var after int64
	conn.Model(&testModel{}).Count(&after)
	if after != before {
		t.Fatalf("panic should roll back, rows went from %d to %d", before, after)
	}
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	client := &Client{conn: db}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

type uniqueModel struct {
	ID   int
	Code string `gorm:"uniqueIndex:ux_unique_models_code"`
}

func TestIsUniqueViolation(t *testing.T) {
	conn, err := gorm.Open(sqlite.Open("file:unique_"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&uniqueModel{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	client := Wrap(conn)

	if err := client.DB().Create(&uniqueModel{Code: "PO-1"}).Error; err != nil {
		t.Fatalf("first insert failed: %v", err)
	}
	err = client.DB().Create(&uniqueModel{Code: "PO-1"}).Error
	if !IsUniqueViolation(err, "ux_unique_models_code") {
		t.Fatalf("expected unique violation, got %v", err)
	}

	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_refunds_purchase_order"}
	if !IsUniqueViolation(pgErr, "ux_refunds_purchase_order") {
		t.Fatal("expected postgres violation to match its constraint")
	}
	if IsUniqueViolation(pgErr, "ux_other") {
		t.Fatal("expected mismatched constraint to be ignored")
	}
	if IsUniqueViolation(errors.New("timeout"), "") {
		t.Fatal("plain errors are not unique violations")
	}
}
