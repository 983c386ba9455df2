package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// pgDetail is the driver-neutral subset of a Postgres server error.
type pgDetail struct {
	Code       string
	Constraint string
	Table      string
	Column     string
	Detail     string
	Message    string
}

// postgresError extracts server error detail raised by pgx or lib/pq.
func postgresError(err error) (pgDetail, bool) {
	var pgxErr *pgconn.PgError
	if stdErrors.As(err, &pgxErr) {
		return pgDetail{
			Code:       pgxErr.Code,
			Constraint: pgxErr.ConstraintName,
			Table:      pgxErr.TableName,
			Column:     pgxErr.ColumnName,
			Detail:     pgxErr.Detail,
			Message:    pgxErr.Message,
		}, true
	}
	var pqErr *pq.Error
	if stdErrors.As(err, &pqErr) {
		return pgDetail{
			Code:       string(pqErr.Code),
			Constraint: pqErr.Constraint,
			Table:      pqErr.Table,
			Column:     pqErr.Column,
			Detail:     pqErr.Detail,
			Message:    pqErr.Message,
		}, true
	}
	return pgDetail{}, false
}

// IsRetryableTx reports whether err is a serialization failure or deadlock
// raised for a transaction that lost a race.
func IsRetryableTx(err error) bool {
	if err == nil {
		return false
	}
	pg, ok := postgresError(err)
	return ok && (pg.Code == pgSerializationFailure || pg.Code == pgDeadlockDetected)
}

// LogFields flattens err for structured logs: the top message, its typed
// code and reason, the unwrap chain and any Postgres detail. None of it is
// safe for response bodies.
func LogFields(err error) map[string]any {
	if err == nil {
		return map[string]any{}
	}
	fields := map[string]any{"error": err.Error()}
	if typed := As(err); typed != nil {
		fields["error_code"] = string(typed.code)
		if reason := ReasonOf(typed); reason != "" {
			fields["reason"] = reason
		}
	}

	var chain []string
	for e := err; e != nil; e = stdErrors.Unwrap(e) {
		chain = append(chain, fmt.Sprintf("%T: %v", e, e))
	}
	if len(chain) > 1 {
		fields["error_chain"] = chain
	}

	if pg, ok := postgresError(err); ok {
		put := func(key, value string) {
			if value != "" {
				fields[key] = value
			}
		}
		put("pg_code", pg.Code)
		put("pg_constraint", pg.Constraint)
		put("pg_table", pg.Table)
		put("pg_column", pg.Column)
		put("pg_detail", pg.Detail)
		put("pg_message", pg.Message)
	}
	return fields
}
