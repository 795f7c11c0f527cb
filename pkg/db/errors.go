package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const pgUniqueViolation = "23505"

// UniqueConstraint names a unique index and the columns it covers so a
// violation can be recognised on both Postgres and SQLite.
type UniqueConstraint struct {
	Name    string
	Table   string
	Columns []string
}

// Violated reports whether err was raised by this constraint.
func (u UniqueConstraint) Violated(err error) bool {
	if err == nil {
		return false
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && pgxErr.ConstraintName == u.Name
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code) == pgUniqueViolation && pqErr.Constraint == u.Name
	}
	msg := err.Error()
	if u.Name != "" && strings.Contains(msg, u.Name) {
		return true
	}
	return strings.Contains(msg, u.sqliteMessage())
}

// sqliteMessage mirrors "UNIQUE constraint failed: t.a, t.b".
func (u UniqueConstraint) sqliteMessage() string {
	cols := make([]string, len(u.Columns))
	for i, col := range u.Columns {
		cols[i] = u.Table + "." + col
	}
	return "UNIQUE constraint failed: " + strings.Join(cols, ", ")
}

// IsUniqueViolation reports whether the provided error is any unique violation.
// When constraintName is provided, only that constraint matches.
func IsUniqueViolation(err error, constraintName string) bool {
	if err == nil {
		return false
	}
	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		return pgxErr.Code == pgUniqueViolation && (constraintName == "" || pgxErr.ConstraintName == constraintName)
	}
	msg := err.Error()
	if constraintName != "" {
		return strings.Contains(msg, constraintName)
	}
	return strings.Contains(msg, "duplicate key value") || strings.Contains(msg, "UNIQUE constraint failed")
}
