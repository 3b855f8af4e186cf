// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow handlers to distinguish between
// different failure scenarios and translate them into HTTP statuses.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
)

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own. Handlers translate this into 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when an update cannot be performed because of the
// current state of the record, such as changing the stage of a completed
// project. Handlers translate this into 409.
var ErrConflict = errors.New("conflict")

// ErrNotFound is returned when a looked-up record does not exist.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned when a unique email constraint is violated.
var ErrEmailExists = errors.New("email already exists")

// dbtx is satisfied by both *sql.DB and *sql.Tx so every query can run
// inside or outside a transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// isDuplicate recognises unique violations of MySQL (error 1062) and SQLite.
func isDuplicate(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "1062") || strings.Contains(msg, "unique constraint failed")
}

// notFound maps sql.ErrNoRows to ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
