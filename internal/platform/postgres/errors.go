package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	sqlStateUniqueViolation      = "23505"
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
)

// Error implements repositories.RepositoryError for pgx backed repositories.
type Error struct {
	op          string
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.op != "" {
		return fmt.Sprintf("%s: %v", e.op, e.err)
	}
	return e.err.Error()
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.err
}

func (e *Error) IsNotFound() bool    { return e != nil && e.notFound }
func (e *Error) IsConflict() bool    { return e != nil && e.conflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.unavailable }

// NewConflictError reports a conflict detected by the repository, such as a stale version.
func NewConflictError(op string, err error) *Error {
	return &Error{op: op, err: err, conflict: true}
}

// WrapError classifies pgx errors. Unique violations and serialization failures are conflicts,
// missing rows are not-found and connection class (08) errors are unavailable.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var repoErr *Error
	if errors.As(err, &repoErr) {
		return repoErr
	}

	e := &Error{op: op, err: err}
	var pgErr *pgconn.PgError
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		e.notFound = true
	case errors.As(err, &pgErr):
		switch {
		case pgErr.Code == sqlStateUniqueViolation,
			pgErr.Code == sqlStateSerializationFailure,
			pgErr.Code == sqlStateDeadlockDetected:
			e.conflict = true
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "57P"):
			e.unavailable = true
		}
	case pgconn.SafeToRetry(err):
		e.unavailable = true
	}
	return e
}
