package db

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL error codes the platform layer cares about.
const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

var (
	// ErrTxConflict indicates a concurrent writer forced the transaction to abort. Retryable.
	ErrTxConflict = errors.New("platform/db: transaction conflict")
	// ErrDuplicate indicates a unique constraint rejected the write.
	ErrDuplicate = errors.New("platform/db: duplicate entry")
	// ErrNoRows re-exports pgx.ErrNoRows for repositories.
	ErrNoRows = pgx.ErrNoRows
)

// PersistenceError wraps a storage failure with the operation that produced it.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("platform/db: %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Wrap converts a driver error into ErrTxConflict, ErrDuplicate or a PersistenceError.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if classified, ok := classifyPg(err); ok {
		return classified
	}
	return &PersistenceError{Op: op, Err: err}
}

// Classify maps PostgreSQL failures to platform errors and leaves every other error intact, so
// domain errors returned from a transaction callback pass through unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if classified, ok := classifyPg(err); ok {
		return classified
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return &PersistenceError{Op: "query", Err: err}
	}
	return err
}

// IsRetryable reports whether the caller may retry the operation as-is.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTxConflict)
}

func classifyPg(err error) (error, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil, false
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected:
		return fmt.Errorf("%w: %s", ErrTxConflict, pgErr.Message), true
	case codeUniqueViolation:
		return fmt.Errorf("%w: %s", ErrDuplicate, pgErr.ConstraintName), true
	}
	return nil, false
}
