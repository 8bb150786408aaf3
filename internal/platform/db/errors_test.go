package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestClassifySerializationFailureIsRetryable(t *testing.T) {
	err := Classify(fmt.Errorf("update budget: %w", &pgconn.PgError{Code: "40001", Message: "could not serialize access"}))
	require.ErrorIs(t, err, ErrTxConflict)
	require.True(t, IsRetryable(err))
}

func TestClassifyDeadlockIsRetryable(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "40P01"})
	require.True(t, IsRetryable(err))
}

func TestClassifyUniqueViolation(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23505", ConstraintName: "disbursements_request_id_key"})
	require.ErrorIs(t, err, ErrDuplicate)
	require.Contains(t, err.Error(), "disbursements_request_id_key")
	require.False(t, IsRetryable(err))
}

func TestClassifyOtherPgErrorBecomesPersistenceError(t *testing.T) {
	err := Classify(&pgconn.PgError{Code: "23514", Message: "check constraint"})
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "query", perr.Op)
}

func TestClassifyLeavesDomainErrorsIntact(t *testing.T) {
	domain := errors.New("workflow: invalid state")
	require.Same(t, domain, Classify(domain))
	require.ErrorIs(t, Classify(context.Canceled), context.Canceled)
	require.NoError(t, Classify(nil))
}

func TestWrapNonPgError(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap("commit tx", cause)
	var perr *PersistenceError
	require.True(t, errors.As(err, &perr))
	require.Equal(t, "commit tx", perr.Op)
	require.ErrorIs(t, err, cause)
	require.Equal(t, "platform/db: commit tx: connection reset", err.Error())
}
